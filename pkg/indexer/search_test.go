package indexer_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/vecindex/pkg/embeddings"
	"github.com/papercomputeco/vecindex/pkg/entity"
	"github.com/papercomputeco/vecindex/pkg/indexer"
	"github.com/papercomputeco/vecindex/pkg/vector"
)

var _ = Describe("Search", func() {
	var (
		ctx context.Context
		f   *fixture
	)

	BeforeEach(func() {
		ctx = context.Background()
		f = newFixture(fixtureOptions{groups: productGroup(entity.Config{Source: productSource})})
		f.putProduct("p1", "t1", "Widget")
		f.putProduct("p2", "t1", "Gadget")
		f.putProduct("p3", "t2", "Widget")
		f.index("p1", "t1")
		f.index("p2", "t1")
		f.index("p3", "t2")
	})

	It("ranks hits and stays within the tenant", func() {
		out, err := f.svc.Search(ctx, indexer.SearchArgs{Query: "Name: Widget", TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(recordIDs(out.Results)).To(Equal([]string{"p1", "p2"}))
		Expect(out.Count).To(Equal(2))
		Expect(out.Results[0].Score).To(BeNumerically("~", 1, 1e-4))
	})

	It("drops and deletes hits whose record is gone", func() {
		f.store.Delete(productEntity, "p2")

		out, err := f.svc.Search(ctx, indexer.SearchArgs{Query: "Widget", TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(recordIDs(out.Results)).To(Equal([]string{"p1"}))
		Expect(f.driver.Deletes()).To(ConsistOf(productEntity + "/p2"))
		Expect(testutil.ToFloat64(f.metrics.StaleHitsDeleted.WithLabelValues(productEntity))).To(Equal(1.0))

		list, err := f.svc.ListIndexEntries(ctx, indexer.ListArgs{TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(entryIDs(list.Entries)).To(Equal([]string{productEntity + "/p1"}))
	})

	It("still answers when a stale hit cannot be deleted", func() {
		f.store.Delete(productEntity, "p2")
		f.driver.FailDelete = errors.New("store unavailable")

		out, err := f.svc.Search(ctx, indexer.SearchArgs{Query: "Widget", TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(recordIDs(out.Results)).To(Equal([]string{"p1"}))
	})

	It("presents the live record rather than the stored presenter", func() {
		f.putProduct("p1", "t1", "Widget Deluxe")

		out, err := f.svc.Search(ctx, indexer.SearchArgs{Query: "Name: Widget", TenantID: "t1", Limit: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Results).To(HaveLen(1))
		Expect(out.Results[0].Presenter.Title).To(Equal("Widget Deluxe"))
	})

	It("reuses the query embedding until the provider configuration changes", func() {
		before := f.mock.Calls()

		_, err := f.svc.Search(ctx, indexer.SearchArgs{Query: "Widget", TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())
		_, err = f.svc.Search(ctx, indexer.SearchArgs{Query: "Widget", TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(f.mock.Calls() - before).To(Equal(1))
		Expect(testutil.ToFloat64(f.metrics.QueryCacheHits)).To(Equal(1.0))

		decision := f.svc.UpdateEmbeddingConfig(ctx, embeddings.ProviderConfig{
			ProviderID: embeddings.ProviderOllama,
			Model:      "all-minilm",
			Dimension:  4,
		})
		Expect(decision.RequiresReindex).To(BeTrue())
		Expect(decision.Reason).To(ContainSubstring("all-minilm"))

		_, err = f.svc.Search(ctx, indexer.SearchArgs{Query: "Widget", TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(f.mock.Calls() - before).To(Equal(2))
	})

	It("narrows to requested entities", func() {
		out, err := f.svc.Search(ctx, indexer.SearchArgs{Query: "Widget", TenantID: "t1", EntityIDs: []string{"crm:person"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Results).To(BeEmpty())
	})

	It("rejects blank queries", func() {
		_, err := f.svc.Search(ctx, indexer.SearchArgs{Query: "  ", TenantID: "t1"})
		Expect(err).To(MatchError(indexer.ErrEmptyQuery))
	})

	It("fails for an unknown driver", func() {
		_, err := f.svc.Search(ctx, indexer.SearchArgs{Query: "Widget", TenantID: "t1", DriverID: "pgvector"})
		Expect(err).To(MatchError(vector.ErrDriverNotRegistered))
	})

	It("propagates driver query failures", func() {
		f.driver.FailQuery = errors.New("timeout")
		_, err := f.svc.Search(ctx, indexer.SearchArgs{Query: "Widget", TenantID: "t1"})
		Expect(err).To(MatchError(ContainSubstring("timeout")))
	})

	It("is unavailable without an embedding credential", func() {
		f = newFixture(fixtureOptions{
			groups:   productGroup(entity.Config{Source: productSource}),
			provider: embeddings.ProviderMistral,
		})
		_, err := f.svc.Search(ctx, indexer.SearchArgs{Query: "Widget", TenantID: "t1"})
		Expect(err).To(MatchError(embeddings.ErrEmbeddingUnavailable))
		Expect(f.mock.Calls()).To(BeZero())
	})
})

var _ = Describe("Search organization scope", func() {
	It("shows global records to every organization and hides other organizations", func() {
		ctx := context.Background()
		f := newFixture(fixtureOptions{groups: productGroup(entity.Config{Source: productSource})})
		for _, row := range []map[string]any{
			{"id": "global", "tenant_id": "t1", "name": "Widget"},
			{"id": "mine", "tenant_id": "t1", "organization_id": "o1", "name": "Widget"},
			{"id": "theirs", "tenant_id": "t1", "organization_id": "o2", "name": "Widget"},
		} {
			Expect(f.store.Put(productEntity, row)).To(Succeed())
			f.index(row["id"].(string), "t1")
		}

		out, err := f.svc.Search(ctx, indexer.SearchArgs{Query: "Widget", TenantID: "t1", OrganizationID: "o1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(recordIDs(out.Results)).To(ConsistOf("global", "mine"))
		Expect(f.driver.Deletes()).To(BeEmpty())
	})
})

var _ = Describe("ListIndexEntries", func() {
	var (
		ctx context.Context
		f   *fixture
	)

	BeforeEach(func() {
		ctx = context.Background()
		f = newFixture(fixtureOptions{groups: productGroup(entity.Config{
			Source: productSource,
			Formatter: entity.ResultFormatterFunc(func(_ context.Context, hc entity.HookContext) (*vector.Presenter, error) {
				return &vector.Presenter{Title: "Product " + hc.Record["name"].(string)}, nil
			}),
		})})
		f.putProduct("p1", "t1", "Widget")
		f.index("p1", "t1")
	})

	It("re-hydrates presentation from live records", func() {
		f.putProduct("p1", "t1", "Sprocket")

		list, err := f.svc.ListIndexEntries(ctx, indexer.ListArgs{TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(list.Entries).To(HaveLen(1))
		Expect(list.Entries[0].Registered).To(BeTrue())
		Expect(list.Entries[0].Presenter.Title).To(Equal("Product Sprocket"))
		Expect(list.Limit).To(Equal(50))
	})

	It("marks entries whose record is gone without deleting them", func() {
		f.store.Delete(productEntity, "p1")

		list, err := f.svc.ListIndexEntries(ctx, indexer.ListArgs{TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(list.Entries).To(HaveLen(1))
		Expect(list.Entries[0].Stale).To(BeTrue())
		Expect(list.Entries[0].Presenter.Title).To(Equal("Product Widget"))
		Expect(f.driver.Deletes()).To(BeEmpty())
	})

	It("returns entries of unregistered entities as stored", func() {
		Expect(f.driver.Upsert(ctx, vector.Document{
			DriverID:  "memory",
			EntityID:  "legacy:note",
			RecordID:  "n1",
			TenantID:  "t1",
			Checksum:  "abc",
			Embedding: []float32{1, 0, 0, 0},
			Presenter: &vector.Presenter{Title: "Old note"},
		})).To(Succeed())

		list, err := f.svc.ListIndexEntries(ctx, indexer.ListArgs{TenantID: "t1", EntityID: "legacy:note"})
		Expect(err).NotTo(HaveOccurred())
		Expect(list.Entries).To(HaveLen(1))
		Expect(list.Entries[0].Registered).To(BeFalse())
		Expect(list.Entries[0].Presenter.Title).To(Equal("Old note"))
	})
})
