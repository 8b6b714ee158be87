package indexer_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/vecindex/pkg/checksum"
	"github.com/papercomputeco/vecindex/pkg/embeddings"
	"github.com/papercomputeco/vecindex/pkg/entity"
	"github.com/papercomputeco/vecindex/pkg/indexer"
	"github.com/papercomputeco/vecindex/pkg/records"
	"github.com/papercomputeco/vecindex/pkg/vector"
	"github.com/papercomputeco/vecindex/pkg/vector/unimplemented"
)

var _ = Describe("IndexRecord", func() {
	var (
		ctx context.Context
		f   *fixture
	)

	BeforeEach(func() {
		ctx = context.Background()
		f = newFixture(fixtureOptions{groups: productGroup(entity.Config{Source: productSource})})
	})

	It("embeds once, skips unchanged records and re-embeds renamed ones", func() {
		f.putProduct("p1", "t1", "Widget")

		Expect(f.index("p1", "t1")).To(Equal(indexer.OutcomeIndexed))
		upserts := f.driver.Upserts()
		Expect(upserts).To(HaveLen(1))
		Expect(upserts[0].Embedding).NotTo(BeEmpty())
		Expect(upserts[0].DriverID).To(Equal("memory"))
		Expect(upserts[0].Checksum).To(Equal(checksum.MustCompute(map[string]any{"id": "p1", "name": "Widget"})))

		Expect(f.index("p1", "t1")).To(Equal(indexer.OutcomeUnchanged))
		Expect(f.driver.Upserts()).To(HaveLen(1))
		Expect(f.mock.Calls()).To(Equal(1))

		f.putProduct("p1", "t1", "Widget Pro")
		Expect(f.index("p1", "t1")).To(Equal(indexer.OutcomeIndexed))

		upserts = f.driver.Upserts()
		Expect(upserts).To(HaveLen(2))
		Expect(upserts[1].Checksum).NotTo(Equal(upserts[0].Checksum))
		Expect(upserts[1].Embedding).NotTo(Equal(upserts[0].Embedding))
		Expect(f.mock.Inputs()).To(Equal([]string{"Name: Widget", "Name: Widget Pro"}))

		Expect(testutil.ToFloat64(f.metrics.IndexSkipped.WithLabelValues(productEntity))).To(Equal(1.0))
		Expect(testutil.ToFloat64(f.metrics.IndexUpserts.WithLabelValues(productEntity))).To(Equal(2.0))
	})

	It("ignores fields outside the checksum source", func() {
		f.putProduct("p1", "t1", "Widget")
		f.index("p1", "t1")

		Expect(f.store.Put(productEntity, records.RawRow{
			"id": "p1", "tenant_id": "t1", "name": "Widget", "stock": 12,
		})).To(Succeed())
		Expect(f.index("p1", "t1")).To(Equal(indexer.OutcomeUnchanged))
		Expect(f.mock.Calls()).To(Equal(1))
	})

	DescribeTable("falls back to the record when the checksum source is unset",
		func(unset any) {
			builder := entity.SourceBuilderFunc(func(_ context.Context, hc entity.HookContext) (*entity.Source, error) {
				name, _ := hc.Record["name"].(string)
				return &entity.Source{Input: []string{"Name: " + name}, ChecksumSource: unset}, nil
			})
			f = newFixture(fixtureOptions{groups: productGroup(entity.Config{Source: builder})})

			f.putProduct("p1", "t1", "Widget")
			Expect(f.index("p1", "t1")).To(Equal(indexer.OutcomeIndexed))
			Expect(f.index("p1", "t1")).To(Equal(indexer.OutcomeUnchanged))

			f.putProduct("p1", "t1", "Widget Pro")
			Expect(f.index("p1", "t1")).To(Equal(indexer.OutcomeIndexed))
			Expect(f.mock.Calls()).To(Equal(2))
		},
		Entry("untyped nil", nil),
		Entry("typed nil map", map[string]any(nil)),
		Entry("typed nil pointer", (*struct{ Name string })(nil)),
		Entry("empty map", map[string]any{}),
		Entry("empty slice", []string{}),
	)

	It("ignores unregistered entities", func() {
		outcome, err := f.svc.IndexRecord(ctx, indexer.RecordRef{EntityID: "crm:person", RecordID: "x", TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome).To(Equal(indexer.OutcomeIgnored))
		Expect(f.mock.Calls()).To(BeZero())
	})

	It("removes the document when the record is gone", func() {
		f.putProduct("p1", "t1", "Widget")
		f.index("p1", "t1")

		f.store.Delete(productEntity, "p1")
		Expect(f.index("p1", "t1")).To(Equal(indexer.OutcomeRemoved))

		_, found, err := f.driver.GetChecksum(ctx, productEntity, "p1", "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})

	It("removes the document when the record stops being indexable", func() {
		f.putProduct("p1", "t1", "Widget")
		f.index("p1", "t1")

		f.putProduct("p1", "t1", "")
		Expect(f.index("p1", "t1")).To(Equal(indexer.OutcomeRemoved))
		Expect(f.driver.Deletes()).To(Equal([]string{productEntity + "/p1"}))
	})

	It("keeps the record's organization on the document", func() {
		Expect(f.store.Put(productEntity, records.RawRow{
			"id": "p1", "tenant_id": "t1", "organization_id": "o1", "name": "Widget",
		})).To(Succeed())
		f.index("p1", "t1")
		Expect(f.driver.Upserts()[0].OrganizationID).To(Equal("o1"))
	})

	It("propagates source builder failures", func() {
		f = newFixture(fixtureOptions{groups: productGroup(entity.Config{
			Source: entity.SourceBuilderFunc(func(context.Context, entity.HookContext) (*entity.Source, error) {
				return nil, errors.New("boom")
			}),
		})})
		f.putProduct("p1", "t1", "Widget")

		_, err := f.svc.IndexRecord(ctx, indexer.RecordRef{EntityID: productEntity, RecordID: "p1", TenantID: "t1"})
		Expect(err).To(MatchError(ContainSubstring("boom")))
		Expect(f.driver.Upserts()).To(BeEmpty())
	})

	It("resolves presentation from hooks, then the source, then field heuristics", func() {
		f = newFixture(fixtureOptions{groups: productGroup(entity.Config{
			Source: entity.SourceBuilderFunc(func(_ context.Context, hc entity.HookContext) (*entity.Source, error) {
				return &entity.Source{
					Input:     []string{"x"},
					Presenter: &vector.Presenter{Title: "from source"},
					Links:     []vector.Link{{Href: "/src"}},
				}, nil
			}),
			URL: entity.URLResolverFunc(func(_ context.Context, hc entity.HookContext) (string, error) {
				return "/products/" + hc.RecordID, nil
			}),
		})})
		f.putProduct("p1", "t1", "Widget")
		f.index("p1", "t1")

		doc := f.driver.Upserts()[0]
		Expect(doc.Presenter.Title).To(Equal("from source"))
		Expect(doc.Links).To(Equal([]vector.Link{{Href: "/src"}}))
		Expect(doc.URL).To(Equal("/products/p1"))
	})

	Context("without an embedding credential", func() {
		BeforeEach(func() {
			f = newFixture(fixtureOptions{
				groups:   productGroup(entity.Config{Source: productSource}),
				provider: embeddings.ProviderOpenAI,
			})
			f.putProduct("p1", "t1", "Widget")
		})

		It("fails with ErrEmbeddingUnavailable and writes nothing", func() {
			_, err := f.svc.IndexRecord(ctx, indexer.RecordRef{EntityID: productEntity, RecordID: "p1", TenantID: "t1"})
			Expect(err).To(MatchError(embeddings.ErrEmbeddingUnavailable))
			Expect(f.driver.Upserts()).To(BeEmpty())
			Expect(f.mock.Calls()).To(BeZero())
		})

		It("still skips unchanged records", func() {
			Expect(f.driver.Driver.Upsert(ctx, vector.Document{
				DriverID:  "memory",
				EntityID:  productEntity,
				RecordID:  "p1",
				TenantID:  "t1",
				Checksum:  checksum.MustCompute(map[string]any{"id": "p1", "name": "Widget"}),
				Embedding: []float32{1, 0, 0, 0},
			})).To(Succeed())

			Expect(f.index("p1", "t1")).To(Equal(indexer.OutcomeUnchanged))
		})
	})

	Context("driver resolution", func() {
		It("fails for an unknown driver", func() {
			f = newFixture(fixtureOptions{groups: productGroup(entity.Config{DriverID: "qdrant"})})
			f.putProduct("p1", "t1", "Widget")

			_, err := f.svc.IndexRecord(ctx, indexer.RecordRef{EntityID: productEntity, RecordID: "p1", TenantID: "t1"})
			Expect(err).To(MatchError(vector.ErrDriverNotRegistered))
		})

		It("fails loudly for an unimplemented driver", func() {
			f = newFixture(fixtureOptions{
				groups:  productGroup(entity.Config{DriverID: "opensearch"}),
				drivers: []vector.Driver{unimplemented.NewDriver("opensearch")},
			})
			f.putProduct("p1", "t1", "Widget")

			_, err := f.svc.IndexRecord(ctx, indexer.RecordRef{EntityID: productEntity, RecordID: "p1", TenantID: "t1"})
			Expect(err).To(MatchError(vector.ErrDriverNotImplemented))
			Expect(f.driver.Upserts()).To(BeEmpty())
		})
	})
})

var _ = Describe("generic source", func() {
	var f *fixture

	BeforeEach(func() {
		f = newFixture(fixtureOptions{groups: productGroup(entity.Config{})})
	})

	It("leads with identity fields, skips bookkeeping and appends custom fields", func() {
		Expect(f.store.Put(productEntity, records.RawRow{
			"id":                "p1",
			"tenant_id":         "t1",
			"created_at":        "2026-01-01",
			"sku":               "W-1",
			"name":              "Widget",
			"title":             "The Widget",
			"cf:color":          "red",
			"cf:tags":           []any{"a", "b"},
			"cf:tags__is_multi": true,
		})).To(Succeed())
		f.index("p1", "t1")

		Expect(f.mock.Inputs()).To(Equal([]string{
			"title: The Widget\n\nname: Widget\n\nsku: W-1\n\ncustom.color: red\n\ncustom.tags: a, b",
		}))
		Expect(f.driver.Upserts()[0].Presenter).To(Equal(&vector.Presenter{Title: "The Widget"}))
	})

	It("falls back to the entity and record id", func() {
		Expect(f.store.Put(productEntity, records.RawRow{"id": "p1", "tenant_id": "t1"})).To(Succeed())
		f.index("p1", "t1")

		Expect(f.mock.Inputs()).To(Equal([]string{"products:item#p1"}))
		Expect(f.driver.Upserts()[0].Presenter.Title).To(Equal("p1"))
	})
})

var _ = Describe("DeleteRecord", func() {
	It("deletes the document and ignores unregistered entities", func() {
		ctx := context.Background()
		f := newFixture(fixtureOptions{groups: productGroup(entity.Config{Source: productSource})})
		f.putProduct("p1", "t1", "Widget")
		f.index("p1", "t1")

		Expect(f.svc.DeleteRecord(ctx, indexer.RecordRef{EntityID: productEntity, RecordID: "p1", TenantID: "t1"})).To(Succeed())
		Expect(f.driver.Len()).To(BeZero())

		Expect(f.svc.DeleteRecord(ctx, indexer.RecordRef{EntityID: "crm:person", RecordID: "p1", TenantID: "t1"})).To(Succeed())
		Expect(f.driver.Deletes()).To(HaveLen(1))
	})
})
