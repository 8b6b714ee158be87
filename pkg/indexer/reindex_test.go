package indexer_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vecindex/pkg/entity"
	"github.com/papercomputeco/vecindex/pkg/indexer"
	"github.com/papercomputeco/vecindex/pkg/records"
	"github.com/papercomputeco/vecindex/pkg/vector"
)

var _ = Describe("ReindexEntity", func() {
	var (
		ctx context.Context
		f   *fixture
	)

	BeforeEach(func() {
		ctx = context.Background()
		f = newFixture(fixtureOptions{
			groups:   productGroup(entity.Config{Source: productSource}),
			pageSize: 2,
		})
		for i := 1; i <= 5; i++ {
			f.putProduct(fmt.Sprintf("p%d", i), "t1", fmt.Sprintf("Product %d", i))
		}
		f.putProduct("other", "t2", "Elsewhere")
	})

	It("purges, then indexes page by page until a short page", func() {
		res, err := f.svc.ReindexEntity(ctx, indexer.ReindexArgs{EntityID: productEntity, TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Purged).To(BeTrue())
		Expect(res.Pages).To(Equal(3))
		Expect(res.Indexed).To(Equal(5))
		Expect(f.driver.Purges()).To(Equal([]string{productEntity}))
		Expect(f.driver.Len()).To(Equal(5))
	})

	It("re-embeds everything after a purge", func() {
		_, err := f.svc.ReindexEntity(ctx, indexer.ReindexArgs{EntityID: productEntity, TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())
		_, err = f.svc.ReindexEntity(ctx, indexer.ReindexArgs{EntityID: productEntity, TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(f.mock.Calls()).To(Equal(10))
	})

	It("skips unchanged records when the purge is skipped", func() {
		_, err := f.svc.ReindexEntity(ctx, indexer.ReindexArgs{EntityID: productEntity, TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())

		res, err := f.svc.ReindexEntity(ctx, indexer.ReindexArgs{EntityID: productEntity, TenantID: "t1", SkipPurge: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Purged).To(BeFalse())
		Expect(res.Unchanged).To(Equal(5))
		Expect(f.mock.Calls()).To(Equal(5))
	})

	It("never deletes unindexable records mid-reindex", func() {
		_, err := f.svc.ReindexEntity(ctx, indexer.ReindexArgs{EntityID: productEntity, TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())

		f.putProduct("p3", "t1", "")
		res, err := f.svc.ReindexEntity(ctx, indexer.ReindexArgs{EntityID: productEntity, TenantID: "t1", SkipPurge: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Ignored).To(Equal(1))
		Expect(f.driver.Deletes()).To(BeEmpty())
		Expect(f.driver.Len()).To(Equal(5))
	})

	It("stops on a cancelled context", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := f.svc.ReindexEntity(cctx, indexer.ReindexArgs{EntityID: productEntity, TenantID: "t1"})
		Expect(err).To(MatchError(context.Canceled))
		Expect(f.driver.Purges()).To(BeEmpty())
	})

	Context("with organizations", func() {
		BeforeEach(func() {
			for id, org := range map[string]string{"a1": "o1", "b1": "o2"} {
				Expect(f.store.Put(productEntity, records.RawRow{
					"id": id, "tenant_id": "t1", "organization_id": org, "name": "Org " + id,
				})).To(Succeed())
			}
		})

		orgsByRecord := func() map[string]string {
			out := map[string]string{}
			for _, doc := range f.driver.Upserts() {
				out[doc.RecordID] = doc.OrganizationID
			}
			return out
		}

		It("repopulates every organization after a purge", func() {
			res, err := f.svc.ReindexEntity(ctx, indexer.ReindexArgs{
				EntityID: productEntity, TenantID: "t1", OrganizationID: "o1",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Indexed).To(Equal(7))
			Expect(f.driver.Len()).To(Equal(7))

			orgs := orgsByRecord()
			Expect(orgs).To(HaveKeyWithValue("a1", "o1"))
			Expect(orgs).To(HaveKeyWithValue("b1", "o2"))
			Expect(orgs).To(HaveKeyWithValue("p1", ""))
		})

		It("narrows to one organization and tenant-global records without a purge", func() {
			_, err := f.svc.ReindexEntity(ctx, indexer.ReindexArgs{EntityID: productEntity, TenantID: "t1"})
			Expect(err).NotTo(HaveOccurred())

			res, err := f.svc.ReindexEntity(ctx, indexer.ReindexArgs{
				EntityID: productEntity, TenantID: "t1", OrganizationID: "o1", SkipPurge: true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Unchanged).To(Equal(6))
			Expect(f.driver.Len()).To(Equal(7))
		})
	})

	It("rejects unregistered entities", func() {
		_, err := f.svc.ReindexEntity(ctx, indexer.ReindexArgs{EntityID: "crm:person", TenantID: "t1"})
		Expect(err).To(MatchError(indexer.ErrEntityNotRegistered))
	})
})

var _ = Describe("ReindexAll", func() {
	It("reindexes every registered entity", func() {
		ctx := context.Background()
		f := newFixture(fixtureOptions{groups: []entity.Group{
			{Module: "products", Entities: []entity.Config{{EntityID: productEntity, Source: productSource}}},
			{Module: "crm", Entities: []entity.Config{
				{EntityID: "crm:person"},
				{EntityID: "crm:lead", Disabled: true},
			}},
		}})
		f.putProduct("p1", "t1", "Widget")
		Expect(f.store.Put("crm:person", records.RawRow{"id": "c1", "tenant_id": "t1", "name": "Ada"})).To(Succeed())
		Expect(f.store.Put("crm:lead", records.RawRow{"id": "l1", "tenant_id": "t1", "name": "Bob"})).To(Succeed())

		Expect(f.svc.ListEnabledEntities()).To(Equal([]string{"crm:person", productEntity}))

		results, err := f.svc.ReindexAll(ctx, indexer.ReindexArgs{TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].EntityID).To(Equal("crm:person"))
		Expect(results[0].Indexed).To(Equal(1))
		Expect(results[1].Indexed).To(Equal(1))

		docs, err := f.driver.List(ctx, vector.ListParams{TenantID: "t1", Limit: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(2))
	})
})
