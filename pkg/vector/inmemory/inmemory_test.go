package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	testutils "github.com/papercomputeco/vecindex/pkg/utils/test"
	"github.com/papercomputeco/vecindex/pkg/vector"
	"github.com/papercomputeco/vecindex/pkg/vector/inmemory"
)

var _ = Describe("Driver", func() {
	Describe("contract", func() {
		testutils.DescribeDriverContract(func() vector.Driver {
			return inmemory.NewDriver("")
		}, 4)
	})

	It("defaults its id", func() {
		Expect(inmemory.NewDriver("").ID()).To(Equal(inmemory.DriverID))
		Expect(inmemory.NewDriver("custom").ID()).To(Equal("custom"))
	})

	It("keeps the creation time across updates", func() {
		ctx := context.Background()
		d := inmemory.NewDriver("")
		doc := vector.Document{EntityID: "e", RecordID: "r", TenantID: "t", Embedding: []float32{1, 0}}

		Expect(d.Upsert(ctx, doc)).To(Succeed())
		first, err := d.List(ctx, vector.ListParams{TenantID: "t"})
		Expect(err).NotTo(HaveOccurred())

		Expect(d.Upsert(ctx, doc)).To(Succeed())
		second, err := d.List(ctx, vector.ListParams{TenantID: "t"})
		Expect(err).NotTo(HaveOccurred())

		Expect(second[0].CreatedAt).To(Equal(first[0].CreatedAt))
		Expect(second[0].UpdatedAt).NotTo(BeTemporally("<", first[0].UpdatedAt))
		Expect(second[0].Embedding).To(BeNil())
	})

	It("reports the indexed dimension", func() {
		ctx := context.Background()
		d := inmemory.NewDriver("")

		_, ok, err := d.IndexedDimension(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		Expect(d.Upsert(ctx, vector.Document{EntityID: "e", RecordID: "r", TenantID: "t", Embedding: []float32{1, 2, 3}})).To(Succeed())
		dim, ok, err := d.IndexedDimension(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(dim).To(Equal(3))
	})
})
