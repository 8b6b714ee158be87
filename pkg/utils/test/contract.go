package testutils

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vecindex/pkg/vector"
)

// DescribeDriverContract registers the behavior every vector.Driver must
// show. newDriver returns a ready, empty driver storing dims-wide vectors.
func DescribeDriverContract(newDriver func() vector.Driver, dims int) {
	var (
		ctx    context.Context
		driver vector.Driver
	)

	vec := func(seed string) []float32 { return HashVector(seed, dims) }

	doc := func(entity, record, tenant, org, seed string) vector.Document {
		return vector.Document{
			EntityID:       entity,
			RecordID:       record,
			TenantID:       tenant,
			OrganizationID: org,
			Checksum:       "sum-" + seed,
			Embedding:      vec(seed),
			Presenter:      &vector.Presenter{Title: record},
		}
	}

	ids := func(hits []vector.Hit) []string {
		out := make([]string, len(hits))
		for i, h := range hits {
			out[i] = h.RecordID
		}
		return out
	}

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
		Expect(driver.EnsureReady(ctx)).To(Succeed())
	})

	AfterEach(func() {
		Expect(driver.Close()).To(Succeed())
	})

	It("tolerates repeated EnsureReady calls", func() {
		Expect(driver.EnsureReady(ctx)).To(Succeed())
		Expect(driver.EnsureReady(ctx)).To(Succeed())
	})

	It("upserts in place by composite key", func() {
		Expect(driver.Upsert(ctx, doc("e", "r1", "t1", "", "a"))).To(Succeed())
		Expect(driver.Upsert(ctx, doc("e", "r1", "t1", "", "b"))).To(Succeed())

		sum, ok, err := driver.GetChecksum(ctx, "e", "r1", "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(sum).To(Equal("sum-b"))

		docs, err := driver.List(ctx, vector.ListParams{TenantID: "t1", Limit: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(1))
	})

	It("reports missing checksums", func() {
		_, ok, err := driver.GetChecksum(ctx, "e", "missing", "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("treats deleting a missing document as a no-op", func() {
		Expect(driver.Delete(ctx, "e", "missing", "t1")).To(Succeed())
	})

	It("never returns documents from another tenant", func() {
		Expect(driver.Upsert(ctx, doc("e", "mine", "A", "", "x"))).To(Succeed())
		Expect(driver.Upsert(ctx, doc("e", "theirs", "B", "", "q"))).To(Succeed())

		// Query with B's exact vector: it must still not leak.
		hits, err := driver.Query(ctx, vec("q"), 10, vector.QueryFilter{TenantID: "A"})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(hits)).To(ConsistOf("mine"))
	})

	It("shows global documents to every organization and hides other organizations", func() {
		Expect(driver.Upsert(ctx, doc("e", "global", "t1", "", "g"))).To(Succeed())
		Expect(driver.Upsert(ctx, doc("e", "org-x", "t1", "X", "x"))).To(Succeed())
		Expect(driver.Upsert(ctx, doc("e", "org-y", "t1", "Y", "y"))).To(Succeed())

		hits, err := driver.Query(ctx, vec("x"), 10, vector.QueryFilter{TenantID: "t1", OrganizationID: "Y"})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(hits)).To(ConsistOf("global", "org-y"))

		hits, err = driver.Query(ctx, vec("x"), 10, vector.QueryFilter{TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(hits)).To(ConsistOf("global", "org-x", "org-y"))
	})

	It("filters by entity and ranks the closest first", func() {
		Expect(driver.Upsert(ctx, doc("a", "near", "t1", "", "target"))).To(Succeed())
		Expect(driver.Upsert(ctx, doc("a", "far", "t1", "", "other"))).To(Succeed())
		Expect(driver.Upsert(ctx, doc("b", "skip", "t1", "", "target"))).To(Succeed())

		hits, err := driver.Query(ctx, vec("target"), 10, vector.QueryFilter{TenantID: "t1", EntityIDs: []string{"a"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(hits)).To(Equal([]string{"near", "far"}))
		Expect(hits[0].Score).To(BeNumerically(">", hits[1].Score))
		Expect(hits[0].Score).To(BeNumerically("~", 1, 1e-4))
		Expect(hits[0].Checksum).To(Equal("sum-target"))
		Expect(hits[0].Presenter.Title).To(Equal("near"))
	})

	It("respects the query limit", func() {
		for _, r := range []string{"1", "2", "3"} {
			Expect(driver.Upsert(ctx, doc("e", r, "t1", "", r))).To(Succeed())
		}
		hits, err := driver.Query(ctx, vec("1"), 2, vector.QueryFilter{TenantID: "t1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(hits).To(HaveLen(2))
	})

	It("purges one entity within one tenant", func() {
		Expect(driver.Upsert(ctx, doc("a", "1", "t1", "", "1"))).To(Succeed())
		Expect(driver.Upsert(ctx, doc("a", "2", "t2", "", "2"))).To(Succeed())
		Expect(driver.Upsert(ctx, doc("b", "3", "t1", "", "3"))).To(Succeed())

		Expect(driver.Purge(ctx, "a", "t1")).To(Succeed())

		_, ok, err := driver.GetChecksum(ctx, "a", "1", "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		_, ok, _ = driver.GetChecksum(ctx, "a", "2", "t2")
		Expect(ok).To(BeTrue())
		_, ok, _ = driver.GetChecksum(ctx, "b", "3", "t1")
		Expect(ok).To(BeTrue())
	})

	It("lists with entity filter and pagination", func() {
		for _, r := range []string{"1", "2", "3"} {
			Expect(driver.Upsert(ctx, doc("a", r, "t1", "", r))).To(Succeed())
		}
		Expect(driver.Upsert(ctx, doc("b", "4", "t1", "", "4"))).To(Succeed())

		all, err := driver.List(ctx, vector.ListParams{TenantID: "t1", EntityID: "a", Limit: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(3))
		for _, d := range all {
			Expect(d.EntityID).To(Equal("a"))
		}

		page, err := driver.List(ctx, vector.ListParams{TenantID: "t1", EntityID: "a", Limit: 2, Offset: 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(page).To(HaveLen(1))
	})
}
