package vectorutils_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vecindex/pkg/vector"
	vectorutils "github.com/papercomputeco/vecindex/pkg/vector/utils"
)

var _ = Describe("NewVectorDriver", func() {
	It("builds the memory driver", func() {
		d, err := vectorutils.NewVectorDriver(&vectorutils.NewVectorDriverOpts{ProviderType: "memory"})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.ID()).To(Equal("memory"))
	})

	It("builds a sqlitevec driver", func() {
		d, err := vectorutils.NewVectorDriver(&vectorutils.NewVectorDriverOpts{
			ProviderType: "sqlitevec",
			TargetURL:    ":memory:",
			Dimensions:   4,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Close()).To(Succeed())
	})

	It("rejects unknown providers", func() {
		_, err := vectorutils.NewVectorDriver(&vectorutils.NewVectorDriverOpts{ProviderType: "faiss"})
		Expect(err).To(MatchError(ContainSubstring("unsupported vector store provider: faiss")))
	})
})

var _ = Describe("NewRegistry", func() {
	It("registers unimplemented backends as loud stubs", func() {
		registry, driver, err := vectorutils.NewRegistry(&vectorutils.NewVectorDriverOpts{ProviderType: "memory"})
		Expect(err).NotTo(HaveOccurred())
		Expect(driver.ID()).To(Equal("memory"))
		Expect(registry.IDs()).To(ConsistOf("memory", "opensearch"))

		stub, err := registry.Get("opensearch")
		Expect(err).NotTo(HaveOccurred())
		Expect(stub.EnsureReady(context.Background())).To(MatchError(vector.ErrDriverNotImplemented))

		_, err = registry.Get("weaviate")
		Expect(err).To(MatchError(vector.ErrDriverNotRegistered))
	})
})
