package checksum_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vecindex/pkg/checksum"
)

var _ = Describe("Compute", func() {
	It("is stable across key ordering", func() {
		a := map[string]any{
			"id":   "p1",
			"name": "Widget",
			"nested": map[string]any{
				"b": 2,
				"a": []any{"x", "y"},
			},
		}
		b := map[string]any{
			"nested": map[string]any{
				"a": []any{"x", "y"},
				"b": 2,
			},
			"name": "Widget",
			"id":   "p1",
		}

		Expect(checksum.MustCompute(a)).To(Equal(checksum.MustCompute(b)))
	})

	It("returns the same string for repeated calls", func() {
		v := map[string]any{"id": "p1", "name": "Widget"}
		Expect(checksum.MustCompute(v)).To(Equal(checksum.MustCompute(v)))
	})

	It("treats a struct and an equivalent map alike", func() {
		type product struct {
			Name string `json:"name"`
			ID   string `json:"id"`
		}
		Expect(checksum.MustCompute(product{ID: "p1", Name: "Widget"})).
			To(Equal(checksum.MustCompute(map[string]any{"id": "p1", "name": "Widget"})))
	})

	DescribeTable("detects changes",
		func(changed map[string]any) {
			base := map[string]any{"id": "p1", "name": "Widget", "tags": []any{"a"}}
			Expect(checksum.MustCompute(changed)).NotTo(Equal(checksum.MustCompute(base)))
		},
		Entry("value change", map[string]any{"id": "p1", "name": "Widget Pro", "tags": []any{"a"}}),
		Entry("added key", map[string]any{"id": "p1", "name": "Widget", "tags": []any{"a"}, "sku": "W-1"}),
		Entry("removed key", map[string]any{"id": "p1", "name": "Widget"}),
		Entry("nested change", map[string]any{"id": "p1", "name": "Widget", "tags": []any{"b"}}),
		Entry("null vs missing", map[string]any{"id": "p1", "name": "Widget", "tags": nil}),
	)

	It("fails for values that cannot be encoded", func() {
		_, err := checksum.Compute(map[string]any{"fn": func() {}})
		Expect(err).To(HaveOccurred())
	})
})
