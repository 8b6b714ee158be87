//go:build cgo

package sqlitevec_test

import (
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	testutils "github.com/papercomputeco/vecindex/pkg/utils/test"
	"github.com/papercomputeco/vecindex/pkg/vector"
	"github.com/papercomputeco/vecindex/pkg/vector/sqlitevec"
)

var _ = Describe("SQLiteVecDriver", func() {
	var logger *zap.Logger

	BeforeEach(func() {
		logger = zap.NewNop()
	})

	Describe("NewSQLiteVecDriver", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{DBPath: ""}, logger)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("should create a driver with an in-memory database", func() {
			driver, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath:     ":memory:",
				Dimensions: 4,
			}, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver).NotTo(BeNil())
			Expect(driver.ID()).To(Equal(sqlitevec.DriverID))
			Expect(driver.Close()).To(Succeed())
		})

		It("should error when dimension not specified", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath: ":memory:",
			}, logger)
			Expect(err).To(HaveOccurred())
		})

		It("should reject inner product distance", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath:     ":memory:",
				Dimensions: 4,
				Distance:   vector.DistanceInnerProduct,
			}, logger)
			Expect(err).To(MatchError(ContainSubstring("does not support distance")))
		})
	})

	Describe("contract", func() {
		testutils.DescribeDriverContract(func() vector.Driver {
			d, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath:     ":memory:",
				Dimensions: 4,
			}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			return d
		}, 4)
	})

	Describe("documents", func() {
		var (
			ctx    context.Context
			driver *sqlitevec.SQLiteVecDriver
		)

		BeforeEach(func() {
			ctx = context.Background()
			var err error
			driver, err = sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath:     ":memory:",
				Dimensions: 4,
			}, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.EnsureReady(ctx)).To(Succeed())
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("should reject embeddings of the wrong width", func() {
			err := driver.Upsert(ctx, vector.Document{
				EntityID:  "e",
				RecordID:  "r",
				TenantID:  "t",
				Embedding: []float32{0.1, 0.2},
			})
			Expect(err).To(MatchError(ContainSubstring("store expects 4")))
		})

		It("should round-trip presentation fields", func() {
			Expect(driver.Upsert(ctx, vector.Document{
				EntityID:       "products:item",
				RecordID:       "p1",
				TenantID:       "t1",
				OrganizationID: "o1",
				Checksum:       "abc",
				Embedding:      []float32{0.1, 0.2, 0.3, 0.4},
				URL:            "/products/p1",
				Presenter:      &vector.Presenter{Title: "Widget", Subtitle: "Blue"},
				Links:          []vector.Link{{Href: "/products/p1/edit", Label: "Edit"}},
				Payload:        json.RawMessage(`{"sku":"W1"}`),
			})).To(Succeed())

			docs, err := driver.List(ctx, vector.ListParams{TenantID: "t1", OrganizationID: "o1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))

			doc := docs[0]
			Expect(doc.DriverID).To(Equal(sqlitevec.DriverID))
			Expect(doc.OrganizationID).To(Equal("o1"))
			Expect(doc.URL).To(Equal("/products/p1"))
			Expect(doc.Presenter).To(Equal(&vector.Presenter{Title: "Widget", Subtitle: "Blue"}))
			Expect(doc.Links).To(ConsistOf(vector.Link{Href: "/products/p1/edit", Label: "Edit"}))
			Expect(string(doc.Payload)).To(MatchJSON(`{"sku":"W1"}`))
			Expect(doc.CreatedAt.IsZero()).To(BeFalse())
		})

		It("should report the indexed dimension", func() {
			_, ok, err := driver.IndexedDimension(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			Expect(driver.Upsert(ctx, vector.Document{
				EntityID: "e", RecordID: "r", TenantID: "t",
				Embedding: []float32{0.1, 0.2, 0.3, 0.4},
			})).To(Succeed())

			dim, ok, err := driver.IndexedDimension(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(dim).To(Equal(4))
		})

		It("should keep drivers sharing one database apart", func() {
			Expect(driver.Upsert(ctx, vector.Document{
				EntityID: "e", RecordID: "r", TenantID: "t", Checksum: "abc",
				Embedding: []float32{0.1, 0.2, 0.3, 0.4},
			})).To(Succeed())

			hits, err := driver.Query(ctx, []float32{0.1, 0.2, 0.3, 0.4}, 5, vector.QueryFilter{TenantID: "t"})
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(1))
			Expect(hits[0].Score).To(BeNumerically("~", 1, 1e-4))
		})
	})
})
