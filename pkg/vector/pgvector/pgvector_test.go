package pgvector

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/vector"
)

var _ = Describe("SafeIdentifier", func() {
	DescribeTable("accepts only alphanumerics and underscores",
		func(name, expected string) {
			Expect(SafeIdentifier(name, DefaultTable)).To(Equal(expected))
		},
		Entry("plain name", "search_docs", "search_docs"),
		Entry("mixed case with digits", "Docs_2024", "Docs_2024"),
		Entry("empty", "", DefaultTable),
		Entry("statement injection", "docs; DROP TABLE users", DefaultTable),
		Entry("quoted", `"docs"`, DefaultTable),
		Entry("schema qualified", "public.docs", DefaultTable),
		Entry("hyphen", "search-docs", DefaultTable),
		Entry("too long", strings.Repeat("a", 64), DefaultTable),
	)
})

var _ = Describe("schema", func() {
	It("sizes the embedding column and picks the metric operator class", func() {
		stmts := strings.Join(schemaStatements("docs", 1536, vector.DistanceL2), "\n")
		Expect(stmts).To(ContainSubstring("embedding vector(1536) NOT NULL"))
		Expect(stmts).To(ContainSubstring("USING hnsw (embedding vector_l2_ops)"))
		Expect(stmts).To(ContainSubstring("ON docs (driver_id, entity_id, record_id, tenant_id)"))
		Expect(stmts).To(ContainSubstring("CREATE TABLE IF NOT EXISTS docs_migrations"))
	})

	It("defaults to cosine", func() {
		stmts := strings.Join(schemaStatements("docs", 4, ""), "\n")
		Expect(stmts).To(ContainSubstring("vector_cosine_ops"))
	})

	It("gives every migration a unique name", func() {
		seen := map[string]bool{}
		for _, m := range migrations("docs") {
			Expect(seen).NotTo(HaveKey(m.name))
			seen[m.name] = true
			Expect(m.sql).To(ContainSubstring("ON docs"))
		}
	})
})

var _ = Describe("buildQuery", func() {
	It("always scopes by driver and tenant", func() {
		sql, args := buildQuery("docs", vector.DistanceCosine, "pgvector", "vec", 5, vector.QueryFilter{TenantID: "t1"})
		Expect(sql).To(ContainSubstring("driver_id = $2 AND tenant_id = $3"))
		Expect(sql).To(ContainSubstring("embedding <=> $1::vector AS distance"))
		Expect(sql).NotTo(ContainSubstring("organization_id IS NULL"))
		Expect(sql).To(ContainSubstring("LIMIT $4"))
		Expect(args).To(Equal([]any{"vec", "pgvector", "t1", 5}))
	})

	It("admits global rows alongside the requested organization", func() {
		sql, args := buildQuery("docs", vector.DistanceCosine, "pgvector", "vec", 5, vector.QueryFilter{
			TenantID:       "t1",
			OrganizationID: "o1",
			EntityIDs:      []string{"products:item"},
		})
		Expect(sql).To(ContainSubstring("(organization_id IS NULL OR organization_id = $4)"))
		Expect(sql).To(ContainSubstring("entity_id = ANY($5)"))
		Expect(sql).To(ContainSubstring("LIMIT $6"))
		Expect(args).To(HaveLen(6))
		Expect(args[4]).To(Equal([]string{"products:item"}))
	})

	It("uses the inner product operator for ip", func() {
		sql, _ := buildQuery("docs", vector.DistanceInnerProduct, "pgvector", "vec", 5, vector.QueryFilter{TenantID: "t1"})
		Expect(sql).To(ContainSubstring("<#>"))
	})
})

var _ = Describe("buildList", func() {
	It("orders by update time by default", func() {
		sql, args := buildList("docs", "pgvector", vector.ListParams{TenantID: "t1", Limit: 10})
		Expect(sql).To(ContainSubstring("ORDER BY updated_at DESC"))
		Expect(sql).To(ContainSubstring("LIMIT $3 OFFSET $4"))
		Expect(args).To(Equal([]any{"pgvector", "t1", 10, 0}))
	})

	It("filters by entity and orders by creation when asked", func() {
		sql, args := buildList("docs", "pgvector", vector.ListParams{
			TenantID:       "t1",
			OrganizationID: "o1",
			EntityID:       "products:item",
			Limit:          20,
			Offset:         40,
			OrderBy:        vector.OrderByCreated,
		})
		Expect(sql).To(ContainSubstring("entity_id = $4"))
		Expect(sql).To(ContainSubstring("ORDER BY created_at DESC"))
		Expect(sql).To(ContainSubstring("LIMIT $5 OFFSET $6"))
		Expect(args).To(Equal([]any{"pgvector", "t1", "o1", "products:item", 20, 40}))
	})
})

var _ = Describe("NewDriver", func() {
	It("requires a connection string", func() {
		_, err := NewDriver(Config{Dimensions: 4}, zap.NewNop())
		Expect(err).To(MatchError(ContainSubstring("connection string is required")))
	})

	It("requires dimensions", func() {
		_, err := NewDriver(Config{ConnString: "postgres://localhost/test"}, zap.NewNop())
		Expect(err).To(MatchError(ContainSubstring("dimensions must be configured")))
	})

	It("falls back to the default table for unsafe names", func() {
		d, err := NewDriver(Config{
			ConnString: "postgres://localhost/test",
			Dimensions: 4,
			Table:      "docs; DROP TABLE users",
		}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		Expect(d.table).To(Equal(DefaultTable))
		Expect(d.ID()).To(Equal(DriverID))
	})
})

var _ = Describe("row", func() {
	It("maps null columns to empty values", func() {
		r := row{entityID: "e", recordID: "r", checksum: "c"}
		doc, err := r.document()
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.OrganizationID).To(BeEmpty())
		Expect(doc.Presenter).To(BeNil())
		Expect(doc.Links).To(BeNil())
	})

	It("decodes json columns", func() {
		org := "o1"
		r := row{
			entityID:       "e",
			recordID:       "r",
			organizationID: &org,
			presenter:      []byte(`{"title":"Widget"}`),
			links:          []byte(`[{"href":"/p/1"}]`),
			payload:        []byte(`{"sku":"W1"}`),
		}
		doc, err := r.document()
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.OrganizationID).To(Equal("o1"))
		Expect(doc.Presenter.Title).To(Equal("Widget"))
		Expect(doc.Links).To(ConsistOf(vector.Link{Href: "/p/1"}))
		Expect(string(doc.Payload)).To(Equal(`{"sku":"W1"}`))
	})
})
