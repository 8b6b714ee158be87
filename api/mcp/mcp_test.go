package mcp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vecindex/api/mcp"
	"github.com/papercomputeco/vecindex/pkg/logger"
	testutils "github.com/papercomputeco/vecindex/pkg/utils/test"
)

var _ = Describe("MCP Server", func() {
	var h *testutils.Harness

	BeforeEach(func() {
		var err error
		h, err = testutils.NewHarness(testutils.HarnessOptions{})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("returns an error when the searcher is nil", func() {
			_, err := mcp.NewServer(mcp.Config{TenantID: "t1", Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("searcher is required")))
		})

		It("returns an error when the tenant is empty", func() {
			_, err := mcp.NewServer(mcp.Config{Searcher: h.Service, Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("tenant is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Searcher: h.Service, TenantID: "t1"})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("creates a server with an HTTP handler", func() {
			server, err := mcp.NewServer(mcp.Config{Searcher: h.Service, TenantID: "t1", Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
			Expect(server.MCPServer()).NotTo(BeNil())
		})

		It("creates an empty server in noop mode", func() {
			server, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})
	})
})
