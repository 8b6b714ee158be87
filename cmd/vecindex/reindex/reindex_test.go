package reindexcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	reindexcmder "github.com/papercomputeco/vecindex/cmd/vecindex/reindex"
)

const memoryConfig = `
[vector_store]
provider = "memory"

[records]
provider = "memory"

[[entities]]
id = "products:item"
module = "products"
fields = ["name"]

[[entities]]
id = "orders:order"
module = "orders"
disabled = true
fields = ["ref"]
`

var _ = Describe("NewReindexCmd", func() {
	var (
		configDir string
		out       *bytes.Buffer
	)

	BeforeEach(func() {
		var err error
		configDir, err = os.MkdirTemp("", "reindex-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, configDir)
		Expect(os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(memoryConfig), 0o600)).To(Succeed())
		out = &bytes.Buffer{}
	})

	newCmd := func(args ...string) *cobra.Command {
		cmd := reindexcmder.NewReindexCmd()
		cmd.PersistentFlags().String("config-dir", "", "")
		cmd.PersistentFlags().Bool("debug", false, "")
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(append([]string{"--config-dir", configDir}, args...))
		return cmd
	}

	It("creates a command with the correct use string", func() {
		cmd := reindexcmder.NewReindexCmd()
		Expect(cmd.Use).To(Equal("reindex [entity]"))
		Expect(cmd.Flags().Lookup("no-purge")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("tenant")).NotTo(BeNil())
	})

	It("accepts at most one entity", func() {
		cmd := reindexcmder.NewReindexCmd()
		Expect(cmd.Args(cmd, []string{"a", "b"})).NotTo(Succeed())
		Expect(cmd.Args(cmd, []string{"a"})).To(Succeed())
	})

	It("requires a tenant", func() {
		err := newCmd().Execute()
		Expect(err).To(MatchError(ContainSubstring("tenant is required")))
	})

	It("reindexes every enabled entity", func() {
		Expect(newCmd("--tenant", "acme").Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("acme"))
		Expect(out.String()).To(ContainSubstring("products:item"))
		Expect(out.String()).To(ContainSubstring("0 indexed"))
		Expect(out.String()).NotTo(ContainSubstring("orders:order"))
	})

	It("reindexes a single entity without purging", func() {
		Expect(newCmd("products:item", "--tenant", "acme", "--no-purge").Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("products:item"))
	})

	It("reports entities that fail", func() {
		err := newCmd("missing:entity", "--tenant", "acme").Execute()
		Expect(err).To(MatchError(ContainSubstring("1 of 1 entities failed")))
		Expect(out.String()).To(ContainSubstring("missing:entity"))
	})

	It("fails when the embedding provider has no credentials", func() {
		GinkgoT().Setenv("OPENAI_API_KEY", "")
		err := newCmd("--tenant", "acme", "--embedding-provider", "openai").Execute()
		Expect(err).To(MatchError(ContainSubstring("not configured")))
	})
})
