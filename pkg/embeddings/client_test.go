package embeddings_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vecindex/pkg/embeddings"
	testutils "github.com/papercomputeco/vecindex/pkg/utils/test"
)

type factoryRecorder struct {
	mu        sync.Mutex
	built     []embeddings.ProviderConfig
	creds     []embeddings.Credentials
	embedders []*testutils.MockEmbedder
	err       error
}

func (f *factoryRecorder) factory(cfg embeddings.ProviderConfig, creds embeddings.Credentials) (embeddings.Embedder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	e := testutils.NewMockEmbedder()
	f.built = append(f.built, cfg)
	f.creds = append(f.creds, creds)
	f.embedders = append(f.embedders, e)
	return e, nil
}

func (f *factoryRecorder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

var _ = Describe("Client", func() {
	var (
		ctx      context.Context
		recorder *factoryRecorder
		env      map[string]string
	)

	newClient := func(provider string) *embeddings.Client {
		c, err := embeddings.NewClient(embeddings.ClientConfig{
			Provider: embeddings.ProviderConfig{ProviderID: provider},
			Factory:  recorder.factory,
			Lookup:   lookupFrom(env),
		})
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	BeforeEach(func() {
		ctx = context.Background()
		recorder = &factoryRecorder{}
		env = map[string]string{}
	})

	It("requires a factory", func() {
		_, err := embeddings.NewClient(embeddings.ClientConfig{})
		Expect(err).To(HaveOccurred())
	})

	It("applies provider defaults to the initial config", func() {
		c := newClient("openai")
		Expect(c.Config().Model).To(Equal("text-embedding-3-small"))
		Expect(c.EffectiveDimension()).To(Equal(1536))
	})

	Describe("Available", func() {
		It("is true for the local provider", func() {
			Expect(newClient("ollama").Available()).To(BeTrue())
		})

		It("follows the hosted provider's credential", func() {
			c := newClient("openai")
			Expect(c.Available()).To(BeFalse())

			env["OPENAI_API_KEY"] = "sk-1"
			Expect(c.Available()).To(BeTrue())
		})
	})

	Describe("CreateEmbedding", func() {
		It("fails with ErrEmbeddingUnavailable without credentials and builds nothing", func() {
			_, err := newClient("openai").CreateEmbedding(ctx, []string{"hello"})
			Expect(err).To(MatchError(embeddings.ErrEmbeddingUnavailable))
			Expect(recorder.calls()).To(Equal(0))
		})

		DescribeTable("rejects empty payloads without a provider call",
			func(input []string) {
				_, err := newClient("ollama").CreateEmbedding(ctx, input)
				Expect(err).To(MatchError(embeddings.ErrEmptyEmbeddingPayload))
				Expect(recorder.calls()).To(Equal(0))
			},
			Entry("whitespace", []string{"   "}),
			Entry("no fragments", []string{}),
			Entry("nil", nil),
			Entry("blank fragments", []string{"", " \n", "\t"}),
		)

		It("joins fragments with a blank line", func() {
			c := newClient("ollama")
			_, err := c.CreateEmbedding(ctx, []string{"Name: Widget", "  ", "Color: Blue"})
			Expect(err).NotTo(HaveOccurred())
			Expect(recorder.embedders[0].Inputs()).To(Equal([]string{"Name: Widget\n\n  \n\nColor: Blue"}))
		})

		It("reuses the cached provider embedder", func() {
			c := newClient("ollama")
			_, err := c.CreateEmbedding(ctx, []string{"a"})
			Expect(err).NotTo(HaveOccurred())
			_, err = c.CreateEmbedding(ctx, []string{"b"})
			Expect(err).NotTo(HaveOccurred())

			Expect(recorder.calls()).To(Equal(1))
			Expect(recorder.embedders[0].Calls()).To(Equal(2))
		})

		It("passes resolved credentials to the factory", func() {
			env["AWS_ACCESS_KEY_ID"] = "a"
			env["AWS_SECRET_ACCESS_KEY"] = " s "
			env["AWS_REGION"] = "eu-west-1"
			_, err := newClient("bedrock").CreateEmbedding(ctx, []string{"x"})
			Expect(err).NotTo(HaveOccurred())
			Expect(recorder.creds[0]).To(Equal(embeddings.Credentials{
				"AWS_ACCESS_KEY_ID":     "a",
				"AWS_SECRET_ACCESS_KEY": "s",
				"AWS_REGION":            "eu-west-1",
			}))
		})

		It("wraps factory failures", func() {
			recorder.err = errors.New("bad base url")
			_, err := newClient("ollama").CreateEmbedding(ctx, []string{"x"})
			Expect(err).To(MatchError(ContainSubstring("bad base url")))
		})
	})

	Describe("UpdateConfig", func() {
		It("swaps the config, returns the previous one and drops cached embedders", func() {
			env["OPENAI_API_KEY"] = "sk-1"
			c := newClient("ollama")
			_, err := c.CreateEmbedding(ctx, []string{"a"})
			Expect(err).NotTo(HaveOccurred())

			prev := c.UpdateConfig(embeddings.ProviderConfig{ProviderID: "openai"})
			Expect(prev.ProviderID).To(Equal("ollama"))
			Expect(c.Config().ProviderID).To(Equal("openai"))
			Expect(recorder.embedders[0].Closed()).To(BeTrue())

			_, err = c.CreateEmbedding(ctx, []string{"b"})
			Expect(err).NotTo(HaveOccurred())
			Expect(recorder.calls()).To(Equal(2))
			Expect(recorder.built[1].Model).To(Equal("text-embedding-3-small"))
		})

		It("rebuilds the same provider after a model change", func() {
			c := newClient("ollama")
			_, err := c.CreateEmbedding(ctx, []string{"a"})
			Expect(err).NotTo(HaveOccurred())

			c.UpdateConfig(embeddings.ProviderConfig{ProviderID: "ollama", Model: "all-minilm", Dimension: 384})
			_, err = c.CreateEmbedding(ctx, []string{"a"})
			Expect(err).NotTo(HaveOccurred())
			Expect(recorder.calls()).To(Equal(2))
			Expect(recorder.built[1].Model).To(Equal("all-minilm"))
		})
	})
})
