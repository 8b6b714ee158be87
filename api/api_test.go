package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/papercomputeco/vecindex/api"
	"github.com/papercomputeco/vecindex/pkg/eventstream"
	"github.com/papercomputeco/vecindex/pkg/indexer"
	"github.com/papercomputeco/vecindex/pkg/logger"
	testutils "github.com/papercomputeco/vecindex/pkg/utils/test"
)

type fakeSink struct {
	mu     sync.Mutex
	events []*eventstream.RecordEvent
	full   bool
}

func (f *fakeSink) Enqueue(event *eventstream.RecordEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.events = append(f.events, event)
	return true
}

func (f *fakeSink) received() []*eventstream.RecordEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*eventstream.RecordEvent(nil), f.events...)
}

func request(method, target, tenant, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenant != "" {
		req.Header.Set(api.HeaderTenant, tenant)
	}
	return req
}

func decode(resp *http.Response, into any) {
	defer resp.Body.Close()
	ExpectWithOffset(1, json.NewDecoder(resp.Body).Decode(into)).To(Succeed())
}

var _ = Describe("Server", func() {
	var (
		h      *testutils.Harness
		sink   *fakeSink
		server *api.Server
		ctx    context.Context
	)

	newServer := func(cfg api.Config) *api.Server {
		s, err := api.NewServer(cfg, h.Service, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	index := func(id, tenant string) {
		outcome, err := h.Service.IndexRecord(ctx, indexer.RecordRef{
			EntityID: testutils.ProductEntity,
			RecordID: id,
			TenantID: tenant,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome).To(Equal(indexer.OutcomeIndexed))
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		h, err = testutils.NewHarness(testutils.HarnessOptions{})
		Expect(err).NotTo(HaveOccurred())
		sink = &fakeSink{}
		server = newServer(api.Config{Events: sink, Gatherer: prometheus.NewRegistry()})
	})

	It("requires an index service", func() {
		_, err := api.NewServer(api.Config{}, nil, logger.Nop())
		Expect(err).To(HaveOccurred())
	})

	It("answers ping", func() {
		resp, err := server.Test(request(http.MethodGet, "/ping", "", ""))
		Expect(err).NotTo(HaveOccurred())
		body, _ := io.ReadAll(resp.Body)
		Expect(string(body)).To(Equal("pong"))
	})

	Describe("search", func() {
		BeforeEach(func() {
			Expect(h.PutProduct("p1", "t1", "", "Red kettle", "Boils water")).To(Succeed())
			Expect(h.PutProduct("p2", "t1", "", "Blue mug", "Holds tea")).To(Succeed())
			Expect(h.PutProduct("p3", "t2", "", "Red kettle", "Other tenant")).To(Succeed())
			index("p1", "t1")
			index("p2", "t1")
			index("p3", "t2")
		})

		It("returns hits of the caller's tenant only", func() {
			resp, err := server.Test(request(http.MethodGet, "/search?q=Red+kettle", "t1", ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out indexer.SearchOutput
			decode(resp, &out)
			Expect(out.Query).To(Equal("Red kettle"))
			Expect(out.Results).NotTo(BeEmpty())
			for _, hit := range out.Results {
				Expect(hit.RecordID).NotTo(Equal("p3"))
				Expect(hit.EntityID).To(Equal(testutils.ProductEntity))
			}
		})

		It("serves the versioned route and accepts query as an alias", func() {
			resp, err := server.Test(request(http.MethodGet, "/v1/search?query=mug&limit=1", "t1", ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out indexer.SearchOutput
			decode(resp, &out)
			Expect(out.Results).To(HaveLen(1))
		})

		It("clamps large limits", func() {
			resp, err := server.Test(request(http.MethodGet, "/search?q=kettle&limit=500", "t1", ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		DescribeTable("rejects bad requests",
			func(target, tenant string, status int) {
				resp, err := server.Test(request(http.MethodGet, target, tenant, ""))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(status))

				var body api.ErrorResponse
				decode(resp, &body)
				Expect(body.Error).NotTo(BeEmpty())
			},
			Entry("missing tenant", "/search?q=kettle", "", http.StatusUnauthorized),
			Entry("missing query", "/search", "t1", http.StatusBadRequest),
			Entry("blank query", "/search?q=%20%20", "t1", http.StatusBadRequest),
			Entry("zero limit", "/search?q=kettle&limit=0", "t1", http.StatusBadRequest),
			Entry("non-numeric limit", "/search?q=kettle&limit=ten", "t1", http.StatusBadRequest),
			Entry("unknown driver", "/search?q=kettle&driverId=nope", "t1", http.StatusServiceUnavailable),
		)

		It("answers 503 when the embedding provider is unavailable", func() {
			var err error
			h, err = testutils.NewHarness(testutils.HarnessOptions{Provider: "openai"})
			Expect(err).NotTo(HaveOccurred())
			server = newServer(api.Config{Gatherer: prometheus.NewRegistry()})

			resp, err := server.Test(request(http.MethodGet, "/search?q=kettle", "t1", ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})

		It("answers 500 with a generic message on driver failure", func() {
			h.Driver.FailQuery = errors.New("connection reset by peer")

			resp, err := server.Test(request(http.MethodGet, "/search?q=kettle", "t1", ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))

			var body api.ErrorResponse
			decode(resp, &body)
			Expect(body.Error).NotTo(ContainSubstring("connection reset"))
		})
	})

	Describe("index routes", func() {
		BeforeEach(func() {
			Expect(h.PutProduct("p1", "t1", "", "Red kettle", "Boils water")).To(Succeed())
		})

		It("indexes and deletes one record", func() {
			resp, err := server.Test(request(http.MethodPost, "/v1/index/records/products:item/p1", "t1", ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out api.RecordResponse
			decode(resp, &out)
			Expect(out.Outcome).To(Equal(indexer.OutcomeIndexed))
			Expect(h.Driver.Len()).To(Equal(1))

			resp, err = server.Test(request(http.MethodDelete, "/v1/index/records/products:item/p1", "t1", ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(h.Driver.Len()).To(Equal(0))
		})

		It("ignores unregistered entities", func() {
			resp, err := server.Test(request(http.MethodPost, "/v1/index/records/orders:order/o1", "t1", ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out api.RecordResponse
			decode(resp, &out)
			Expect(out.Outcome).To(Equal(indexer.OutcomeIgnored))
		})

		It("lists entries of the tenant", func() {
			index("p1", "t1")

			resp, err := server.Test(request(http.MethodGet, "/v1/index/entries?limit=10", "t1", ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out indexer.ListOutput
			decode(resp, &out)
			Expect(out.Entries).To(HaveLen(1))
			Expect(out.Entries[0].RecordID).To(Equal("p1"))
			Expect(out.Entries[0].Presenter.Title).To(Equal("Red kettle"))
		})

		It("rejects a negative offset", func() {
			resp, err := server.Test(request(http.MethodGet, "/v1/index/entries?offset=-1", "t1", ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("reindexes one entity, purging first by default", func() {
			resp, err := server.Test(request(http.MethodPost, "/v1/index/reindex", "t1", `{"entityId":"products:item"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out api.ReindexResponse
			decode(resp, &out)
			Expect(out.Results).To(HaveLen(1))
			Expect(out.Results[0].Indexed).To(Equal(1))
			Expect(h.Driver.Purges()).To(ConsistOf(testutils.ProductEntity))
		})

		It("reindexes every entity without purging when asked", func() {
			resp, err := server.Test(request(http.MethodPost, "/v1/index/reindex", "t1", `{"purgeFirst":false}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out api.ReindexResponse
			decode(resp, &out)
			Expect(out.Results).To(HaveLen(1))
			Expect(h.Driver.Purges()).To(BeEmpty())
		})

		It("answers 404 for reindexing an unregistered entity", func() {
			resp, err := server.Test(request(http.MethodPost, "/v1/index/reindex", "t1", `{"entityId":"orders:order"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("events", func() {
		It("queues an event under the header tenant", func() {
			body := `{"event_type":"updated","entity_id":"products:item","record_id":"p1","tenant_id":"spoofed"}`
			resp, err := server.Test(request(http.MethodPost, "/v1/events", "t1", body))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

			events := sink.received()
			Expect(events).To(HaveLen(1))
			Expect(events[0].TenantID).To(Equal("t1"))
			Expect(events[0].SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		})

		It("rejects invalid events", func() {
			resp, err := server.Test(request(http.MethodPost, "/v1/events", "t1", `{"event_type":"renamed","entity_id":"products:item","record_id":"p1"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(sink.received()).To(BeEmpty())
		})

		It("answers 503 when the queue is full", func() {
			sink.full = true
			resp, err := server.Test(request(http.MethodPost, "/v1/events", "t1", `{"event_type":"deleted","entity_id":"products:item","record_id":"p1"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})

		It("is not served without a sink", func() {
			server = newServer(api.Config{Gatherer: prometheus.NewRegistry()})
			resp, err := server.Test(request(http.MethodPost, "/v1/events", "t1", `{}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("health", func() {
		It("reports ok with the provider and drivers", func() {
			resp, err := server.Test(request(http.MethodGet, "/v1/health", "", ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out api.HealthResponse
			decode(resp, &out)
			Expect(out.Status).To(Equal("ok"))
			Expect(out.Embedding.Provider).To(Equal("ollama"))
			Expect(out.Embedding.Available).To(BeTrue())
			Expect(out.Drivers).To(HaveKeyWithValue("memory", "ready"))
			Expect(out.Entities).To(ConsistOf(testutils.ProductEntity))
		})

		It("reports degraded when embeddings are unavailable", func() {
			var err error
			h, err = testutils.NewHarness(testutils.HarnessOptions{Provider: "openai"})
			Expect(err).NotTo(HaveOccurred())
			server = newServer(api.Config{Gatherer: prometheus.NewRegistry()})

			resp, err := server.Test(request(http.MethodGet, "/v1/health", "", ""))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))

			var out api.HealthResponse
			decode(resp, &out)
			Expect(out.Status).To(Equal("degraded"))
			Expect(out.Embedding.Available).To(BeFalse())
		})
	})

	It("exposes metrics from the configured gatherer", func() {
		reg := prometheus.NewRegistry()
		counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "vecindex_test_total", Help: "test"})
		reg.MustRegister(counter)
		counter.Inc()
		server = newServer(api.Config{Gatherer: reg})

		resp, err := server.Test(request(http.MethodGet, "/metrics", "", ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		body, _ := io.ReadAll(resp.Body)
		Expect(string(body)).To(ContainSubstring("vecindex_test_total 1"))
	})
})
