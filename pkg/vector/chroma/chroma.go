// Package chroma provides a Chroma vector database driver implementation.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/vector"
)

const (
	// DriverID is the default id for this driver.
	DriverID = "chromadb"

	// DefaultCollectionName is the default collection name for storing documents.
	DefaultCollectionName = "vecindex"
)

// Metadata keys. Chroma metadata cannot hold null, so global documents
// store an empty organization.
const (
	metaDriverID       = "driver_id"
	metaEntityID       = "entity_id"
	metaRecordID       = "record_id"
	metaTenantID       = "tenant_id"
	metaOrganizationID = "organization_id"
	metaChecksum       = "checksum"
	metaURL            = "url"
	metaPresenter      = "presenter"
	metaLinks          = "links"
	metaPayload        = "payload"
	metaCreatedAt      = "created_at"
	metaUpdatedAt      = "updated_at"
)

// ChromaDriver implements vector.Driver using Chroma's REST API.
type ChromaDriver struct {
	id             string
	baseURL        string
	collectionName string
	collectionID   string
	metric         string
	httpClient     *http.Client
	ready          vector.ReadyOnce
	logger         *zap.Logger
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// DriverID overrides the id documents are stored under.
	DriverID string

	// CollectionName is the name of the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string

	// Distance is cosine (default), l2 or ip.
	Distance string

	// HTTPClient overrides the default client. Used by tests.
	HTTPClient *http.Client
}

// NewChromaDriver creates a new Chroma vector driver. The collection is
// resolved on the first EnsureReady.
func NewChromaDriver(c Config, logger *zap.Logger) (*ChromaDriver, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}

	id := c.DriverID
	if id == "" {
		id = DriverID
	}

	metric := c.Distance
	if metric == "" {
		metric = vector.DistanceCosine
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 60 * time.Second,
		}
	}

	return &ChromaDriver{
		id:             id,
		baseURL:        c.URL,
		collectionName: collectionName,
		metric:         metric,
		httpClient:     httpClient,
		logger:         logger,
	}, nil
}

// ID returns the driver id.
func (d *ChromaDriver) ID() string {
	return d.id
}

// EnsureReady gets or creates the collection once.
func (d *ChromaDriver) EnsureReady(ctx context.Context) error {
	return d.ready.Do(ctx, func(ctx context.Context) error {
		var collection chromaCollection
		err := d.post(ctx, d.databaseURL()+"/collections", chromaCreateCollectionRequest{
			Name:        d.collectionName,
			Metadata:    map[string]any{"hnsw:space": space(d.metric)},
			GetOrCreate: true,
		}, &collection)
		if err != nil {
			return fmt.Errorf("getting or creating collection %q: %w", d.collectionName, err)
		}
		d.collectionID = collection.ID

		d.logger.Info("connected to Chroma",
			zap.String("url", d.baseURL),
			zap.String("collection", d.collectionName),
			zap.String("collection_id", collection.ID),
		)
		return nil
	})
}

// Upsert writes the document at its deterministic id.
func (d *ChromaDriver) Upsert(ctx context.Context, doc vector.Document) error {
	createdAt := time.Now().UTC()
	existing, err := d.get(ctx, chromaGetRequest{
		IDs:     []string{d.docID(doc.EntityID, doc.RecordID, doc.TenantID)},
		Include: []string{"metadatas"},
	})
	if err != nil {
		return err
	}
	if len(existing.Metadatas) > 0 {
		if ms, ok := existing.Metadatas[0][metaCreatedAt].(float64); ok {
			createdAt = time.UnixMilli(int64(ms)).UTC()
		}
	}

	meta, err := documentMetadata(d.id, doc, createdAt, time.Now().UTC())
	if err != nil {
		return err
	}

	err = d.post(ctx, d.collectionURL("upsert"), chromaUpsertRequest{
		IDs:        []string{d.docID(doc.EntityID, doc.RecordID, doc.TenantID)},
		Embeddings: [][]float32{doc.Embedding},
		Metadatas:  []map[string]any{meta},
	}, nil)
	if err != nil {
		return fmt.Errorf("upserting %s/%s: %w", doc.EntityID, doc.RecordID, err)
	}
	return nil
}

// Delete removes one document.
func (d *ChromaDriver) Delete(ctx context.Context, entityID, recordID, tenantID string) error {
	err := d.post(ctx, d.collectionURL("delete"), chromaDeleteRequest{
		IDs: []string{d.docID(entityID, recordID, tenantID)},
	}, nil)
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", entityID, recordID, err)
	}
	return nil
}

// GetChecksum returns the stored checksum for a document.
func (d *ChromaDriver) GetChecksum(ctx context.Context, entityID, recordID, tenantID string) (string, bool, error) {
	resp, err := d.get(ctx, chromaGetRequest{
		IDs:     []string{d.docID(entityID, recordID, tenantID)},
		Include: []string{"metadatas"},
	})
	if err != nil {
		return "", false, err
	}
	if len(resp.IDs) == 0 {
		return "", false, nil
	}

	checksum, _ := resp.Metadatas[0][metaChecksum].(string)
	return checksum, true, nil
}

// Purge removes every document of an entity in a tenant.
func (d *ChromaDriver) Purge(ctx context.Context, entityID, tenantID string) error {
	err := d.post(ctx, d.collectionURL("delete"), chromaDeleteRequest{
		Where: scopeWhere(d.id, tenantID, "", []string{entityID}),
	}, nil)
	if err != nil {
		return fmt.Errorf("purging %s: %w", entityID, err)
	}
	return nil
}

// Query finds the nearest documents visible under filter.
func (d *ChromaDriver) Query(ctx context.Context, embedding []float32, limit int, filter vector.QueryFilter) ([]vector.Hit, error) {
	if limit <= 0 {
		limit = 10
	}

	var queryResp chromaQueryResponse
	err := d.post(ctx, d.collectionURL("query"), chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        limit,
		Where:           scopeWhere(d.id, filter.TenantID, filter.OrganizationID, filter.EntityIDs),
		Include:         []string{"metadatas", "distances"},
	}, &queryResp)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}

	// Process first group (we only query with one embedding)
	if len(queryResp.IDs) == 0 || len(queryResp.IDs[0]) == 0 {
		return []vector.Hit{}, nil
	}

	ids := queryResp.IDs[0]
	var distances []float32
	if len(queryResp.Distances) > 0 {
		distances = queryResp.Distances[0]
	}
	var metadatas []map[string]any
	if len(queryResp.Metadatas) > 0 {
		metadatas = queryResp.Metadatas[0]
	}

	hits := make([]vector.Hit, 0, len(ids))
	for i := range ids {
		if i >= len(metadatas) || i >= len(distances) {
			break
		}
		doc, err := documentFromMetadata(metadatas[i])
		if err != nil {
			return nil, err
		}
		hits = append(hits, vector.Hit{
			EntityID:       doc.EntityID,
			RecordID:       doc.RecordID,
			OrganizationID: doc.OrganizationID,
			Score:          score(d.metric, distances[i]),
			Checksum:       doc.Checksum,
			URL:            doc.URL,
			Presenter:      doc.Presenter,
			Links:          doc.Links,
			Payload:        doc.Payload,
		})
	}

	d.logger.Debug("queried chroma",
		zap.Int("results", len(hits)),
	)

	return hits, nil
}

// List returns matching documents newest first. Chroma's get has no
// ordering, so the scoped set is sorted and paginated here.
func (d *ChromaDriver) List(ctx context.Context, params vector.ListParams) ([]vector.Document, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}

	var entityIDs []string
	if params.EntityID != "" {
		entityIDs = []string{params.EntityID}
	}

	resp, err := d.get(ctx, chromaGetRequest{
		Where:   scopeWhere(d.id, params.TenantID, params.OrganizationID, entityIDs),
		Include: []string{"metadatas"},
	})
	if err != nil {
		return nil, err
	}

	docs := make([]vector.Document, 0, len(resp.Metadatas))
	for _, m := range resp.Metadatas {
		doc, err := documentFromMetadata(m)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	byCreated := params.OrderBy == vector.OrderByCreated
	sort.SliceStable(docs, func(i, j int) bool {
		ti, tj := docs[i].UpdatedAt, docs[j].UpdatedAt
		if byCreated {
			ti, tj = docs[i].CreatedAt, docs[j].CreatedAt
		}
		return ti.After(tj)
	})

	if params.Offset >= len(docs) {
		return []vector.Document{}, nil
	}
	docs = docs[params.Offset:]
	if len(docs) > params.Limit {
		docs = docs[:params.Limit]
	}
	return docs, nil
}

// IndexedDimension reports the width of a stored embedding.
func (d *ChromaDriver) IndexedDimension(ctx context.Context) (int, bool, error) {
	resp, err := d.get(ctx, chromaGetRequest{
		Where:   map[string]any{metaDriverID: map[string]any{"$eq": d.id}},
		Include: []string{"embeddings"},
		Limit:   1,
	})
	if err != nil {
		return 0, false, err
	}
	if len(resp.Embeddings) == 0 {
		return 0, false, nil
	}
	return len(resp.Embeddings[0]), true, nil
}

// Close releases resources held by the driver.
func (d *ChromaDriver) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

func (d *ChromaDriver) docID(entityID, recordID, tenantID string) string {
	return vector.StableID(d.id, entityID, recordID, tenantID)
}

func (d *ChromaDriver) databaseURL() string {
	return d.baseURL + "/api/v2/tenants/default_tenant/databases/default_database"
}

func (d *ChromaDriver) collectionURL(op string) string {
	return fmt.Sprintf("%s/collections/%s/%s", d.databaseURL(), d.collectionID, op)
}

func (d *ChromaDriver) get(ctx context.Context, req chromaGetRequest) (*chromaGetResponse, error) {
	var resp chromaGetResponse
	if err := d.post(ctx, d.collectionURL("get"), req, &resp); err != nil {
		return nil, fmt.Errorf("getting documents: %w", err)
	}
	return &resp, nil
}

// post sends body as JSON and decodes the response into out when non-nil.
func (d *ChromaDriver) post(ctx context.Context, url string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chroma returned status %d: %s", resp.StatusCode, string(b))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// scopeWhere builds the metadata filter. Chroma's $and needs at least two
// clauses, which driver and tenant always provide.
func scopeWhere(driverID, tenantID, organizationID string, entityIDs []string) map[string]any {
	clauses := []map[string]any{
		{metaDriverID: map[string]any{"$eq": driverID}},
		{metaTenantID: map[string]any{"$eq": tenantID}},
	}
	if organizationID != "" {
		clauses = append(clauses, map[string]any{
			metaOrganizationID: map[string]any{"$in": []string{"", organizationID}},
		})
	}
	if len(entityIDs) > 0 {
		clauses = append(clauses, map[string]any{
			metaEntityID: map[string]any{"$in": entityIDs},
		})
	}
	return map[string]any{"$and": clauses}
}

func documentMetadata(driverID string, doc vector.Document, createdAt, updatedAt time.Time) (map[string]any, error) {
	m := map[string]any{
		metaDriverID:       driverID,
		metaEntityID:       doc.EntityID,
		metaRecordID:       doc.RecordID,
		metaTenantID:       doc.TenantID,
		metaOrganizationID: doc.OrganizationID,
		metaChecksum:       doc.Checksum,
		metaURL:            doc.URL,
		metaCreatedAt:      createdAt.UnixMilli(),
		metaUpdatedAt:      updatedAt.UnixMilli(),
	}
	if doc.Presenter != nil {
		b, err := json.Marshal(doc.Presenter)
		if err != nil {
			return nil, fmt.Errorf("encoding presenter: %w", err)
		}
		m[metaPresenter] = string(b)
	}
	if len(doc.Links) > 0 {
		b, err := json.Marshal(doc.Links)
		if err != nil {
			return nil, fmt.Errorf("encoding links: %w", err)
		}
		m[metaLinks] = string(b)
	}
	if len(doc.Payload) > 0 {
		m[metaPayload] = string(doc.Payload)
	}
	return m, nil
}

func documentFromMetadata(m map[string]any) (vector.Document, error) {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	millis := func(k string) time.Time {
		f, _ := m[k].(float64)
		return time.UnixMilli(int64(f)).UTC()
	}

	doc := vector.Document{
		DriverID:       str(metaDriverID),
		EntityID:       str(metaEntityID),
		RecordID:       str(metaRecordID),
		TenantID:       str(metaTenantID),
		OrganizationID: str(metaOrganizationID),
		Checksum:       str(metaChecksum),
		URL:            str(metaURL),
		CreatedAt:      millis(metaCreatedAt),
		UpdatedAt:      millis(metaUpdatedAt),
	}
	if s := str(metaPresenter); s != "" {
		doc.Presenter = &vector.Presenter{}
		if err := json.Unmarshal([]byte(s), doc.Presenter); err != nil {
			return doc, fmt.Errorf("decoding presenter for %s/%s: %w", doc.EntityID, doc.RecordID, err)
		}
	}
	if s := str(metaLinks); s != "" {
		if err := json.Unmarshal([]byte(s), &doc.Links); err != nil {
			return doc, fmt.Errorf("decoding links for %s/%s: %w", doc.EntityID, doc.RecordID, err)
		}
	}
	if s := str(metaPayload); s != "" {
		doc.Payload = json.RawMessage(s)
	}
	return doc, nil
}

// score converts chroma distances. Cosine and ip distances are 1 - similarity.
func score(metric string, distance float32) float32 {
	if metric == vector.DistanceL2 {
		return vector.Similarity(vector.DistanceL2, float64(distance))
	}
	return 1 - distance
}

func space(metric string) string {
	switch metric {
	case vector.DistanceL2:
		return "l2"
	case vector.DistanceInnerProduct:
		return "ip"
	default:
		return "cosine"
	}
}

var (
	_ vector.Driver            = (*ChromaDriver)(nil)
	_ vector.DimensionReporter = (*ChromaDriver)(nil)
)
