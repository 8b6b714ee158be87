// Package qdrant provides a Qdrant vector driver over the native gRPC client.
// Tenant and organization scoping are enforced with payload filters on every
// read and delete.
package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/papercomputeco/vecindex/pkg/vector"
)

const (
	// DriverID is the default id for this driver.
	DriverID = "qdrant"

	// DefaultCollection is used when no collection name, or an unsafe one, is configured.
	DefaultCollection = "vecindex_documents"

	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	// maxMessageSize bounds gRPC messages so large scroll pages fit.
	maxMessageSize = 32 << 20
)

// Payload keys.
const (
	fieldDriverID       = "driver_id"
	fieldEntityID       = "entity_id"
	fieldRecordID       = "record_id"
	fieldTenantID       = "tenant_id"
	fieldOrganizationID = "organization_id"
	fieldChecksum       = "checksum"
	fieldURL            = "url"
	fieldPresenter      = "presenter"
	fieldLinks          = "links"
	fieldPayload        = "payload"
	fieldCreatedAt      = "created_at"
	fieldUpdatedAt      = "updated_at"
)

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Config holds configuration for the Qdrant driver.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool

	// DriverID overrides the id documents are stored under.
	DriverID string

	// Collection is the collection name. Unsafe names fall back to DefaultCollection.
	Collection string

	// Dimensions is the vector size of the collection. Required.
	Dimensions int

	// Distance is cosine (default), l2 or ip.
	Distance string
}

// Driver implements vector.Driver on Qdrant.
type Driver struct {
	id         string
	client     *qdrant.Client
	collection string
	dimensions int
	metric     string
	ready      vector.ReadyOnce
	logger     *zap.Logger
}

// NewDriver creates a Qdrant driver. Collections are created on the first
// EnsureReady.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if c.Dimensions <= 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions must be configured")
	}

	port := c.Port
	if port == 0 {
		port = DefaultPort
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxMessageSize),
				grpc.MaxCallSendMsgSize(maxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}

	id := c.DriverID
	if id == "" {
		id = DriverID
	}

	collection := c.Collection
	if !collectionNamePattern.MatchString(collection) {
		if collection != "" {
			logger.Warn("unsafe qdrant collection name, using default",
				zap.String("configured", collection),
			)
		}
		collection = DefaultCollection
	}

	metric := c.Distance
	if metric == "" {
		metric = vector.DistanceCosine
	}

	return &Driver{
		id:         id,
		client:     client,
		collection: collection,
		dimensions: c.Dimensions,
		metric:     metric,
		logger:     logger,
	}, nil
}

// ID returns the driver id.
func (d *Driver) ID() string {
	return d.id
}

// EnsureReady creates the collection and payload indexes once.
func (d *Driver) EnsureReady(ctx context.Context) error {
	return d.ready.Do(ctx, d.initialize)
}

func (d *Driver) initialize(ctx context.Context) error {
	exists, err := d.client.CollectionExists(ctx, d.collection)
	if err != nil {
		return wrapErr(err, "checking collection %s", d.collection)
	}

	if !exists {
		err := d.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: d.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(d.dimensions),
				Distance: distance(d.metric),
			}),
		})
		if err != nil {
			return wrapErr(err, "creating collection %s", d.collection)
		}
	}

	keywordFields := []string{fieldDriverID, fieldEntityID, fieldTenantID, fieldOrganizationID}
	for _, field := range keywordFields {
		if err := d.createIndex(ctx, field, qdrant.FieldType_FieldTypeKeyword); err != nil {
			return err
		}
	}
	for _, field := range []string{fieldCreatedAt, fieldUpdatedAt} {
		if err := d.createIndex(ctx, field, qdrant.FieldType_FieldTypeInteger); err != nil {
			return err
		}
	}

	d.logger.Info("qdrant driver ready",
		zap.String("collection", d.collection),
		zap.Int("dimensions", d.dimensions),
		zap.Bool("created", !exists),
	)
	return nil
}

func (d *Driver) createIndex(ctx context.Context, field string, fieldType qdrant.FieldType) error {
	_, err := d.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		FieldName:      field,
		FieldType:      fieldType.Enum(),
	})
	if err != nil {
		return wrapErr(err, "creating %s index on %s", field, d.collection)
	}
	return nil
}

// Upsert writes the point at the document's deterministic id.
func (d *Driver) Upsert(ctx context.Context, doc vector.Document) error {
	createdAt := time.Now().UTC()
	if existing, err := d.getPoint(ctx, doc.EntityID, doc.RecordID, doc.TenantID, fieldCreatedAt); err != nil {
		return err
	} else if existing != nil {
		if v, ok := existing[fieldCreatedAt]; ok {
			createdAt = time.UnixMilli(v.GetIntegerValue()).UTC()
		}
	}

	payload, err := documentPayload(d.id, doc, createdAt, time.Now().UTC())
	if err != nil {
		return err
	}

	_, err = d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pointID(d.id, doc.EntityID, doc.RecordID, doc.TenantID)),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: payload,
		}},
	})
	if err != nil {
		return wrapErr(err, "upserting %s/%s", doc.EntityID, doc.RecordID)
	}
	return nil
}

// Delete removes one point.
func (d *Driver) Delete(ctx context.Context, entityID, recordID, tenantID string) error {
	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(pointID(d.id, entityID, recordID, tenantID))),
	})
	if err != nil {
		return wrapErr(err, "deleting %s/%s", entityID, recordID)
	}
	return nil
}

// GetChecksum returns the stored checksum for a document.
func (d *Driver) GetChecksum(ctx context.Context, entityID, recordID, tenantID string) (string, bool, error) {
	payload, err := d.getPoint(ctx, entityID, recordID, tenantID, fieldChecksum)
	if err != nil {
		return "", false, err
	}
	if payload == nil {
		return "", false, nil
	}
	return payload[fieldChecksum].GetStringValue(), true, nil
}

func (d *Driver) getPoint(ctx context.Context, entityID, recordID, tenantID string, fields ...string) (map[string]*qdrant.Value, error) {
	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(pointID(d.id, entityID, recordID, tenantID))},
		WithPayload:    qdrant.NewWithPayloadInclude(fields...),
	})
	if err != nil {
		return nil, wrapErr(err, "reading %s/%s", entityID, recordID)
	}
	if len(points) == 0 {
		return nil, nil
	}
	return points[0].GetPayload(), nil
}

// Purge removes every point of an entity in a tenant.
func (d *Driver) Purge(ctx context.Context, entityID, tenantID string) error {
	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(fieldDriverID, d.id),
				qdrant.NewMatch(fieldTenantID, tenantID),
				qdrant.NewMatch(fieldEntityID, entityID),
			},
		}),
	})
	if err != nil {
		return wrapErr(err, "purging %s", entityID)
	}
	return nil
}

// Query returns the nearest points visible under filter.
func (d *Driver) Query(ctx context.Context, embedding []float32, limit int, filter vector.QueryFilter) ([]vector.Hit, error) {
	if limit <= 0 {
		limit = 10
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         scopeFilter(d.id, filter.TenantID, filter.OrganizationID, filter.EntityIDs),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, wrapErr(err, "querying vectors")
	}

	hits := make([]vector.Hit, 0, len(points))
	for _, p := range points {
		doc, err := documentFromPayload(p.GetPayload())
		if err != nil {
			return nil, err
		}
		hits = append(hits, vector.Hit{
			EntityID:       doc.EntityID,
			RecordID:       doc.RecordID,
			OrganizationID: doc.OrganizationID,
			Score:          score(d.metric, p.GetScore()),
			Checksum:       doc.Checksum,
			URL:            doc.URL,
			Presenter:      doc.Presenter,
			Links:          doc.Links,
			Payload:        doc.Payload,
		})
	}
	return hits, nil
}

// List scrolls points newest first. Qdrant has no offset for ordered
// scrolls, so limit+offset points are fetched and the head is dropped.
func (d *Driver) List(ctx context.Context, params vector.ListParams) ([]vector.Document, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}

	var entityIDs []string
	if params.EntityID != "" {
		entityIDs = []string{params.EntityID}
	}

	orderKey := fieldUpdatedAt
	if params.OrderBy == vector.OrderByCreated {
		orderKey = fieldCreatedAt
	}

	points, err := d.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: d.collection,
		Filter:         scopeFilter(d.id, params.TenantID, params.OrganizationID, entityIDs),
		Limit:          qdrant.PtrOf(uint32(params.Limit + params.Offset)),
		WithPayload:    qdrant.NewWithPayload(true),
		OrderBy: &qdrant.OrderBy{
			Key:       orderKey,
			Direction: qdrant.Direction_Desc.Enum(),
		},
	})
	if err != nil {
		return nil, wrapErr(err, "listing documents")
	}

	if params.Offset >= len(points) {
		return []vector.Document{}, nil
	}
	points = points[params.Offset:]

	docs := make([]vector.Document, 0, len(points))
	for _, p := range points {
		doc, err := documentFromPayload(p.GetPayload())
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// IndexedDimension reports the collection's configured vector size when it
// holds any points.
func (d *Driver) IndexedDimension(ctx context.Context) (int, bool, error) {
	info, err := d.client.GetCollectionInfo(ctx, d.collection)
	if err != nil {
		return 0, false, wrapErr(err, "reading collection %s", d.collection)
	}
	if info.GetPointsCount() == 0 {
		return 0, false, nil
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	return int(size), size > 0, nil
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

// pointID is stable per composite key so upserts replace in place.
func pointID(driverID, entityID, recordID, tenantID string) string {
	return vector.StableID(driverID, entityID, recordID, tenantID)
}

// scopeFilter always requires driver and tenant. With an organization, a
// point matches when it has no organization or the same one.
func scopeFilter(driverID, tenantID, organizationID string, entityIDs []string) *qdrant.Filter {
	must := []*qdrant.Condition{
		qdrant.NewMatch(fieldDriverID, driverID),
		qdrant.NewMatch(fieldTenantID, tenantID),
	}

	if organizationID != "" {
		must = append(must, qdrant.NewFilterAsCondition(&qdrant.Filter{
			Should: []*qdrant.Condition{
				qdrant.NewIsEmpty(fieldOrganizationID),
				qdrant.NewMatch(fieldOrganizationID, organizationID),
			},
		}))
	}

	if len(entityIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords(fieldEntityID, entityIDs...))
	}

	return &qdrant.Filter{Must: must}
}

func documentPayload(driverID string, doc vector.Document, createdAt, updatedAt time.Time) (map[string]*qdrant.Value, error) {
	m := map[string]any{
		fieldDriverID:  driverID,
		fieldEntityID:  doc.EntityID,
		fieldRecordID:  doc.RecordID,
		fieldTenantID:  doc.TenantID,
		fieldChecksum:  doc.Checksum,
		fieldCreatedAt: createdAt.UnixMilli(),
		fieldUpdatedAt: updatedAt.UnixMilli(),
	}
	if doc.OrganizationID != "" {
		m[fieldOrganizationID] = doc.OrganizationID
	}
	if doc.URL != "" {
		m[fieldURL] = doc.URL
	}

	// Structured fields are stored as JSON strings so they round-trip
	// without qdrant's value conversion.
	if doc.Presenter != nil {
		b, err := json.Marshal(doc.Presenter)
		if err != nil {
			return nil, fmt.Errorf("encoding presenter: %w", err)
		}
		m[fieldPresenter] = string(b)
	}
	if len(doc.Links) > 0 {
		b, err := json.Marshal(doc.Links)
		if err != nil {
			return nil, fmt.Errorf("encoding links: %w", err)
		}
		m[fieldLinks] = string(b)
	}
	if len(doc.Payload) > 0 {
		m[fieldPayload] = string(doc.Payload)
	}

	payload, err := qdrant.TryValueMap(m)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return payload, nil
}

func documentFromPayload(p map[string]*qdrant.Value) (vector.Document, error) {
	doc := vector.Document{
		DriverID:       p[fieldDriverID].GetStringValue(),
		EntityID:       p[fieldEntityID].GetStringValue(),
		RecordID:       p[fieldRecordID].GetStringValue(),
		TenantID:       p[fieldTenantID].GetStringValue(),
		OrganizationID: p[fieldOrganizationID].GetStringValue(),
		Checksum:       p[fieldChecksum].GetStringValue(),
		URL:            p[fieldURL].GetStringValue(),
		CreatedAt:      time.UnixMilli(p[fieldCreatedAt].GetIntegerValue()).UTC(),
		UpdatedAt:      time.UnixMilli(p[fieldUpdatedAt].GetIntegerValue()).UTC(),
	}

	if s := p[fieldPresenter].GetStringValue(); s != "" {
		doc.Presenter = &vector.Presenter{}
		if err := json.Unmarshal([]byte(s), doc.Presenter); err != nil {
			return doc, fmt.Errorf("decoding presenter for %s/%s: %w", doc.EntityID, doc.RecordID, err)
		}
	}
	if s := p[fieldLinks].GetStringValue(); s != "" {
		if err := json.Unmarshal([]byte(s), &doc.Links); err != nil {
			return doc, fmt.Errorf("decoding links for %s/%s: %w", doc.EntityID, doc.RecordID, err)
		}
	}
	if s := p[fieldPayload].GetStringValue(); s != "" {
		doc.Payload = json.RawMessage(s)
	}
	return doc, nil
}

func distance(metric string) qdrant.Distance {
	switch metric {
	case vector.DistanceL2:
		return qdrant.Distance_Euclid
	case vector.DistanceInnerProduct:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

// score normalizes qdrant's score. Cosine and dot scores are already
// similarities; euclid scores are distances.
func score(metric string, s float32) float32 {
	if metric == vector.DistanceL2 {
		return vector.Similarity(vector.DistanceL2, float64(s))
	}
	return s
}

var (
	_ vector.Driver            = (*Driver)(nil)
	_ vector.DimensionReporter = (*Driver)(nil)
)

// wrapErr annotates a client error. Errors from an unreachable server wrap
// vector.ErrConnection so callers can tell them from rejected requests.
func wrapErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded:
			return fmt.Errorf("%s: %w: %s", msg, vector.ErrConnection, st.Message())
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
