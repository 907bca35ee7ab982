package vectorindex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/todoapi/internal/logging"
	"github.com/dmitrijs2005/todoapi/internal/server/metrics"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// QdrantConfig configures the Qdrant gRPC connection.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: "localhost".
	Host string

	// Port is the gRPC port (not the 6333 REST port). Default: 6334.
	Port int

	UseTLS bool
	APIKey string

	Collection string
	VectorSize uint64

	// RequestTimeout bounds every call including its retries. Default: 5s.
	RequestTimeout time.Duration

	// RetryAttempts is the number of retries after a transient failure.
	RetryAttempts int

	// Backoff is the first retry delay; it doubles on every attempt. Default: 200ms.
	Backoff time.Duration
}

func (c *QdrantConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "tasks"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.Backoff == 0 {
		c.Backoff = 200 * time.Millisecond
	}
}

// qdrantClient is the part of *qdrant.Client used here.
type qdrantClient interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	ScrollAndOffset(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)
	Close() error
}

// QdrantIndex implements Index on a single Qdrant collection using cosine
// distance. The collection is created on first use.
type QdrantIndex struct {
	client  qdrantClient
	config  QdrantConfig
	logger  logging.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	ready bool
}

// NewQdrantIndex creates the client. No connection is made until the first
// call, so the server can start while Qdrant is down.
func NewQdrantIndex(cfg QdrantConfig, logger logging.Logger, m *metrics.Metrics) (*QdrantIndex, error) {
	cfg.applyDefaults()
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("vector size is required")
	}

	qcfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
	}
	if !cfg.UseTLS {
		qcfg.GrpcOptions = append(qcfg.GrpcOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return newQdrantIndex(client, cfg, logger, m), nil
}

func newQdrantIndex(client qdrantClient, cfg QdrantConfig, logger logging.Logger, m *metrics.Metrics) *QdrantIndex {
	cfg.applyDefaults()
	return &QdrantIndex{
		client:  client,
		config:  cfg,
		logger:  logger.With("module", "vectorindex", "collection", cfg.Collection),
		metrics: m,
	}
}

func (q *QdrantIndex) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// EnsureCollection creates the collection and its user_id payload index if
// they do not exist yet. After one success it is a no-op. Concurrent callers
// wait for a single attempt.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ready {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	exists := true
	err := q.retryOperation(ctx, "collection_info", func() error {
		_, err := q.client.GetCollectionInfo(ctx, q.config.Collection)
		if status.Code(err) == codes.NotFound {
			exists = false
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", q.config.Collection, err)
	}

	if !exists {
		err = q.retryOperation(ctx, "create_collection", func() error {
			err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: q.config.Collection,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     q.config.VectorSize,
					Distance: qdrant.Distance_Cosine,
				}),
			})
			if status.Code(err) == codes.AlreadyExists {
				return nil
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", q.config.Collection, err)
		}

		err = q.retryOperation(ctx, "create_field_index", func() error {
			_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: q.config.Collection,
				FieldName:      FieldUserID,
				FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			})
			return err
		})
		if err != nil {
			// search still works without it, only slower
			q.logger.Warn(ctx, "failed to create user_id payload index", "error", err)
		}

		q.logger.Info(ctx, "collection created", "vector_size", q.config.VectorSize)
	}

	q.ready = true
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, p Point) error {
	if uint64(len(p.Vector)) != q.config.VectorSize {
		return fmt.Errorf("vector has %d dimensions, collection expects %d", len(p.Vector), q.config.VectorSize)
	}
	if err := q.EnsureCollection(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	point := convertToQdrantPoint(p)
	err := q.retryOperation(ctx, "upsert", func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.config.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	})
	q.metrics.IndexOperation("upsert", err)
	if err != nil {
		return fmt.Errorf("upserting point %s: %w", p.ID, err)
	}
	return nil
}

func (q *QdrantIndex) Delete(ctx context.Context, id string) error {
	if err := q.EnsureCollection(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	err := q.retryOperation(ctx, "delete", func() error {
		_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: q.config.Collection,
			Wait:           qdrant.PtrOf(true),
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{
						Ids: []*qdrant.PointId{qdrant.NewIDUUID(id)},
					},
				},
			},
		})
		return err
	})
	q.metrics.IndexOperation("delete", err)
	if err != nil {
		return fmt.Errorf("deleting point %s: %w", id, err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, userID string, vector []float32, limit uint64) ([]Hit, error) {
	if err := q.EnsureCollection(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	var results []*qdrant.ScoredPoint
	err := q.retryOperation(ctx, "search", func() error {
		res, err := q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: q.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(limit),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         ownerFilter(userID),
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	q.metrics.IndexOperation("search", err)
	if err != nil {
		return nil, fmt.Errorf("searching collection %s: %w", q.config.Collection, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, convertFromQdrantScoredPoint(r))
	}
	return hits, nil
}

// ListIDs scrolls the collection without payloads or vectors.
func (q *QdrantIndex) ListIDs(ctx context.Context, offset string, limit uint32) ([]string, string, error) {
	if limit == 0 {
		return nil, "", fmt.Errorf("limit must be positive")
	}
	if err := q.EnsureCollection(ctx); err != nil {
		return nil, "", err
	}

	ctx, cancel := context.WithTimeout(ctx, q.config.RequestTimeout)
	defer cancel()

	req := &qdrant.ScrollPoints{
		CollectionName: q.config.Collection,
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(false),
		WithVectors:    qdrant.NewWithVectors(false),
	}
	if offset != "" {
		req.Offset = qdrant.NewIDUUID(offset)
	}

	var (
		points     []*qdrant.RetrievedPoint
		nextOffset *qdrant.PointId
	)
	err := q.retryOperation(ctx, "scroll", func() error {
		res, next, err := q.client.ScrollAndOffset(ctx, req)
		if err != nil {
			return err
		}
		points, nextOffset = res, next
		return nil
	})
	q.metrics.IndexOperation("scroll", err)
	if err != nil {
		return nil, "", fmt.Errorf("scrolling collection %s: %w", q.config.Collection, err)
	}

	ids := make([]string, 0, len(points))
	for _, p := range points {
		ids = append(ids, extractPointID(p.GetId()))
	}
	return ids, extractPointID(nextOffset), nil
}

func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// retryOperation retries transient gRPC failures with exponential backoff.
func (q *QdrantIndex) retryOperation(ctx context.Context, op string, operation func() error) error {
	var lastErr error
	backoff := q.config.Backoff

	for attempt := 0; attempt <= q.config.RetryAttempts; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 0 {
				q.logger.Info(ctx, "operation recovered after retries", "op", op, "attempts", attempt)
			}
			return nil
		}
		lastErr = err

		if !isTransientError(err) {
			return err
		}
		if attempt == q.config.RetryAttempts {
			break
		}

		q.logger.Debug(ctx, "retrying operation after transient error",
			"op", op, "attempt", attempt+1, "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation canceled: %w", ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	return fmt.Errorf("%w: %s failed after %d retries: %v", ErrUnavailable, op, q.config.RetryAttempts, lastErr)
}

// isTransientError reports whether a gRPC error is worth retrying.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func ownerFilter(userID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: FieldUserID,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: userID},
						},
					},
				},
			},
		},
	}
}

func convertToQdrantPoint(p Point) *qdrant.PointStruct {
	payload := make(map[string]*qdrant.Value, len(p.Payload))
	for k, v := range p.Payload {
		payload[k] = convertToQdrantValue(v)
	}

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(p.ID),
		Vectors: qdrant.NewVectors(p.Vector...),
		Payload: payload,
	}
}

func convertToQdrantValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{}}
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case *string:
		if val == nil {
			return &qdrant.Value{Kind: &qdrant.Value_NullValue{}}
		}
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: *val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case time.Time:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val.UTC().Format(time.RFC3339Nano)}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func convertFromQdrantScoredPoint(p *qdrant.ScoredPoint) Hit {
	return Hit{
		ID:      extractPointID(p.GetId()),
		Score:   p.GetScore(),
		Payload: extractPayload(p.GetPayload()),
	}
}

func extractPointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	if num := id.GetNum(); num != 0 {
		return fmt.Sprintf("%d", num)
	}
	return ""
}

func extractPayload(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return nil
	}
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		result[k] = extractValue(v)
	}
	return result
}

func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

var _ Index = (*QdrantIndex)(nil)
