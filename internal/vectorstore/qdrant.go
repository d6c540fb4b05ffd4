package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

const (
	// DefaultCollection holds one point per candidate profile.
	DefaultCollection = "employee_profiles"

	// DefaultCategoryField is the payload key used for category filtering.
	DefaultCategoryField = "job_category"

	defaultGRPCPort = "6334"
)

// ErrCollectionMissing is returned by Ping when the collection does not exist.
var ErrCollectionMissing = errors.New("collection does not exist")

// QdrantConfig holds connection settings for QdrantStore.
type QdrantConfig struct {
	// URL is "host:port" of the gRPC endpoint (e.g., "localhost:6334").
	URL           string
	APIKey        string
	UseTLS        bool
	Collection    string
	CategoryField string
}

// QdrantStore implements Store using Qdrant
type QdrantStore struct {
	client        *qdrant.Client
	collection    string
	categoryField string
}

// NewQdrantStore creates a new Qdrant vector store client
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(cfg.URL)
	if err != nil {
		// If no port specified, assume default
		host = cfg.URL
		portStr = defaultGRPCPort
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	categoryField := cfg.CategoryField
	if categoryField == "" {
		categoryField = DefaultCategoryField
	}

	return &QdrantStore{
		client:        client,
		collection:    collection,
		categoryField: categoryField,
	}, nil
}

// Close closes the Qdrant client connection
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// Search performs a single dense-vector similarity query.
func (s *QdrantStore) Search(ctx context.Context, req SearchRequest) ([]Candidate, error) {
	query := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(req.Vector...),
		Limit:          qdrant.PtrOf(uint64(req.Limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: qdrant.PtrOf(req.Threshold),
	}
	if req.Category != "" {
		query.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(s.categoryField, req.Category),
			},
		}
	}

	response, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]Candidate, 0, len(response))
	for _, point := range response {
		results = append(results, Candidate{
			ID:      pointID(point.GetId()),
			Score:   point.GetScore(),
			Payload: payloadToMap(point.GetPayload()),
		})
	}

	return results, nil
}

// Ping checks that Qdrant answers and the collection exists.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrCollectionMissing, s.collection)
	}
	return nil
}

// pointID renders either ID flavour as a string.
func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = valueToAny(v)
	}
	return out
}

// valueToAny converts a Qdrant payload value into plain Go values:
// nil, float64, int64, string, bool, map[string]any or []any.
func valueToAny(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_NullValue:
		return nil
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		return payloadToMap(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]any, len(values))
		for i, item := range values {
			list[i] = valueToAny(item)
		}
		return list
	default:
		return nil
	}
}

// Ensure QdrantStore implements Store
var _ Store = (*QdrantStore)(nil)
