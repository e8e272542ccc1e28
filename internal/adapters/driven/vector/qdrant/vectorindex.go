// Package qdrant provides a VectorIndex backed by a Qdrant collection.
package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// DefaultPort is the Qdrant gRPC port.
const DefaultPort = 6334

// Payload keys. Metadata is stored twice: as-is for retrieval and with every
// value formatted by %v under matchKey so equality filters run server side.
const (
	keyChunkID    = "chunk_id"
	keyDocumentID = "document_id"
	keySequence   = "sequence"
	keyText       = "text"
	keyRevision   = "revision"
	keyMetadata   = "metadata"
	matchKey      = "match"
)

// pointNamespace derives point UUIDs from chunk IDs.
var pointNamespace = uuid.MustParse("6f1c2a3e-93b4-4f57-8a0d-2b7e4d9c1f60")

// Config holds connection settings.
type Config struct {
	// URL is host:port or a URL such as https://xyz.cloud.qdrant.io:6334.
	URL string

	// APIKey authenticates against Qdrant Cloud. Enables TLS.
	APIKey string

	// Collection is the collection name.
	Collection string

	// Dimensions is the vector size of the collection.
	Dimensions int
}

// VectorIndex stores entries as points in a cosine-distance collection.
type VectorIndex struct {
	client     *qdrant.Client
	collection string
	dims       int

	mu       sync.Mutex
	revision int64
}

// NewVectorIndex connects to Qdrant and creates the collection if needed.
// An existing collection with a different vector size is rejected.
func NewVectorIndex(ctx context.Context, cfg Config) (*VectorIndex, error) {
	if cfg.Dimensions < 1 {
		return nil, fmt.Errorf("%w: qdrant dimensions must be >= 1", domain.ErrInvalidInput)
	}
	if cfg.Collection == "" {
		cfg.Collection = domain.DefaultQdrantCollection
	}
	host, port, useTLS, err := parseEndpoint(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS || cfg.APIKey != "",
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}

	v := &VectorIndex{client: client, collection: cfg.Collection, dims: cfg.Dimensions}
	if err := v.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return v, nil
}

func (v *VectorIndex) ensureCollection(ctx context.Context) error {
	exists, err := v.client.CollectionExists(ctx, v.collection)
	if err != nil {
		return mapError("collection exists", err)
	}
	if exists {
		info, err := v.client.GetCollectionInfo(ctx, v.collection)
		if err != nil {
			return mapError("collection info", err)
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if size != 0 && int(size) != v.dims {
			return fmt.Errorf("%w: collection %q has %d dimensions, configured %d",
				domain.ErrDimensionMismatch, v.collection, size, v.dims)
		}
		return nil
	}

	err = v.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(v.dims),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return mapError("create collection", err)
	}
	return nil
}

// Upsert validates every entry before writing any of them.
func (v *VectorIndex) Upsert(ctx context.Context, entries []domain.IndexEntry) (int, error) {
	if len(entries) == 0 {
		return 0, ctx.Err()
	}
	points := make([]*qdrant.PointStruct, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.ID == "" {
			return 0, fmt.Errorf("%w: entry %d has no id", domain.ErrInvalidInput, i)
		}
		if err := domain.ValidateVector(e.Vector, v.dims); err != nil {
			return 0, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		payload, err := toPayload(e, v.nextRevision())
		if err != nil {
			return 0, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(e.ID)),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: payload,
		}
	}

	_, err := v.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: v.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return 0, mapError("upsert", err)
	}
	return len(entries), nil
}

// Query runs a filtered nearest-neighbour search. Returned entries carry no vector.
func (v *VectorIndex) Query(
	ctx context.Context, vector domain.Vector, topK int, filter domain.MetadataFilter,
) ([]domain.ScoredEntry, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be >= 1, got %d", domain.ErrInvalidInput, topK)
	}
	if err := domain.ValidateVector(vector, v.dims); err != nil {
		return nil, fmt.Errorf("query vector: %w", err)
	}

	limit := uint64(topK)
	points, err := v.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: v.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, mapError("query", err)
	}

	results := make([]scoredPoint, 0, len(points))
	for _, p := range points {
		entry, revision := fromPayload(p.GetPayload())
		results = append(results, scoredPoint{
			entry:    domain.ScoredEntry{IndexEntry: entry, Score: float64(p.GetScore())},
			revision: revision,
		})
	}
	return orderResults(results), nil
}

// Delete removes entries by ID and returns how many existed.
func (v *VectorIndex) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, ctx.Err()
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(PointID(id))
	}

	existing, err := v.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: v.collection,
		Ids:            pointIDs,
	})
	if err != nil {
		return 0, mapError("get", err)
	}
	if len(existing) == 0 {
		return 0, nil
	}

	_, err = v.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: v.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return 0, mapError("delete", err)
	}
	return len(existing), nil
}

// Count returns the exact number of points in the collection.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	n, err := v.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: v.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, mapError("count", err)
	}
	return int(n), nil
}

// Dimensions returns the configured vector size.
func (v *VectorIndex) Dimensions() int {
	return v.dims
}

// Close closes the gRPC connection.
func (v *VectorIndex) Close() error {
	return v.client.Close()
}

// nextRevision returns a strictly increasing wall-clock stamp.
func (v *VectorIndex) nextRevision() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := time.Now().UnixNano()
	if now <= v.revision {
		now = v.revision + 1
	}
	v.revision = now
	return now
}

// PointID maps a chunk ID onto the UUID Qdrant requires.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// parseEndpoint splits host:port or a URL. TLS is implied by https.
func parseEndpoint(raw string) (host string, port int, useTLS bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "localhost", DefaultPort, false, nil
	}
	if strings.Contains(raw, "://") {
		u, perr := url.Parse(raw)
		if perr != nil {
			return "", 0, false, fmt.Errorf("%w: qdrant url %q: %v", domain.ErrInvalidInput, raw, perr)
		}
		useTLS = u.Scheme == "https"
		raw = u.Host
	}

	h, p, serr := net.SplitHostPort(raw)
	if serr != nil {
		return raw, DefaultPort, useTLS, nil
	}
	port, err = strconv.Atoi(p)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, false, fmt.Errorf("%w: qdrant port %q", domain.ErrInvalidInput, p)
	}
	return h, port, useTLS, nil
}

// toPayload normalises metadata through JSON so every value is a type the
// Qdrant value constructors accept.
func toPayload(e *domain.IndexEntry, revision int64) (map[string]*qdrant.Value, error) {
	metadata := map[string]any{}
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata is not serialisable: %v", domain.ErrInvalidInput, err)
		}
		if err := json.Unmarshal(raw, &metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	match := make(map[string]any, len(e.Metadata))
	for k, val := range e.Metadata {
		match[k] = fmt.Sprintf("%v", val)
	}

	return qdrant.NewValueMap(map[string]any{
		keyChunkID:    e.ID,
		keyDocumentID: e.DocumentID,
		keySequence:   int64(e.Sequence),
		keyText:       e.Text,
		keyRevision:   revision,
		keyMetadata:   metadata,
		matchKey:      match,
	}), nil
}

func fromPayload(payload map[string]*qdrant.Value) (domain.IndexEntry, int64) {
	entry := domain.IndexEntry{
		ID:         payload[keyChunkID].GetStringValue(),
		DocumentID: payload[keyDocumentID].GetStringValue(),
		Sequence:   int(payload[keySequence].GetIntegerValue()),
		Text:       payload[keyText].GetStringValue(),
		Metadata:   map[string]any{},
	}
	if fields := payload[keyMetadata].GetStructValue().GetFields(); fields != nil {
		for k, val := range fields {
			entry.Metadata[k] = convertValue(val)
		}
	}
	return entry, payload[keyRevision].GetIntegerValue()
}

func buildFilter(filter domain.MetadataFilter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	must := make([]*qdrant.Condition, 0, len(keys))
	for _, k := range keys {
		must = append(must, qdrant.NewMatch(matchKey+"."+k, filter[k]))
	}
	return &qdrant.Filter{Must: must}
}

type scoredPoint struct {
	entry    domain.ScoredEntry
	revision int64
}

// orderResults sorts by score, most recent revision first on ties.
func orderResults(points []scoredPoint) []domain.ScoredEntry {
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].entry.Score != points[j].entry.Score {
			return points[i].entry.Score > points[j].entry.Score
		}
		return points[i].revision > points[j].revision
	})
	out := make([]domain.ScoredEntry, len(points))
	for i := range points {
		out[i] = points[i].entry
	}
	return out
}

func convertValue(v *qdrant.Value) any {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		out := make([]any, len(val.ListValue.GetValues()))
		for i, lv := range val.ListValue.GetValues() {
			out[i] = convertValue(lv)
		}
		return out
	case *qdrant.Value_StructValue:
		out := make(map[string]any)
		for k, nv := range val.StructValue.GetFields() {
			out[k] = convertValue(nv)
		}
		return out
	}
	return nil
}

// mapError classifies a Qdrant gRPC failure. Only unavailability, throttling
// and aborted transactions are retried.
func mapError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("qdrant %s: %w", op, err)
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.Aborted:
		return fmt.Errorf("qdrant %s: %w: %w", op, domain.ErrTransient, err)
	case codes.ResourceExhausted:
		return fmt.Errorf("qdrant %s: %w: %w", op, domain.ErrRateLimited, err)
	case codes.DeadlineExceeded:
		return fmt.Errorf("qdrant %s: %w: %w", op, domain.ErrTimeout, err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("qdrant %s: %w: %w", op, domain.ErrAuthInvalid, err)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return fmt.Errorf("qdrant %s: %w: %w", op, domain.ErrInvalidInput, err)
	case codes.NotFound:
		return fmt.Errorf("qdrant %s: %w: %w", op, domain.ErrNotFound, err)
	default:
		return fmt.Errorf("qdrant %s: %w", op, err)
	}
}
