package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/davidamom/neuralflake/internal/domain"
)

// Payload keys used alongside the record metadata.
const (
	payloadText = "text"
	payloadSeq  = "seq"
)

// Qdrant is a Store backed by a remote Qdrant collection. Scoring happens
// server-side; results are re-sorted locally so that ties break by the most
// recent insert, matching the other adapters.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	dim        int

	// seq is the monotonic insert sequence stamped into point payloads.
	// Seeded above both the wall clock and the highest stored value, so it
	// never regresses across restarts or clock adjustments.
	seq atomic.Int64
}

// NewQdrant creates a Qdrant-backed store. urlStr is the HTTP endpoint
// (e.g. "http://localhost:6333"); the gRPC port is derived as HTTP port + 1.
func NewQdrant(urlStr, collection string, dim int) (*Qdrant, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive, got %d", domain.ErrInvalidConfiguration, dim)
	}
	if collection == "" {
		return nil, fmt.Errorf("%w: Qdrant collection name must not be empty", domain.ErrInvalidConfiguration)
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid Qdrant URL %q: %v", domain.ErrInvalidConfiguration, urlStr, err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334
	if parsedURL.Port() != "" {
		if httpPort, err := strconv.Atoi(parsedURL.Port()); err == nil {
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create Qdrant client: %v", domain.ErrStoreUnavailable, err)
	}

	s := &Qdrant{client: client, collection: collection, dim: dim}
	s.seq.Store(time.Now().UnixNano())
	return s, nil
}

// EnsureCollection creates the collection if missing and otherwise verifies
// that its vector size matches the configured dimensionality.
func (s *Qdrant) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: check collection %s: %v", domain.ErrStoreUnavailable, s.collection, err)
	}

	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("%w: create collection %s: %v", domain.ErrStoreUnavailable, s.collection, err)
		}
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: get collection info for %s: %v", domain.ErrStoreUnavailable, s.collection, err)
	}
	config := info.GetConfig()
	if config == nil || config.GetParams() == nil {
		return fmt.Errorf("%w: collection %s has no vector config", domain.ErrStoreUnavailable, s.collection)
	}
	params := config.GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return fmt.Errorf("%w: collection %s has no vector params", domain.ErrStoreUnavailable, s.collection)
	}
	if int(params.Size) != s.dim {
		return fmt.Errorf("%w: collection %s holds vectors of dimension %d, configured dimension is %d",
			domain.ErrInvalidConfiguration, s.collection, params.Size, s.dim)
	}
	return s.seedSeq(ctx)
}

// seedSeq raises the insert sequence above the highest value already stored
// so upserts from this process keep sorting after existing records.
func (s *Qdrant) seedSeq(ctx context.Context) error {
	limit := uint32(1000)
	req := &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayloadInclude(payloadSeq),
	}

	points := s.client.GetPointsClient()
	var stored int64
	for {
		resp, err := points.Scroll(ctx, req)
		if err != nil {
			return fmt.Errorf("%w: scan stored insert sequence: %v", domain.ErrStoreUnavailable, err)
		}
		for _, point := range resp.GetResult() {
			if v, ok := point.GetPayload()[payloadSeq]; ok && v.GetIntegerValue() > stored {
				stored = v.GetIntegerValue()
			}
		}
		next := resp.GetNextPageOffset()
		if next == nil {
			break
		}
		req.Offset = next
	}

	for {
		cur := s.seq.Load()
		if stored <= cur || s.seq.CompareAndSwap(cur, stored) {
			return nil
		}
	}
}

func (s *Qdrant) nextSeq() int64 { return s.seq.Add(1) }

// Upsert writes records as points. The insert sequence is carried in the
// payload so queries can break score ties deterministically.
func (s *Qdrant) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("%w: record ID must not be empty", domain.ErrInvalidArgument)
		}
		if len(rec.Vector) != s.dim {
			return fmt.Errorf("%w: record %s vector has dimension %d, store expects %d",
				domain.ErrInvalidConfiguration, rec.ID, len(rec.Vector), s.dim)
		}

		payload := make(map[string]any, len(rec.Meta)+2)
		for k, v := range rec.Meta {
			payload[k] = normalizePayloadValue(v)
		}
		payload[payloadText] = rec.Text
		payload[payloadSeq] = s.nextSeq()

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %d points: %v", domain.ErrStoreUnavailable, len(points), err)
	}
	return nil
}

// Query runs a server-side similarity search and re-sorts the hits locally.
func (s *Qdrant) Query(ctx context.Context, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", domain.ErrInvalidArgument, topK)
	}
	if len(vector) != s.dim {
		return nil, fmt.Errorf("%w: query vector has dimension %d, store expects %d",
			domain.ErrInvalidArgument, len(vector), s.dim)
	}

	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search points: %v", domain.ErrStoreUnavailable, err)
	}

	items := make([]scored, 0, len(points))
	for _, point := range points {
		rec, seq := recordFromPayload(point.GetId().GetUuid(), point.GetPayload())
		if out := point.GetVectors().GetVector(); out != nil {
			rec.Vector = append([]float32(nil), out.GetData()...)
		}
		items = append(items, scored{rec: rec, score: point.GetScore(), seq: seq})
	}
	return rank(items, topK), nil
}

// Delete removes points by ID. Unknown IDs are ignored by Qdrant.
func (s *Qdrant) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("%w: delete %d points: %v", domain.ErrStoreUnavailable, len(ids), err)
	}
	return nil
}

// Count returns the number of points in the collection.
func (s *Qdrant) Count(ctx context.Context) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count points: %v", domain.ErrStoreUnavailable, err)
	}
	return int(count), nil
}

// ListIDs scrolls the collection filtered by source path and orders the IDs
// by chunk index.
func (s *Qdrant) ListIDs(ctx context.Context, sourcePath string) ([]string, error) {
	limit := uint32(10000)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(MetaPath, sourcePath)},
		},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scroll points for %s: %v", domain.ErrStoreUnavailable, sourcePath, err)
	}

	type entry struct {
		id    string
		index int64
	}
	entries := make([]entry, 0, len(points))
	for _, point := range points {
		index := int64(0)
		if v, ok := point.GetPayload()[MetaChunkIndex]; ok {
			index = v.GetIntegerValue()
		}
		entries = append(entries, entry{id: point.GetId().GetUuid(), index: index})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].index < entries[j].index })

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids, nil
}

// recordFromPayload rebuilds a Record and its insert sequence from a point
// payload.
func recordFromPayload(id string, payload map[string]*qdrant.Value) (Record, int64) {
	rec := Record{ID: id, Meta: make(map[string]any, len(payload))}
	var seq int64

	for k, v := range payload {
		if v == nil {
			continue
		}
		switch k {
		case payloadText:
			rec.Text = v.GetStringValue()
		case payloadSeq:
			seq = v.GetIntegerValue()
		case MetaModels:
			if list := v.GetListValue(); list != nil {
				models := make([]string, 0, len(list.Values))
				for _, item := range list.Values {
					models = append(models, item.GetStringValue())
				}
				rec.Meta[k] = models
			}
		case MetaChunkIndex, MetaStart, MetaEnd:
			rec.Meta[k] = int(v.GetIntegerValue())
		default:
			rec.Meta[k] = convertValue(v)
		}
	}
	return rec, seq
}

// convertValue converts a Qdrant payload value to a plain Go value.
func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	default:
		return nil
	}
}

// normalizePayloadValue maps metadata values onto types qdrant.NewValueMap
// accepts.
func normalizePayloadValue(v any) any {
	switch val := v.(type) {
	case []string:
		list := make([]any, len(val))
		for i, s := range val {
			list[i] = s
		}
		return list
	default:
		return v
	}
}
