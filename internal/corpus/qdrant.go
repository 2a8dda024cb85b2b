package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ppiankov/tactimerge/internal/model"
)

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Get(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantStore keeps each report and its embedding in a single Qdrant point, so
// the pair is always written and read together. The collection name carries the
// embedder identity, so a differently configured embedder never shares a collection.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	meta        Meta
}

// OpenQdrant connects to Qdrant over gRPC and ensures the collection exists.
func OpenQdrant(ctx context.Context, addr, prefix string, meta Meta) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial qdrant %s", addr)
	}
	s := newQdrantStore(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), prefix, meta)
	s.conn = conn
	if err := s.ensureCollection(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func newQdrantStore(points pointsAPI, collections collectionsAPI, prefix string, meta Meta) *QdrantStore {
	if meta.Metric == "" {
		meta.Metric = MetricCosine
	}
	return &QdrantStore{
		points:      points,
		collections: collections,
		collection:  CollectionName(prefix, meta.Embedder),
		meta:        meta,
	}
}

// CollectionName derives the collection for an embedder identity.
func CollectionName(prefix, embedder string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '_'
	}, embedder)
	if prefix == "" {
		prefix = "match_reports"
	}
	return prefix + "__" + slug
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return errors.Wrap(err, "failed to list collections")
	}
	for _, c := range list.GetCollections() {
		if c.GetName() != s.collection {
			continue
		}
		info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collection})
		if err != nil {
			return errors.Wrapf(err, "failed to inspect collection %s", s.collection)
		}
		params := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams()
		existing := Meta{Dimensions: int(params.GetSize()), Metric: s.meta.Metric, Embedder: s.meta.Embedder}
		if params.GetDistance() != pb.Distance_Cosine {
			existing.Metric = strings.ToLower(params.GetDistance().String())
		}
		return existing.Check(s.meta)
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(s.meta.Dimensions),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	return errors.Wrapf(err, "failed to create collection %s", s.collection)
}

// Meta returns the store's embedding space.
func (s *QdrantStore) Meta() Meta { return s.meta }

// Put implements Store. Point ids are report ids, so a racing Put of the same
// content overwrites an identical point and can never create a second one.
func (s *QdrantStore) Put(ctx context.Context, report model.MatchReport, rec model.EmbeddingRecord) error {
	if err := validate(s.meta, report, rec); err != nil {
		return err
	}
	if _, err := s.Get(ctx, report.ID); err == nil {
		return fmt.Errorf("%w: %s", model.ErrDuplicateID, report.ID)
	} else if !errors.Is(err, model.ErrNotFound) {
		return err
	}
	return s.upsert(ctx, report, rec)
}

// Upsert implements Store.
func (s *QdrantStore) Upsert(ctx context.Context, report model.MatchReport, rec model.EmbeddingRecord) error {
	if err := validate(s.meta, report, rec); err != nil {
		return err
	}
	return s.upsert(ctx, report, rec)
}

func (s *QdrantStore) upsert(ctx context.Context, report model.MatchReport, rec model.EmbeddingRecord) error {
	doc, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "failed to encode report")
	}
	first, last := report.Years()
	wait := true
	_, err = s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: pointID(report.ID),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Vector}},
			},
			Payload: map[string]*pb.Value{
				"team":        stringValue(report.Team),
				"competition": stringValue(report.Competition),
				"era":         stringValue(report.Era),
				"era_from":    intValue(report.EraFrom),
				"era_to":      intValue(report.EraTo),
				"year":        intValue(first),
				"year_last":   intValue(last),
				"document":    stringValue(string(doc)),
			},
		}},
	})
	return errors.Wrapf(err, "failed to upsert report %s", report.ID)
}

// Get implements Store.
func (s *QdrantStore) Get(ctx context.Context, id string) (model.MatchReport, error) {
	resp, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: s.collection,
		Ids:            []*pb.PointId{pointID(id)},
		WithPayload:    withPayload(),
	})
	if err != nil {
		return model.MatchReport{}, errors.Wrapf(err, "failed to get report %s", id)
	}
	if len(resp.GetResult()) == 0 {
		return model.MatchReport{}, fmt.Errorf("%w: report %s", model.ErrNotFound, id)
	}
	return decodePayload(resp.GetResult()[0].GetPayload())
}

// Query implements Store. Filters are sent as Filter.Must, which Qdrant applies
// before scoring.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, filters Filters, limit int) ([]Hit, error) {
	if len(vector) != s.meta.Dimensions {
		return nil, fmt.Errorf("%w: query has %d, store has %d", model.ErrDimensionMismatch, len(vector), s.meta.Dimensions)
	}
	if limit <= 0 {
		return []Hit{}, nil
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Filter:         qdrantFilter(filters),
		Limit:          uint64(limit),
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search corpus")
	}
	hits := make([]Hit, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		report, err := decodePayload(p.GetPayload())
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Report: report, Score: float64(p.GetScore())})
	}
	SortHits(hits)
	return hits, nil
}

// Count implements Store.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: s.collection, Exact: &exact})
	if err != nil {
		return 0, errors.Wrap(err, "failed to count reports")
	}
	return int(resp.GetResult().GetCount()), nil
}

// Close implements Store.
func (s *QdrantStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func qdrantFilter(f Filters) *pb.Filter {
	var must []*pb.Condition
	if f.Team != "" {
		must = append(must, keywordMatch("team", f.Team))
	}
	if f.Competition != "" {
		must = append(must, keywordMatch("competition", f.Competition))
	}
	if f.FromYear != 0 {
		from := float64(f.FromYear)
		must = append(must, yearRange("year_last", &pb.Range{Gte: &from}))
	}
	if f.ToYear != 0 {
		to := float64(f.ToYear)
		must = append(must, yearRange("year", &pb.Range{Lte: &to}))
	}
	if len(must) == 0 {
		return nil
	}
	return &pb.Filter{Must: must}
}

func yearRange(key string, r *pb.Range) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: key, Range: r},
		},
	}
}

func keywordMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func decodePayload(payload map[string]*pb.Value) (model.MatchReport, error) {
	var report model.MatchReport
	doc := payload["document"].GetStringValue()
	if doc == "" {
		return report, errors.New("point has no report document")
	}
	if err := json.Unmarshal([]byte(doc), &report); err != nil {
		return report, errors.Wrap(err, "failed to decode report")
	}
	return report, nil
}

func pointID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func withPayload() *pb.WithPayloadSelector {
	return &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(i int) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(i)}}
}
