// Package semantic owns all Qdrant operations: collection lifecycle, batch
// upserts of embedded chunks, similarity search, and durable point counts.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ErrDimensionMismatch means the collection was created with a different
// embedding dimensionality. The embedding model cannot be swapped without
// rebuilding the index.
var ErrDimensionMismatch = errors.New("semantic: collection vector size differs from embedder dimensions")

// PointsAPI is the subset of the Qdrant points client the store uses.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

// CollectionsAPI is the subset of the Qdrant collections client the store uses.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string
	now         func() time.Time
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		now:         time.Now,
	}, nil
}

// NewWithClients creates a VectorStore over pre-built clients. Used by tests.
func NewWithClients(points PointsAPI, collections CollectionsAPI, collection string) *VectorStore {
	return &VectorStore{
		points:      points,
		collections: collections,
		collection:  collection,
		now:         time.Now,
	}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist. Repeated
// startups against the same collection reuse it; an existing collection
// whose vector size differs from dims fails with ErrDimensionMismatch,
// since that means the configured embedding model changed.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return v.checkDims(ctx, dims)
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

func (v *VectorStore) checkDims(ctx context.Context, dims int) error {
	info, err := v.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: v.collection})
	if err != nil {
		return fmt.Errorf("semantic: get collection %s: %w", v.collection, err)
	}
	size := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size != 0 && size != uint64(dims) {
		return fmt.Errorf("%w: collection has %d, embedder has %d", ErrDimensionMismatch, size, dims)
	}
	return nil
}

// DeleteCollection deletes the collection.
func (v *VectorStore) DeleteCollection(ctx context.Context) error {
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: v.collection,
	})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", v.collection, err)
	}
	return nil
}

// Upsert persists embedded chunks. The whole batch is written in one request
// with wait=true, so it is atomic at batch granularity. Each point payload
// carries a monotonically increasing seq used to break score ties by
// insertion order on search.
func (v *VectorStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	base := v.now().UnixNano()
	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				"content":     {Kind: &pb.Value_StringValue{StringValue: r.Content}},
				"source":      {Kind: &pb.Value_StringValue{StringValue: r.Source}},
				"chunk_index": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.Index)}},
				"seq":         {Kind: &pb.Value_IntegerValue{IntegerValue: base + int64(i)}},
			},
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// DeleteBySource removes all points ingested from the given source file.
func (v *VectorStore) DeleteBySource(ctx context.Context, source string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch("source", source),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete by source %s: %w", source, err)
	}
	return nil
}

// Search performs k-NN similarity search and returns at most topK results
// ordered by descending score, score ties broken by ascending seq so the
// earliest-inserted record wins.
func (v *VectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error) {
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		sr := SearchResult{
			ID:    r.GetId().GetUuid(),
			Score: r.GetScore(),
		}
		for k, val := range r.GetPayload() {
			switch k {
			case "content":
				sr.Content = val.GetStringValue()
			case "source":
				sr.Source = val.GetStringValue()
			case "chunk_index":
				sr.Index = int(val.GetIntegerValue())
			case "seq":
				sr.Seq = val.GetIntegerValue()
			}
		}
		results[i] = sr
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Seq < results[j].Seq
	})
	return results, nil
}

// Count returns the durable number of persisted points. Results reflect
// committed writes only, never staged batches.
func (v *VectorStore) Count(ctx context.Context) (uint64, error) {
	exact := true
	resp, err := v.points.Count(ctx, &pb.CountPoints{
		CollectionName: v.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("semantic: count: %w", err)
	}
	return resp.GetResult().GetCount(), nil
}

// Exists reports whether the collection has been created.
func (v *VectorStore) Exists(ctx context.Context) (bool, error) {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return true, nil
		}
	}
	return false, nil
}

// Collection returns the collection name this store writes to.
func (v *VectorStore) Collection() string { return v.collection }

func fieldMatch(key, value string) *pb.Condition {
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
