package semantic

import (
	"context"
	"errors"
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// --- Mocks ---

type mockPoints struct {
	upsertReq  *pb.UpsertPoints
	upsertResp *pb.PointsOperationResponse
	upsertErr  error
	deleteReq  *pb.DeletePoints
	deleteErr  error
	searchResp *pb.SearchResponse
	searchErr  error
	countResp  *pb.CountResponse
	countErr   error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upsertReq = in
	return m.upsertResp, m.upsertErr
}

func (m *mockPoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.deleteReq = in
	return nil, m.deleteErr
}

func (m *mockPoints) Search(_ context.Context, _ *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	return m.searchResp, m.searchErr
}

func (m *mockPoints) Count(_ context.Context, _ *pb.CountPoints, _ ...grpc.CallOption) (*pb.CountResponse, error) {
	return m.countResp, m.countErr
}

type mockCollections struct {
	listResp  *pb.ListCollectionsResponse
	listErr   error
	getResp   *pb.GetCollectionInfoResponse
	getErr    error
	created   *pb.CreateCollection
	createErr error
	deleteErr error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}

func (m *mockCollections) Get(_ context.Context, _ *pb.GetCollectionInfoRequest, _ ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	return m.getResp, m.getErr
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = in
	return nil, m.createErr
}

func (m *mockCollections) Delete(_ context.Context, _ *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return nil, m.deleteErr
}

func listWith(names ...string) *pb.ListCollectionsResponse {
	resp := &pb.ListCollectionsResponse{}
	for _, n := range names {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: n})
	}
	return resp
}

func infoWithSize(size uint64) *pb.GetCollectionInfoResponse {
	return &pb.GetCollectionInfoResponse{
		Result: &pb.CollectionInfo{
			Config: &pb.CollectionConfig{
				Params: &pb.CollectionParams{
					VectorsConfig: &pb.VectorsConfig{
						Config: &pb.VectorsConfig_Params{
							Params: &pb.VectorParams{Size: size, Distance: pb.Distance_Cosine},
						},
					},
				},
			},
		},
	}
}

// --- Tests ---

func TestEnsureCollection_CreatesWhenMissing(t *testing.T) {
	cols := &mockCollections{listResp: listWith("other")}
	vs := NewWithClients(&mockPoints{}, cols, "course_material")

	if err := vs.EnsureCollection(context.Background(), 384); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.created == nil {
		t.Fatal("expected Create call")
	}
	params := cols.created.GetVectorsConfig().GetParams()
	if params.GetSize() != 384 {
		t.Errorf("created with size %d, want 384", params.GetSize())
	}
	if params.GetDistance() != pb.Distance_Cosine {
		t.Errorf("created with distance %v, want cosine", params.GetDistance())
	}
}

func TestEnsureCollection_IdempotentReuse(t *testing.T) {
	cols := &mockCollections{
		listResp: listWith("course_material"),
		getResp:  infoWithSize(384),
	}
	vs := NewWithClients(&mockPoints{}, cols, "course_material")

	if err := vs.EnsureCollection(context.Background(), 384); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.created != nil {
		t.Fatal("existing collection must not be recreated")
	}
}

func TestEnsureCollection_DimensionMismatch(t *testing.T) {
	cols := &mockCollections{
		listResp: listWith("course_material"),
		getResp:  infoWithSize(768),
	}
	vs := NewWithClients(&mockPoints{}, cols, "course_material")

	err := vs.EnsureCollection(context.Background(), 384)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("got %v, want ErrDimensionMismatch", err)
	}
}

func TestUpsert_Empty(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{}, "test")
	if err := vs.Upsert(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pts.upsertReq != nil {
		t.Fatal("empty upsert must not hit the store")
	}
}

func TestUpsert_PayloadAndSeq(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{}, "test")
	vs.now = func() time.Time { return time.Unix(0, 1000) }

	records := []VectorRecord{
		{ID: "a", Embedding: []float32{0.1}, Content: "first", Source: "notes.txt", Index: 0},
		{ID: "b", Embedding: []float32{0.2}, Content: "second", Source: "notes.txt", Index: 1},
	}
	if err := vs.Upsert(context.Background(), records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pointsSent := pts.upsertReq.GetPoints()
	if len(pointsSent) != 2 {
		t.Fatalf("sent %d points, want 2", len(pointsSent))
	}
	if !pts.upsertReq.GetWait() {
		t.Error("upsert must wait for durability")
	}

	p0 := pointsSent[0].GetPayload()
	if p0["content"].GetStringValue() != "first" || p0["source"].GetStringValue() != "notes.txt" {
		t.Errorf("unexpected payload: %v", p0)
	}
	seq0 := p0["seq"].GetIntegerValue()
	seq1 := pointsSent[1].GetPayload()["seq"].GetIntegerValue()
	if seq1 != seq0+1 {
		t.Errorf("seq not monotonic within batch: %d then %d", seq0, seq1)
	}
}

func TestUpsert_Error(t *testing.T) {
	pts := &mockPoints{upsertErr: errors.New("boom")}
	vs := NewWithClients(pts, &mockCollections{}, "test")
	err := vs.Upsert(context.Background(), []VectorRecord{{ID: "a"}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func searchHit(id string, score float32, seq int64, content string) *pb.ScoredPoint {
	return &pb.ScoredPoint{
		Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
		Score: score,
		Payload: map[string]*pb.Value{
			"content": {Kind: &pb.Value_StringValue{StringValue: content}},
			"source":  {Kind: &pb.Value_StringValue{StringValue: "notes.txt"}},
			"seq":     {Kind: &pb.Value_IntegerValue{IntegerValue: seq}},
		},
	}
}

func TestSearch_OrderAndTieBreak(t *testing.T) {
	pts := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				// Identical scores: the later-inserted point arrives first
				// from the server but must sort after the earlier one.
				searchHit("late", 0.9, 200, "late insert"),
				searchHit("early", 0.9, 100, "early insert"),
				searchHit("best", 0.95, 300, "best match"),
			},
		},
	}
	vs := NewWithClients(pts, &mockCollections{}, "test")

	results, err := vs.Search(context.Background(), []float32{0.1}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantOrder := []string{"best", "early", "late"}
	for i, want := range wantOrder {
		if results[i].ID != want {
			t.Errorf("result %d = %s, want %s", i, results[i].ID, want)
		}
	}
	if results[1].Content != "early insert" {
		t.Errorf("payload not mapped: %+v", results[1])
	}
}

func TestSearch_Error(t *testing.T) {
	pts := &mockPoints{searchErr: errors.New("down")}
	vs := NewWithClients(pts, &mockCollections{}, "test")
	if _, err := vs.Search(context.Background(), []float32{0.1}, 3); err == nil {
		t.Fatal("expected error")
	}
}

func TestCount(t *testing.T) {
	pts := &mockPoints{countResp: &pb.CountResponse{Result: &pb.CountResult{Count: 42}}}
	vs := NewWithClients(pts, &mockCollections{}, "test")

	n, err := vs.Count(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 42 {
		t.Fatalf("got %d, want 42", n)
	}
}

func TestExists(t *testing.T) {
	vs := NewWithClients(&mockPoints{}, &mockCollections{listResp: listWith("a", "b")}, "b")
	ok, err := vs.Exists(context.Background())
	if err != nil || !ok {
		t.Fatalf("got (%v, %v), want (true, nil)", ok, err)
	}

	vs = NewWithClients(&mockPoints{}, &mockCollections{listResp: listWith("a")}, "b")
	ok, err = vs.Exists(context.Background())
	if err != nil || ok {
		t.Fatalf("got (%v, %v), want (false, nil)", ok, err)
	}
}

func TestDeleteBySource(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{}, "test")
	if err := vs.DeleteBySource(context.Background(), "notes.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pts.deleteReq == nil {
		t.Fatal("expected delete call")
	}
}

func TestCloseWithoutConn(t *testing.T) {
	vs := NewWithClients(&mockPoints{}, &mockCollections{}, "test")
	if err := vs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
