package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/legatoo/legal-semantic-search/internal/apierr"
	"github.com/legatoo/legal-semantic-search/internal/contracts"
	"github.com/legatoo/legal-semantic-search/internal/embedding"
	"github.com/legatoo/legal-semantic-search/internal/model"
)

type fakeStorage struct {
	chunks []model.Chunk
	meta   map[int64]contracts.ParentMetadata
}

func (f *fakeStorage) GetChunks(ctx context.Context, filter contracts.ChunkFilter, yield func(model.Chunk) bool) error {
	for _, c := range f.chunks {
		if filter.SourceType != "" && c.SourceType != filter.SourceType {
			continue
		}
		if filter.VerifiedOnly && !c.VerifiedByAdmin {
			continue
		}
		if !yield(c) {
			break
		}
	}
	return nil
}

func (f *fakeStorage) GetChunksMissingEmbedding(ctx context.Context, parentID int64, yield func(model.Chunk) bool) error {
	return nil
}

func (f *fakeStorage) SaveEmbeddings(ctx context.Context, updates []contracts.EmbeddingUpdate) error {
	return nil
}

func (f *fakeStorage) GetParentMetadataBulk(ctx context.Context, chunkIDs []int64) (map[int64]contracts.ParentMetadata, error) {
	out := make(map[int64]contracts.ParentMetadata, len(chunkIDs))
	for _, id := range chunkIDs {
		if m, ok := f.meta[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (f *fakeStorage) SetParentStatus(ctx context.Context, parentID int64, sourceType model.SourceType, status model.ParentStatus) error {
	return nil
}

func newTestService(chunks []model.Chunk) *Service {
	storage := &fakeStorage{chunks: chunks, meta: map[int64]contracts.ParentMetadata{}}
	embedder := embedding.New(embedding.Config{NoMLMode: true}, nil, nil)
	return New(Config{}, embedder, nil, storage, nil)
}

func TestFindSimilar_RejectsShortQuery(t *testing.T) {
	svc := newTestService(nil)
	_, err := svc.FindSimilar(context.Background(), Request{Query: "ab"})
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Kind != apierr.InvalidInput {
		t.Fatalf("expected InvalidInput error, got %v", err)
	}
}

func TestFindSimilar_NoCandidatesReturnsEmptySuccess(t *testing.T) {
	svc := newTestService(nil)
	data, err := svc.FindSimilar(context.Background(), Request{Query: "عقد العمل", SourceType: model.SourceLawArticle})
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if data.TotalResults != 0 || data.Results != nil {
		t.Fatalf("expected empty results, got %+v", data)
	}
}

func TestFindSimilar_VerifiedBoostOutranksEqualCosine(t *testing.T) {
	ctx := context.Background()
	embedder := embedding.New(embedding.Config{NoMLMode: true}, nil, nil)
	vec, _ := embedder.Encode(ctx, "عقد العمل بين الطرفين")

	chunks := []model.Chunk{
		{ID: 1, Content: "نص غير موثق", EmbeddingVector: vec, SourceType: model.SourceLawArticle, ParentStatus: model.StatusProcessed, VerifiedByAdmin: false},
		{ID: 2, Content: "نص موثق", EmbeddingVector: vec, SourceType: model.SourceLawArticle, ParentStatus: model.StatusProcessed, VerifiedByAdmin: true},
	}
	storage := &fakeStorage{chunks: chunks, meta: map[int64]contracts.ParentMetadata{}}
	svc := New(Config{}, embedder, nil, storage, nil)

	data, err := svc.FindSimilar(ctx, Request{Query: "عقد العمل بين الطرفين", SourceType: model.SourceLawArticle, Threshold: 0.01})
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(data.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(data.Results))
	}
	if data.Results[0].ID != 2 {
		t.Fatalf("expected verified chunk first, got ID=%d", data.Results[0].ID)
	}
}

func TestFindSimilar_NonDiscoverableChunkExcluded(t *testing.T) {
	ctx := context.Background()
	embedder := embedding.New(embedding.Config{NoMLMode: true}, nil, nil)
	vec, _ := embedder.Encode(ctx, "نص القانون")

	chunks := []model.Chunk{
		{ID: 1, Content: "نص القانون", EmbeddingVector: vec, SourceType: model.SourceLawArticle, ParentStatus: model.StatusRaw},
	}
	storage := &fakeStorage{chunks: chunks, meta: map[int64]contracts.ParentMetadata{}}
	svc := New(Config{}, embedder, nil, storage, nil)

	data, err := svc.FindSimilar(ctx, Request{Query: "نص القانون", SourceType: model.SourceLawArticle, Threshold: 0.01})
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if data.TotalResults != 0 {
		t.Fatalf("expected 0 results for non-discoverable chunk, got %d", data.TotalResults)
	}
}

func TestFindSimilar_CachesRepeatedQuery(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	req := Request{Query: "أحكام عامة", SourceType: model.SourceLawArticle}

	d1, err := svc.FindSimilar(ctx, req)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	d2, err := svc.FindSimilar(ctx, req)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if d1.Query != d2.Query {
		t.Fatalf("cached result mismatch")
	}

	validated := req
	if err := validateRequest(&validated); err != nil {
		t.Fatalf("validateRequest: %v", err)
	}
	if _, ok := svc.cache.get(cacheKey(validated)); !ok {
		t.Fatalf("expected the result to be stored in the query cache")
	}
}

func TestApplyBoosts_ClampsToOne(t *testing.T) {
	cfg := Config{VerifiedBoost: 1.15, RecencyBoost: 1.10, RecencyDays: 90}
	chunk := model.Chunk{VerifiedByAdmin: true, CreatedAt: time.Now()}
	got := applyBoosts(0.99, chunk, cfg)
	if got > 1.0 {
		t.Fatalf("applyBoosts() = %v, want <= 1.0", got)
	}
}

func TestKeywordOverlap_EmptySetsYieldZero(t *testing.T) {
	if got := keywordOverlap(map[string]bool{}, map[string]bool{"a": true}); got != 0 {
		t.Fatalf("keywordOverlap() = %v, want 0", got)
	}
}

func TestFindSimilar_ZeroThresholdReturnsAllWithinTopK(t *testing.T) {
	ctx := context.Background()
	embedder := embedding.New(embedding.Config{NoMLMode: true}, nil, nil)
	vec, _ := embedder.Encode(ctx, "نص قريب")
	unrelated, _ := embedder.Encode(ctx, "كلام مختلف تماما عن الاستعلام")

	chunks := []model.Chunk{
		{ID: 1, Content: "نص قريب جدا", EmbeddingVector: vec, SourceType: model.SourceLawArticle, ParentStatus: model.StatusProcessed},
		{ID: 2, Content: "نص بعيد", EmbeddingVector: unrelated, SourceType: model.SourceLawArticle, ParentStatus: model.StatusProcessed},
	}
	storage := &fakeStorage{chunks: chunks, meta: map[int64]contracts.ParentMetadata{}}
	svc := New(Config{}, embedder, nil, storage, nil)

	data, err := svc.FindSimilar(ctx, Request{Query: "نص قريب", SourceType: model.SourceLawArticle, Threshold: 0})
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if data.TotalResults != 2 {
		t.Fatalf("expected both chunks returned at threshold=0 regardless of similarity, got %d", data.TotalResults)
	}
	if data.Threshold != 0 {
		t.Fatalf("expected the explicit 0.0 threshold to survive validation, got %v", data.Threshold)
	}
}

func TestTopKBoundary_DefaultsAndCaps(t *testing.T) {
	req := Request{Query: "نص كافٍ للاختبار"}
	if err := validateRequest(&req); err != nil {
		t.Fatalf("validateRequest: %v", err)
	}
	if req.TopK != defaultTopK {
		t.Fatalf("TopK = %d, want default %d", req.TopK, defaultTopK)
	}

	req2 := Request{Query: "نص كافٍ للاختبار", TopK: 101}
	_ = validateRequest(&req2)
	if req2.TopK != maxTopK {
		t.Fatalf("TopK = %d, want capped %d", req2.TopK, maxTopK)
	}
}
