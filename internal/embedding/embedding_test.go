package embedding

import (
	"context"
	"testing"

	"github.com/legatoo/legal-semantic-search/internal/model"
)

func forceNoML() Config {
	return Config{NoMLMode: true}
}

type fakeModelClient struct{ dim int }

func (f fakeModelClient) Encode(ctx context.Context, model, text string) ([]float32, error) {
	return make([]float32, f.dim), nil
}

func TestMode_BruteForceWhenIndexNotInUse(t *testing.T) {
	cfg := Config{ModelClient: fakeModelClient{dim: 8}, ModelDimension: 8, AvailableMemoryMB: func() int { return 4096 }}
	svc := New(cfg, nil, nil)
	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := svc.Mode(true); got != model.ModelWithIndex {
		t.Fatalf("Mode(true) = %v, want ModelWithIndex", got)
	}
	if got := svc.Mode(false); got != model.ModelBruteForce {
		t.Fatalf("Mode(false) = %v, want ModelBruteForce", got)
	}
}

func TestEncode_NoMLModeDeterministicAndCorrectDimension(t *testing.T) {
	svc := New(forceNoML(), nil, nil)
	ctx := context.Background()

	a, err := svc.Encode(ctx, "عقد العمل بين الطرفين")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, err := svc.Encode(ctx, "عقد العمل بين الطرفين")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if len(a) != defaultHashDimension {
		t.Fatalf("len(a) = %d, want %d", len(a), defaultHashDimension)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("non-deterministic at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestEncode_SelfCosineSimilarityIsOne(t *testing.T) {
	svc := New(forceNoML(), nil, nil)
	ctx := context.Background()

	v, err := svc.Encode(ctx, "المادة الأولى من النظام")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	sim := CosineSimilarity(v, v)
	if sim < 0.999999 || sim > 1.000001 {
		t.Fatalf("self cosine similarity = %v, want ~1.0", sim)
	}
}

func TestEncode_EmptyInputReturnsZeroVector(t *testing.T) {
	svc := New(forceNoML(), nil, nil)
	ctx := context.Background()

	v, err := svc.Encode(ctx, "   ")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(v) != defaultHashDimension {
		t.Fatalf("len(v) = %d, want %d", len(v), defaultHashDimension)
	}
	for _, f := range v {
		if f != 0 {
			t.Fatalf("expected zero vector, got %v", v)
		}
	}
}

func TestCosineSimilarity_ZeroNormIsZero(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	if got := CosineSimilarity(a, b); got != 0 {
		t.Fatalf("CosineSimilarity = %v, want 0", got)
	}
}

func TestEncodeBatch_OrderPreservingAndMatchesSinglePath(t *testing.T) {
	svc := New(forceNoML(), nil, nil)
	ctx := context.Background()

	texts := []string{"النص الأول", "النص الثاني", "", "النص الأول"}
	outcomes, err := svc.EncodeBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	if len(outcomes) != len(texts) {
		t.Fatalf("len(outcomes) = %d, want %d", len(outcomes), len(texts))
	}

	single, err := svc.Encode(ctx, texts[0])
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := range single {
		if outcomes[0].Vector[i] != single[i] {
			t.Fatalf("batch/single mismatch at %d", i)
		}
	}

	if outcomes[0].Vector[0] != outcomes[3].Vector[0] {
		t.Fatalf("identical texts produced different vectors")
	}
	for _, f := range outcomes[2].Vector {
		if f != 0 {
			t.Fatalf("expected zero vector for empty text, got %v", outcomes[2].Vector)
		}
	}
}

func TestInitialize_MemoryGuardForcesNoML(t *testing.T) {
	cfg := Config{AvailableMemoryMB: func() int { return 64 }}
	svc := New(cfg, nil, nil)
	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if svc.Mode(true) != model.HashFallback {
		t.Fatalf("expected hash-fallback mode under low memory, got %v", svc.Mode(true))
	}
}

func TestStats_ReportsHitRateAndMode(t *testing.T) {
	svc := New(forceNoML(), nil, nil)
	ctx := context.Background()

	_, _ = svc.Encode(ctx, "نص للاختبار")
	_, _ = svc.Encode(ctx, "نص للاختبار")

	stats := svc.Stats(false)
	if stats.Requests != 2 {
		t.Fatalf("Requests = %d, want 2", stats.Requests)
	}
	if stats.CacheHits != 1 {
		t.Fatalf("CacheHits = %d, want 1", stats.CacheHits)
	}
	if stats.Mode != model.HashFallback {
		t.Fatalf("expected HashFallback mode, got %v", stats.Mode)
	}
	if stats.Dimension != defaultHashDimension {
		t.Fatalf("Dimension = %d, want %d", stats.Dimension, defaultHashDimension)
	}
}
