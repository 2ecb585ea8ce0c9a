// Package embedding converts normalized text into dense vectors, with an
// in-process + optional Redis two-tier cache, batching, a low-memory/
// model-failure guard that falls back to deterministic hash embeddings, and
// a bounded worker-pool fan-out for batch encoding.
package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/legatoo/legal-semantic-search/internal/metrics"
	"github.com/legatoo/legal-semantic-search/internal/model"
	"github.com/legatoo/legal-semantic-search/internal/normalize"
)

// Config tunes the Embedding Service. Zero values fall back to sane defaults.
type Config struct {
	ModelName        string
	Device           string
	BatchSize        int
	MaxSeqTokens     int
	CacheMaxEntries  int
	NoMLMode         bool
	HashDimension    int
	AvailableMemoryMB func() int // overridable for tests; defaults to a conservative probe
	ModelClient       ModelClient // optional; nil commits the service to hash-fallback mode
	ModelDimension    int         // expected output dimension of ModelClient, probed during Initialize
}

const (
	defaultBatchSize       = 32
	defaultMaxSeqTokens    = 512
	defaultCacheMaxEntries = 10000
	defaultHashDimension   = 256
	memoryGuardThresholdMB = 1536 // ~1.5 GB
)

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxSeqTokens <= 0 {
		c.MaxSeqTokens = defaultMaxSeqTokens
	}
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = defaultCacheMaxEntries
	}
	if c.HashDimension <= 0 {
		c.HashDimension = defaultHashDimension
	}
	if c.Device == "" {
		c.Device = "cpu"
	}
	if c.ModelName == "" {
		c.ModelName = "sts-arabert-multilingual"
	}
	if c.AvailableMemoryMB == nil {
		c.AvailableMemoryMB = probeAvailableMemoryMB
	}
	return c
}

// RedisCache is the narrow interface the Service's L2 tier needs; satisfied
// by *redis.Client from github.com/redis/go-redis/v9. A nil RedisCache
// degrades the Service to L1-only.
type RedisCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// BatchOutcome is the per-text result of EncodeBatch: a sum type instead of
// a panic, so one failed text never aborts the whole batch.
type BatchOutcome struct {
	Vector []float32
	Err    error
}

// Stats is a snapshot of the service's operating counters.
type Stats struct {
	CacheHitRate float64
	ModelName    string
	Dimension    int
	Device       string
	Mode         model.EmbeddingMode
	// IndexSize is the number of entries in the in-process (L1) embedding
	// cache. The service holds no reference to the vector index, so the
	// index's own size is not reported here.
	IndexSize    int
	Requests     int64
	CacheHits    int64
}

// Service is the Embedding Service (C3).
type Service struct {
	cfg Config
	log *zap.Logger

	mu          sync.RWMutex
	ready       bool
	dimension   int
	noMLMode    bool
	modelLoaded bool

	l1    *lruCache
	redis RedisCache

	requests  int64
	cacheHits int64
	statsMu   sync.Mutex
}

// New builds a Service. Initialize must be called before Encode/EncodeBatch
// to load the model (or decide on hash-fallback), but every operation
// tolerates being called before Initialize by lazily initializing itself.
func New(cfg Config, redis RedisCache, log *zap.Logger) *Service {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:   cfg,
		log:   log,
		l1:    newLRUCache(cfg.CacheMaxEntries),
		redis: redis,
	}
}

// Initialize loads the model, probing its output dimension, or commits to
// NO-ML mode. It is idempotent and safe to call repeatedly.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	if s.cfg.NoMLMode {
		s.commitNoMLLocked("no_ml_mode configured")
		return nil
	}

	availMB := s.cfg.AvailableMemoryMB()
	if availMB < memoryGuardThresholdMB {
		s.log.Warn("low memory, forcing hash-fallback mode",
			zap.Int("available_mb", availMB), zap.Int("threshold_mb", memoryGuardThresholdMB))
		s.commitNoMLLocked("memory guard")
		return nil
	}

	dim, err := s.loadModelLocked(ctx)
	if err != nil {
		s.log.Warn("model load failed, falling back to hash embeddings", zap.Error(err))
		s.commitNoMLLocked("model load failure")
		return nil
	}

	s.dimension = dim
	s.modelLoaded = true
	s.ready = true

	// Warm the cache with a throwaway encode.
	s.mu.Unlock()
	_, _ = s.Encode(ctx, "تهيئة أولية")
	s.mu.Lock()

	return nil
}

// commitNoMLLocked switches the service into NO-ML mode. Caller holds s.mu.
func (s *Service) commitNoMLLocked(reason string) {
	s.noMLMode = true
	s.dimension = s.cfg.HashDimension
	s.ready = true
	s.log.Info("embedding service running in no-ml mode", zap.String("reason", reason), zap.Int("dimension", s.dimension))
}

// loadModelLocked probes the configured ModelClient with a throwaway encode
// to determine its output dimension D. With no ModelClient configured, it
// reports failure and lets the caller fall back to hash embeddings — the
// same code path a genuine load failure takes.
func (s *Service) loadModelLocked(ctx context.Context) (int, error) {
	if s.cfg.ModelClient == nil {
		return 0, errModelUnavailable
	}
	vec, err := s.cfg.ModelClient.Encode(ctx, s.cfg.ModelName, "تهيئة أولية")
	if err != nil {
		return 0, fmt.Errorf("probe model dimension: %w", err)
	}
	if s.cfg.ModelDimension > 0 && len(vec) != s.cfg.ModelDimension {
		return 0, fmt.Errorf("model returned dimension %d, expected %d", len(vec), s.cfg.ModelDimension)
	}
	return len(vec), nil
}

var errModelUnavailable = &modelUnavailableError{}

type modelUnavailableError struct{}

func (*modelUnavailableError) Error() string {
	return "embedding model backend not available in this build"
}

// Mode reports the service's current EmbeddingMode. usingIndex reflects
// whether the caller's retrieval path is currently backed by the vector
// index (as opposed to a brute-force storage scan); the embedding service
// has no visibility into that decision on its own.
func (s *Service) Mode(usingIndex bool) model.EmbeddingMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modeLocked(usingIndex)
}

func (s *Service) modeLocked(usingIndex bool) model.EmbeddingMode {
	if s.noMLMode {
		return model.HashFallback
	}
	if usingIndex {
		return model.ModelWithIndex
	}
	return model.ModelBruteForce
}

// Dimension returns D, the vector length this service is committed to.
func (s *Service) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension == 0 {
		return s.cfg.HashDimension
	}
	return s.dimension
}

// Encode converts text into a dense vector, consulting the cache first.
func (s *Service) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	normalized := normalize.Text(text)
	if normalized == "" {
		return make([]float32, s.Dimension()), nil
	}
	normalized = truncateTokens(normalized, s.cfg.MaxSeqTokens)

	s.trackRequest()

	key := normalized
	if v, ok := s.cacheGet(ctx, key); ok {
		s.trackHit()
		metrics.CacheHits.WithLabelValues("embedding").Inc()
		return v, nil
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()

	vec := s.computeVector(ctx, normalized)
	s.cacheSet(ctx, key, vec)
	return vec, nil
}

// EncodeBatch encodes texts in order, consulting the per-text cache first
// and partitioning the remainder into mini-batches whose failures are
// isolated from one another.
func (s *Service) EncodeBatch(ctx context.Context, texts []string) ([]BatchOutcome, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	out := make([]BatchOutcome, len(texts))
	normalized := make([]string, len(texts))
	pending := make([]int, 0, len(texts))

	for i, t := range texts {
		n := truncateTokens(normalize.Text(t), s.cfg.MaxSeqTokens)
		normalized[i] = n
		s.trackRequest()
		if n == "" {
			out[i] = BatchOutcome{Vector: make([]float32, s.Dimension())}
			continue
		}
		if v, ok := s.cacheGet(ctx, n); ok {
			s.trackHit()
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			out[i] = BatchOutcome{Vector: v}
			continue
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		pending = append(pending, i)
	}

	batchSize := s.cfg.BatchSize
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	semaphore := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		miniBatch := pending[start:end]

		wg.Add(1)
		go func(indices []int) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			// A mini-batch's failure must not contaminate others:
			// recover and fall back to hash embeddings for this
			// mini-batch only.
			defer func() {
				if r := recover(); r != nil {
					for _, idx := range indices {
						vec := hashEmbedding(normalized[idx], s.cfg.HashDimension)
						out[idx] = BatchOutcome{Vector: vec}
						s.cacheSet(ctx, normalized[idx], vec)
					}
				}
			}()

			for _, idx := range indices {
				vec := s.computeVector(ctx, normalized[idx])
				out[idx] = BatchOutcome{Vector: vec}
				s.cacheSet(ctx, normalized[idx], vec)
			}
		}(miniBatch)
	}

	wg.Wait()
	return out, nil
}

// computeVector runs the configured backend (model or hash fallback) on
// already-normalized-and-truncated text. A model-call failure degrades to
// the hash embedding for that single text rather than failing the whole
// operation.
func (s *Service) computeVector(ctx context.Context, normalized string) []float32 {
	start := time.Now()
	defer func() { metrics.ObserveEncode(time.Since(start)) }()

	s.mu.RLock()
	noML := s.noMLMode
	dim := s.dimension
	client := s.cfg.ModelClient
	modelName := s.cfg.ModelName
	s.mu.RUnlock()

	if noML || dim == 0 || client == nil {
		return hashEmbedding(normalized, s.cfg.HashDimension)
	}

	vec, err := client.Encode(ctx, modelName, normalized)
	if err != nil {
		s.log.Warn("model encode failed, falling back to hash embedding for this text", zap.Error(err))
		return hashEmbedding(normalized, dim)
	}
	return vec
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// if either is a zero vector or their dimensions disagree.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Stats reports the service's current operating counters. usingIndex has
// the same meaning as in Mode.
func (s *Service) Stats(usingIndex bool) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	var hitRate float64
	if s.requests > 0 {
		hitRate = float64(s.cacheHits) / float64(s.requests)
	}
	return Stats{
		CacheHitRate: hitRate,
		ModelName:    s.cfg.ModelName,
		Dimension:    s.dimension,
		Device:       s.cfg.Device,
		Mode:         s.modeLocked(usingIndex),
		IndexSize:    s.l1.size(),
		Requests:     s.requests,
		CacheHits:    s.cacheHits,
	}
}

func (s *Service) ensureReady(ctx context.Context) error {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()
	if ready {
		return nil
	}
	return s.Initialize(ctx)
}

func (s *Service) trackRequest() {
	s.statsMu.Lock()
	s.requests++
	s.statsMu.Unlock()
}

func (s *Service) trackHit() {
	s.statsMu.Lock()
	s.cacheHits++
	s.statsMu.Unlock()
}

// truncateTokens enforces a max token budget by a whitespace split, which
// is the per-token unit this service controls end-to-end.
func truncateTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	tokens := splitWhitespace(text)
	if len(tokens) <= maxTokens {
		return text
	}
	truncated := tokens[:maxTokens]
	out := ""
	for i, t := range truncated {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}

func splitWhitespace(s string) []string {
	var tokens []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			if start >= 0 {
				tokens = append(tokens, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, s[start:])
	}
	return tokens
}

// hashEmbedding is the deterministic, model-free hash-fallback embedding: a
// vector derived from a SHA-256 digest of the normalized text, repeated to
// fill dim floats in [0, 1].
func hashEmbedding(normalizedText string, dim int) []float32 {
	sum := sha256.Sum256([]byte(normalizedText))
	vec := make([]float32, dim)
	for i := 0; i < dim; i++ {
		vec[i] = float32(sum[i%len(sum)]) / 255.0
	}
	return vec
}

// probeAvailableMemoryMB is a conservative approximation of free system
// memory using the Go runtime's own stats, since the process has no
// cgo-free way to query OS-level free memory. It reports a fixed assumed
// headroom of 4096 MB minus the memory the runtime has already obtained from
// the OS (0 once that exceeds the assumed headroom), without requiring a
// platform-specific dependency.
func probeAvailableMemoryMB() int {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	// Sys is total memory obtained from the OS by the runtime; treat
	// anything beyond that as unknown/available rather than risk a false
	// negative on a healthy machine.
	const assumedHeadroomMB = 4096
	usedMB := int(m.Sys / (1024 * 1024))
	if usedMB > assumedHeadroomMB {
		return 0
	}
	return assumedHeadroomMB - usedMB
}
