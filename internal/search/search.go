// Package search implements the Search Service (C5): embedding-driven
// similarity search over chunks with verified/recency boosts, bulk
// metadata enrichment, stable tie-breaking, and an optional hybrid
// lexical+semantic scoring mode.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/legatoo/legal-semantic-search/internal/apierr"
	"github.com/legatoo/legal-semantic-search/internal/contracts"
	"github.com/legatoo/legal-semantic-search/internal/embedding"
	"github.com/legatoo/legal-semantic-search/internal/metrics"
	"github.com/legatoo/legal-semantic-search/internal/model"
	"github.com/legatoo/legal-semantic-search/internal/normalize"
	"github.com/legatoo/legal-semantic-search/internal/vectorindex"
)

var tracer = otel.Tracer("search")

const (
	minQueryLength = 3
	defaultTopK    = 10
	maxTopK        = 100
	defaultThreshold = 0.6

	overfetchFactor = 5
	overfetchFloor  = 50
)

// Config tunes the scoring constants.
type Config struct {
	VerifiedBoost  float32
	RecencyBoost   float32
	RecencyDays    int
	QueryCacheSize int
	HybridAlpha    float32
	UseVectorIndex bool
}

func (c Config) withDefaults() Config {
	if c.VerifiedBoost == 0 {
		c.VerifiedBoost = 1.15
	}
	if c.RecencyBoost == 0 {
		c.RecencyBoost = 1.10
	}
	if c.RecencyDays == 0 {
		c.RecencyDays = 90
	}
	if c.QueryCacheSize == 0 {
		c.QueryCacheSize = 200
	}
	if c.HybridAlpha == 0 {
		c.HybridAlpha = 0.7
	}
	return c
}

// Filters narrows candidate retrieval.
type Filters struct {
	LawSourceID  int64
	Jurisdiction string
	CaseID       int64
	VerifiedOnly bool
	MinDate      time.Time
	MaxDate      time.Time
}

func (f Filters) empty() bool {
	return f == Filters{}
}

// UnsetThreshold means "no threshold was specified, apply the default"; an
// explicit Threshold of 0.0 instead means "return up to top_k results
// regardless of similarity" and must never be silently rewritten.
const UnsetThreshold float32 = -1

// Request is one similarity-search call.
type Request struct {
	Query      string
	TopK       int
	Threshold  float32
	Filters    Filters
	SourceType model.SourceType
}

// Service is the search service: embedding-driven similarity search.
type Service struct {
	cfg       Config
	embedder  *embedding.Service
	index     *vectorindex.Index
	storage   contracts.StorageCollaborator
	cache     *queryCache
	log       *zap.Logger
}

// New builds a Service.
func New(cfg Config, embedder *embedding.Service, index *vectorindex.Index, storage contracts.StorageCollaborator, log *zap.Logger) *Service {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		embedder: embedder,
		index:    index,
		storage:  storage,
		cache:    newQueryCache(cfg.QueryCacheSize),
		log:      log,
	}
}

// candidate is an in-flight scored result before enrichment.
type candidate struct {
	chunk model.Chunk
	score float32
}

// UsingIndex reports whether an unfiltered retrieval currently goes through
// the vector index rather than a brute-force storage scan.
func (s *Service) UsingIndex() bool {
	return s.cfg.UseVectorIndex && s.index != nil && s.index.Size() > 0
}

// FindSimilar embeds the query, retrieves and scores candidates, and
// returns the enriched, sorted top-k results.
func (s *Service) FindSimilar(ctx context.Context, req Request) (contracts.SearchData, error) {
	ctx, span := tracer.Start(ctx, "search.FindSimilar")
	defer span.End()

	start := time.Now()
	defer func() { metrics.ObserveSearch(time.Since(start)) }()

	if err := validateRequest(&req); err != nil {
		return contracts.SearchData{}, err
	}

	key := cacheKey(req)
	if cached, ok := s.cache.get(key); ok {
		metrics.CacheHits.WithLabelValues("query").Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues("query").Inc()

	queryVec, err := s.embedder.Encode(ctx, req.Query)
	if err != nil {
		return contracts.SearchData{}, apierr.Wrap(apierr.ServiceUnavailable, "encode query", err)
	}

	candidates, err := s.retrieveCandidates(ctx, req, queryVec)
	if err != nil {
		return contracts.SearchData{}, err
	}

	scored := s.scoreAndFilter(candidates, req.Threshold)
	if len(scored) == 0 {
		data := contracts.SearchData{Query: req.Query, Results: nil, TotalResults: 0, Threshold: req.Threshold}
		s.cache.set(key, data)
		return data, nil
	}

	enriched, err := s.enrich(ctx, scored)
	if err != nil {
		return contracts.SearchData{}, err
	}

	sortResults(enriched)
	if len(enriched) > req.TopK {
		enriched = enriched[:req.TopK]
	}

	data := contracts.SearchData{
		Query:        req.Query,
		Results:      enriched,
		TotalResults: len(enriched),
		Threshold:    req.Threshold,
	}
	s.cache.set(key, data)
	return data, nil
}

// FindSimilarHybrid blends semantic and lexical scoring: the final score is
// alpha*cosine + (1-alpha)*keyword_overlap. An alpha outside [0, 1] is
// replaced by the configured HybridAlpha.
func (s *Service) FindSimilarHybrid(ctx context.Context, req Request, alpha float32) (contracts.SearchData, error) {
	if alpha < 0 || alpha > 1 {
		alpha = s.cfg.HybridAlpha
	}
	if err := validateRequest(&req); err != nil {
		return contracts.SearchData{}, err
	}

	queryVec, err := s.embedder.Encode(ctx, req.Query)
	if err != nil {
		return contracts.SearchData{}, apierr.Wrap(apierr.ServiceUnavailable, "encode query", err)
	}
	candidates, err := s.retrieveCandidates(ctx, req, queryVec)
	if err != nil {
		return contracts.SearchData{}, err
	}

	queryTokens := tokenize(normalize.Text(req.Query))
	scored := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		cosine := embedding.CosineSimilarity(queryVec, c.chunk.EmbeddingVector)
		overlap := keywordOverlap(queryTokens, tokenize(normalize.Text(c.chunk.Content)))
		final := alpha*cosine + (1-alpha)*overlap
		final = applyBoosts(final, c.chunk, s.cfg)
		if final < req.Threshold {
			continue
		}
		scored = append(scored, candidate{chunk: c.chunk, score: final})
	}

	if len(scored) == 0 {
		return contracts.SearchData{Query: req.Query, Threshold: req.Threshold}, nil
	}

	enriched, err := s.enrich(ctx, scored)
	if err != nil {
		return contracts.SearchData{}, err
	}
	sortResults(enriched)
	if len(enriched) > req.TopK {
		enriched = enriched[:req.TopK]
	}
	return contracts.SearchData{
		Query:        req.Query,
		Results:      enriched,
		TotalResults: len(enriched),
		Threshold:    req.Threshold,
	}, nil
}

func validateRequest(req *Request) error {
	q := strings.TrimSpace(req.Query)
	if len([]rune(q)) < minQueryLength {
		return apierr.New(apierr.InvalidInput, "query must be at least 3 characters")
	}
	req.Query = q

	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}
	if req.TopK > maxTopK {
		req.TopK = maxTopK
	}
	if req.Threshold < 0 {
		req.Threshold = defaultThreshold
	}
	if req.Threshold > 1 {
		req.Threshold = 1
	}
	return nil
}

// retrieveCandidates does an index-backed over-fetch when filters are
// absent, otherwise a brute-force storage scan.
func (s *Service) retrieveCandidates(ctx context.Context, req Request, queryVec []float32) ([]candidate, error) {
	if req.Filters.empty() && s.UsingIndex() {
		k := req.TopK * overfetchFactor
		if k < overfetchFloor {
			k = overfetchFloor
		}
		matches := s.index.Search(queryVec, k)
		out := make([]candidate, 0, len(matches))

		// Index-backed retrieval returns (id, score) pairs only; the
		// chunk bodies and verified/created_at fields needed for scoring
		// and enrichment still come from one bulk storage scan, matching
		// req.SourceType.
		filter := contracts.ChunkFilter{SourceType: req.SourceType}
		chunkByID := make(map[int64]model.Chunk, len(matches))
		_ = s.storage.GetChunks(ctx, filter, func(c model.Chunk) bool {
			chunkByID[c.ID] = c
			return true
		})
		for _, m := range matches {
			c, ok := chunkByID[m.ID]
			if !ok || !c.Discoverable() {
				continue
			}
			out = append(out, candidate{chunk: c, score: m.Score})
		}
		return out, nil
	}

	filter := contracts.ChunkFilter{
		SourceType:   req.SourceType,
		ParentID:     coalesce(req.Filters.LawSourceID, req.Filters.CaseID),
		Jurisdiction: req.Filters.Jurisdiction,
		VerifiedOnly: req.Filters.VerifiedOnly,
		MinDate:      req.Filters.MinDate,
		MaxDate:      req.Filters.MaxDate,
	}

	var out []candidate
	err := s.storage.GetChunks(ctx, filter, func(c model.Chunk) bool {
		if !c.Discoverable() {
			return true
		}
		score := embedding.CosineSimilarity(queryVec, c.EmbeddingVector)
		out = append(out, candidate{chunk: c, score: score})
		return true
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "load candidates", err)
	}
	return out, nil
}

func coalesce(a, b int64) int64 {
	if a != 0 {
		return a
	}
	return b
}

// scoreAndFilter applies verified/recency boosts then filters by threshold.
func (s *Service) scoreAndFilter(candidates []candidate, threshold float32) []candidate {
	out := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		c.score = applyBoosts(c.score, c.chunk, s.cfg)
		if c.score < threshold {
			continue
		}
		out = append(out, c)
	}
	return out
}

func applyBoosts(score float32, chunk model.Chunk, cfg Config) float32 {
	if chunk.VerifiedByAdmin {
		score *= cfg.VerifiedBoost
	}
	if !chunk.CreatedAt.IsZero() && time.Since(chunk.CreatedAt) <= time.Duration(cfg.RecencyDays)*24*time.Hour {
		score *= cfg.RecencyBoost
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// enrich attaches hierarchy metadata via a single bulk fetch, no N+1 queries.
func (s *Service) enrich(ctx context.Context, candidates []candidate) ([]contracts.SearchResult, error) {
	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.chunk.ID
	}
	meta, err := s.storage.GetParentMetadataBulk(ctx, ids)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "enrich results", err)
	}

	out := make([]contracts.SearchResult, len(candidates))
	for i, c := range candidates {
		m := meta[c.chunk.ID]
		out[i] = contracts.SearchResult{
			ID:              c.chunk.ID,
			Content:         c.chunk.Content,
			Similarity:      c.score,
			SourceType:      c.chunk.SourceType,
			Verified:        c.chunk.VerifiedByAdmin,
			ChunkIndex:      c.chunk.ChunkIndex,
			LawMetadata:     m.LawSource,
			ArticleMetadata: m.Article,
			BranchMetadata:  m.Branch,
			ChapterMetadata: m.Chapter,
			CaseMetadata:    m.Case,
			SectionMetadata: m.Section,
			CreatedAt:       c.chunk.CreatedAt,
		}
	}
	return out, nil
}

// sortResults orders by final score descending; ties are broken by
// verified-first, then newer created_at first, then smaller chunk id,
// stably.
func sortResults(results []contracts.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Verified != b.Verified {
			return a.Verified
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func cacheKey(req Request) string {
	normalized := normalize.Text(req.Query)
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%.4f|%s|%d|%s|%v|%d|%d",
		normalized, req.TopK, req.Threshold, req.SourceType,
		req.Filters.LawSourceID, req.Filters.Jurisdiction, req.Filters.VerifiedOnly,
		req.Filters.MinDate.Unix(), req.Filters.MaxDate.Unix())
	return hex.EncodeToString(h.Sum(nil))
}

func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9' ||
			(r >= 0x0600 && r <= 0x06FF))
	})
	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		tokens[f] = true
	}
	return tokens
}

func keywordOverlap(a, b map[string]bool) float32 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var overlap int
	for t := range a {
		if b[t] {
			overlap++
		}
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	return float32(overlap) / float32(denom)
}
