// Package maintenance implements Index Maintenance (C6): generating
// embeddings for pending chunks, rebuilding the vector index, and reporting
// completion status, with per-parent mutex serialization and small-batch
// persistence so query traffic stays serviceable during generation.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/legatoo/legal-semantic-search/internal/apierr"
	"github.com/legatoo/legal-semantic-search/internal/contracts"
	"github.com/legatoo/legal-semantic-search/internal/embedding"
	"github.com/legatoo/legal-semantic-search/internal/events"
	"github.com/legatoo/legal-semantic-search/internal/metrics"
	"github.com/legatoo/legal-semantic-search/internal/model"
	"github.com/legatoo/legal-semantic-search/internal/vectorindex"
)

var tracer = otel.Tracer("maintenance")

const persistBatchSize = 48 // small enough to keep query traffic serviceable during generation

// maxBatchChunkIDs bounds one batch-generate call's chunk_ids list.
const maxBatchChunkIDs = 1000

// GenerationResult is an alias of contracts.GenerationResult, so callers
// needing {total,processed,failed} don't import contracts just for this
// shape.
type GenerationResult = contracts.GenerationResult

// StatusBucket counts parents in one lifecycle status.
type StatusBucket struct {
	Status model.ParentStatus
	Count  int
}

// Status is an embedding-coverage snapshot.
type Status struct {
	TotalChunks          int
	ChunksWithEmbeddings int
	PercentComplete      float64
	ParentsByStatus      []StatusBucket
}

// Service is Index Maintenance (C6).
type Service struct {
	storage  contracts.StorageCollaborator
	embedder *embedding.Service
	index    *vectorindex.Index
	events   *events.Publisher
	log      *zap.Logger

	parentLocks sync.Map // map[int64]*sync.Mutex

	lastRebuildOK bool
	statusMu      sync.Mutex
}

// New builds a Service.
func New(storage contracts.StorageCollaborator, embedder *embedding.Service, index *vectorindex.Index, pub *events.Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{storage: storage, embedder: embedder, index: index, events: pub, log: log, lastRebuildOK: true}
}

func (s *Service) parentLock(parentID int64) *sync.Mutex {
	v, _ := s.parentLocks.LoadOrStore(parentID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// GenerateForDocument encodes and persists embeddings for every chunk of
// parentID missing one (or all of them, if overwrite is set).
func (s *Service) GenerateForDocument(ctx context.Context, parentID int64, overwrite bool) (GenerationResult, error) {
	ctx, span := tracer.Start(ctx, "maintenance.GenerateForDocument")
	defer span.End()

	lock := s.parentLock(parentID)
	lock.Lock()
	defer lock.Unlock()

	var pending []model.Chunk
	collect := func(c model.Chunk) bool {
		if !overwrite && c.HasEmbedding() {
			return true
		}
		pending = append(pending, c)
		return true
	}
	var err error
	if overwrite {
		err = s.storage.GetChunks(ctx, contracts.ChunkFilter{ParentID: parentID}, collect)
	} else {
		err = s.storage.GetChunksMissingEmbedding(ctx, parentID, collect)
	}
	if err != nil {
		return GenerationResult{}, apierr.Wrap(apierr.Internal, "load pending chunks", err)
	}

	result := GenerationResult{Total: len(pending)}
	if len(pending) == 0 {
		return result, nil
	}

	texts := make([]string, len(pending))
	for i, c := range pending {
		texts[i] = c.Content
	}

	outcomes, err := s.embedder.EncodeBatch(ctx, texts)
	if err != nil {
		return GenerationResult{}, apierr.Wrap(apierr.ServiceUnavailable, "encode batch", err)
	}

	updates := make([]contracts.EmbeddingUpdate, 0, len(pending))
	for i, c := range pending {
		if outcomes[i].Err != nil {
			result.Failed++
			continue
		}
		updates = append(updates, contracts.EmbeddingUpdate{ChunkID: c.ID, Vector: outcomes[i].Vector})
	}

	for start := 0; start < len(updates); start += persistBatchSize {
		end := start + persistBatchSize
		if end > len(updates) {
			end = len(updates)
		}
		batch := updates[start:end]
		if err := s.storage.SaveEmbeddings(ctx, batch); err != nil {
			s.log.Warn("batch persistence failed, rolling back this batch only",
				zap.Int64("parent_id", parentID), zap.Int("batch_start", start), zap.Error(err))
			result.Failed += len(batch)
			continue
		}
		result.Processed += len(batch)
	}

	if result.Failed == 0 && result.Processed == result.Total {
		if err := s.storage.SetParentStatus(ctx, parentID, "", model.StatusProcessed); err != nil {
			s.log.Warn("failed to transition parent status", zap.Int64("parent_id", parentID), zap.Error(err))
		}
	}

	if err := s.RebuildIndex(ctx); err != nil {
		s.log.Warn("index rebuild after generation failed", zap.Error(err))
	}

	if s.events != nil {
		s.events.PublishDocumentEmbedded(ctx, parentID, result.Processed, result.Failed)
	}

	return result, nil
}

// GenerateForChunks encodes and persists embeddings for an explicit list of
// chunk ids, skipping ones that already carry an embedding unless overwrite
// is set. Bounded at maxBatchChunkIDs ids per call.
func (s *Service) GenerateForChunks(ctx context.Context, chunkIDs []int64, overwrite bool) (GenerationResult, error) {
	ctx, span := tracer.Start(ctx, "maintenance.GenerateForChunks")
	defer span.End()

	if len(chunkIDs) > maxBatchChunkIDs {
		return GenerationResult{}, apierr.New(apierr.InvalidInput,
			fmt.Sprintf("chunk_ids carries %d entries, exceeding the %d per-call limit", len(chunkIDs), maxBatchChunkIDs))
	}
	if len(chunkIDs) == 0 {
		return GenerationResult{}, nil
	}

	var pending []model.Chunk
	err := s.storage.GetChunks(ctx, contracts.ChunkFilter{ChunkIDs: chunkIDs}, func(c model.Chunk) bool {
		if !overwrite && c.HasEmbedding() {
			return true
		}
		pending = append(pending, c)
		return true
	})
	if err != nil {
		return GenerationResult{}, apierr.Wrap(apierr.Internal, "load chunks by id", err)
	}

	result := GenerationResult{Total: len(pending)}
	if len(pending) == 0 {
		return result, nil
	}

	texts := make([]string, len(pending))
	for i, c := range pending {
		texts[i] = c.Content
	}

	outcomes, err := s.embedder.EncodeBatch(ctx, texts)
	if err != nil {
		return GenerationResult{}, apierr.Wrap(apierr.ServiceUnavailable, "encode batch", err)
	}

	updates := make([]contracts.EmbeddingUpdate, 0, len(pending))
	for i, c := range pending {
		if outcomes[i].Err != nil {
			result.Failed++
			continue
		}
		updates = append(updates, contracts.EmbeddingUpdate{ChunkID: c.ID, Vector: outcomes[i].Vector})
	}

	for start := 0; start < len(updates); start += persistBatchSize {
		end := start + persistBatchSize
		if end > len(updates) {
			end = len(updates)
		}
		batch := updates[start:end]
		if err := s.storage.SaveEmbeddings(ctx, batch); err != nil {
			s.log.Warn("batch persistence failed, rolling back this batch only", zap.Int("batch_start", start), zap.Error(err))
			result.Failed += len(batch)
			continue
		}
		result.Processed += len(batch)
	}

	if err := s.RebuildIndex(ctx); err != nil {
		s.log.Warn("index rebuild after generation failed", zap.Error(err))
	}

	if s.events != nil {
		s.events.PublishDocumentEmbedded(ctx, 0, result.Processed, result.Failed)
	}

	return result, nil
}

// RebuildIndex reloads every embedded chunk into the vector index. On
// failure, the previous index contents are retained (Add/Clear are never
// called), and the failure is recorded for Status().
func (s *Service) RebuildIndex(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "maintenance.RebuildIndex")
	defer span.End()

	start := time.Now()
	var ok bool
	defer func() { metrics.ObserveRebuild(time.Since(start), ok) }()

	var ids []int64
	var vectors [][]float32
	err := s.storage.GetChunks(ctx, contracts.ChunkFilter{}, func(c model.Chunk) bool {
		if c.HasEmbedding() {
			ids = append(ids, c.ID)
			vectors = append(vectors, c.EmbeddingVector)
		}
		return true
	})
	if err != nil {
		s.statusMu.Lock()
		s.lastRebuildOK = false
		s.statusMu.Unlock()
		return apierr.Wrap(apierr.Internal, "rebuild index", err)
	}

	s.index.Add(vectors, ids)
	metrics.IndexSize.Set(float64(len(ids)))

	s.statusMu.Lock()
	s.lastRebuildOK = true
	s.statusMu.Unlock()
	ok = true

	if s.events != nil {
		s.events.PublishIndexRebuilt(ctx, len(ids))
	}
	return nil
}

// StatusForDocument implements a per-parent narrowing of status(): the same
// total/with-embeddings/percent-complete figures scoped to one parent id.
func (s *Service) StatusForDocument(ctx context.Context, parentID int64) (Status, error) {
	return s.statusFiltered(ctx, contracts.ChunkFilter{ParentID: parentID})
}

// Status reports embedding coverage across every chunk.
func (s *Service) Status(ctx context.Context) (Status, error) {
	return s.statusFiltered(ctx, contracts.ChunkFilter{})
}

func (s *Service) statusFiltered(ctx context.Context, filter contracts.ChunkFilter) (Status, error) {
	var total, withEmbeddings int
	type parentKey struct {
		sourceType model.SourceType
		id         int64
	}
	buckets := make(map[model.ParentStatus]map[parentKey]bool)

	err := s.storage.GetChunks(ctx, filter, func(c model.Chunk) bool {
		total++
		if c.HasEmbedding() {
			withEmbeddings++
		}
		key := parentKey{sourceType: c.SourceType, id: c.LawSourceID}
		if c.SourceType == model.SourceCaseSection {
			key.id = c.CaseID
		}
		if buckets[c.ParentStatus] == nil {
			buckets[c.ParentStatus] = make(map[parentKey]bool)
		}
		buckets[c.ParentStatus][key] = true
		return true
	})
	if err != nil {
		return Status{}, apierr.Wrap(apierr.Internal, "load status", err)
	}

	var pct float64
	if total > 0 {
		pct = float64(withEmbeddings) / float64(total) * 100
	}

	out := Status{TotalChunks: total, ChunksWithEmbeddings: withEmbeddings, PercentComplete: pct}
	for status, parents := range buckets {
		out.ParentsByStatus = append(out.ParentsByStatus, StatusBucket{Status: status, Count: len(parents)})
	}
	return out, nil
}
