// Package contracts declares the interfaces the core consumes from its
// ingestion and storage collaborators, and the shapes it exposes upward
// through the search API.
package contracts

import (
	"context"
	"time"

	"github.com/legatoo/legal-semantic-search/internal/model"
)

// ChunkFilter narrows a Storage fetch. Zero values mean "no constraint".
type ChunkFilter struct {
	ParentID        int64 // law_source_id or case_id, depending on SourceType
	ChunkIDs        []int64
	SourceType      model.SourceType
	Jurisdiction    string
	VerifiedOnly    bool
	MinDate         time.Time
	MaxDate         time.Time
	OnlyMissingEmbedding bool
}

// EmbeddingUpdate is one (chunk_id, vector) pair to persist.
type EmbeddingUpdate struct {
	ChunkID int64
	Vector  []float32
}

// ParentMetadata is the bulk-fetched hierarchy context used to enrich a
// search result. Exactly one of the law-side or case-side fields is
// populated, matching the chunk's SourceType.
type ParentMetadata struct {
	LawSource *model.LawSource
	Branch    *model.LawBranch
	Chapter   *model.LawChapter
	Article   *model.LawArticle

	Case    *model.LegalCase
	Section *model.CaseSection
}

// StorageCollaborator is the persistence boundary the core consumes. It is
// external to the core — the core only ever calls through this interface,
// never touches a database driver directly outside of the reference
// implementation in internal/storage/postgres.
type StorageCollaborator interface {
	// GetChunks streams chunks matching filter, forwarding each to yield
	// until it returns false or the iterator is exhausted.
	GetChunks(ctx context.Context, filter ChunkFilter, yield func(model.Chunk) bool) error

	// GetChunksMissingEmbedding streams chunks under parentID (or every
	// parent, if parentID is 0) that have no embedding yet.
	GetChunksMissingEmbedding(ctx context.Context, parentID int64, yield func(model.Chunk) bool) error

	// SaveEmbeddings persists updates atomically as a single call.
	SaveEmbeddings(ctx context.Context, updates []EmbeddingUpdate) error

	// GetParentMetadataBulk fetches hierarchy metadata for many chunk ids
	// in one round trip, so callers never pay an N+1 enrichment cost.
	GetParentMetadataBulk(ctx context.Context, chunkIDs []int64) (map[int64]ParentMetadata, error)

	// SetParentStatus transitions a LawSource or LegalCase's lifecycle
	// status.
	SetParentStatus(ctx context.Context, parentID int64, sourceType model.SourceType, status model.ParentStatus) error
}

// IngestionCollaborator is the interface the core exposes to its Ingestion
// collaborator: after chunks are created, ingestion calls
// GenerateForDocument to trigger embedding.
type IngestionCollaborator interface {
	GenerateForDocument(ctx context.Context, parentID int64, overwrite bool) (GenerationResult, error)
}

// GenerationResult is the outcome of an embedding generation run.
type GenerationResult struct {
	Total     int
	Processed int
	Failed    int
}

// SearchResult is the per-chunk shape returned by the search API.
type SearchResult struct {
	ID         int64             `json:"id"`
	Content    string            `json:"content"`
	Similarity float32           `json:"similarity"`
	SourceType model.SourceType  `json:"source_type"`
	Verified   bool              `json:"verified"`
	ChunkIndex int               `json:"chunk_index"`
	CreatedAt  time.Time         `json:"created_at"`

	LawMetadata     *model.LawSource  `json:"law_metadata,omitempty"`
	ArticleMetadata *model.LawArticle `json:"article_metadata,omitempty"`
	BranchMetadata  *model.LawBranch  `json:"branch_metadata,omitempty"`
	ChapterMetadata *model.LawChapter `json:"chapter_metadata,omitempty"`
	CaseMetadata    *model.LegalCase  `json:"case_metadata,omitempty"`
	SectionMetadata *model.CaseSection `json:"section_metadata,omitempty"`
}

// SearchData is the search API's `data` payload.
type SearchData struct {
	Query        string         `json:"query"`
	Results      []SearchResult `json:"results"`
	TotalResults int            `json:"total_results"`
	Threshold    float32        `json:"threshold"`
}
