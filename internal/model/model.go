// Package model holds the shared domain entities of the legal semantic
// search core: the law/case hierarchy and the chunk that ties normalized
// text to a dense embedding.
package model

import "time"

// SourceType distinguishes the two chunk origins the core understands.
type SourceType string

const (
	SourceLawArticle  SourceType = "law_article"
	SourceCaseSection SourceType = "case_section"
)

// ParentStatus is the lifecycle label carried by a LawSource or LegalCase.
type ParentStatus string

const (
	StatusRaw        ParentStatus = "raw"
	StatusProcessing ParentStatus = "processing"
	StatusProcessed  ParentStatus = "processed"
	StatusIndexed    ParentStatus = "indexed"
)

// LawType enumerates the kinds of legislative text a LawSource may be.
type LawType string

const (
	LawTypeLaw        LawType = "law"
	LawTypeRegulation LawType = "regulation"
	LawTypeCode       LawType = "code"
	LawTypeDirective  LawType = "directive"
	LawTypeDecree     LawType = "decree"
)

// LawSource is the identity of a legal text. Owned by ingestion; the core
// only ever reads it.
type LawSource struct {
	ID              int64
	Name            string
	Type            LawType
	Jurisdiction    string
	IssuingAuthority string
	IssueDate       time.Time
	LastUpdate      time.Time
	Status          ParentStatus
}

// LawBranch is a top-level container under a LawSource (e.g. "الباب").
type LawBranch struct {
	ID          int64
	LawSourceID int64
	Name        string
}

// LawChapter is a container under a LawBranch (e.g. "الفصل").
type LawChapter struct {
	ID          int64
	BranchID    int64
	LawSourceID int64
	Name        string
}

// LawArticle is the primary embedding unit on the law side.
type LawArticle struct {
	ID            int64
	LawSourceID   int64
	BranchID      int64 // 0 when the source has no branch level
	ChapterID     int64 // 0 when the source has no chapter level
	ArticleNumber string
	Title         string
	Content       string
	Keywords      []string
}

// SectionType enumerates the typed sections a judicial case is split into.
type SectionType string

const (
	SectionSummary    SectionType = "summary"
	SectionFacts      SectionType = "facts"
	SectionArguments  SectionType = "arguments"
	SectionRuling     SectionType = "ruling"
	SectionLegalBasis SectionType = "legal_basis"
)

// LegalCase identifies a judicial decision. Owned by ingestion.
type LegalCase struct {
	ID           int64
	Title        string
	Jurisdiction string
	Status       ParentStatus
}

// CaseSection is the primary embedding unit on the case side.
type CaseSection struct {
	ID          int64
	CaseID      int64
	SectionType SectionType
	Content     string
}

// EmbeddingMode replaces the ad hoc use_faiss/no_ml_mode boolean pair with
// a single enumerated operating mode, exposed by the embedding service's
// Stats().
type EmbeddingMode string

const (
	// ModelWithIndex: neural model encoding, candidates served via the
	// in-memory vector index.
	ModelWithIndex EmbeddingMode = "model_with_index"
	// ModelBruteForce: neural model encoding, but candidates are scored by
	// brute-force cosine (index disabled or filters present).
	ModelBruteForce EmbeddingMode = "model_brute_force"
	// HashFallback: deterministic hash-derived vectors, no neural model.
	HashFallback EmbeddingMode = "hash_fallback"
)

// Chunk is the central entity: one embedding-addressable text segment plus
// its vector and hierarchical back-references.
type Chunk struct {
	ID               int64
	Content          string
	EmbeddingVector  []float32
	SourceType       SourceType
	LawSourceID      int64 // law chunks only
	BranchID         int64 // law chunks only, 0 if none
	ChapterID        int64 // law chunks only, 0 if none
	ArticleID        int64 // law chunks only
	CaseID           int64 // case chunks only
	SectionID        int64 // case chunks only
	ChunkIndex       int
	TokensCount      int
	VerifiedByAdmin  bool
	CreatedAt        time.Time
	ParentStatus     ParentStatus
}

// HasEmbedding reports whether the chunk carries a usable, non-empty
// embedding vector; dimension is checked by the caller against the
// service-wide embedding dimension.
func (c *Chunk) HasEmbedding() bool {
	return len(c.EmbeddingVector) > 0
}

// Discoverable reports whether the chunk's parent lifecycle state makes it
// eligible for search.
func (c *Chunk) Discoverable() bool {
	return c.HasEmbedding() && (c.ParentStatus == StatusProcessed || c.ParentStatus == StatusIndexed)
}
