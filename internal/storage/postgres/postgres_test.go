package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/legatoo/legal-semantic-search/internal/contracts"
	"github.com/legatoo/legal-semantic-search/internal/model"
)

func TestBuildChunkQuery_NoFilterHasNoExtraClauses(t *testing.T) {
	query, args := buildChunkQuery(contracts.ChunkFilter{})
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
	if strings.Contains(query, "AND") {
		t.Fatalf("expected no AND clauses for an empty filter, got: %s", query)
	}
}

func TestBuildChunkQuery_ParentIDRoutesOnSourceType(t *testing.T) {
	query, args := buildChunkQuery(contracts.ChunkFilter{ParentID: 42, SourceType: model.SourceCaseSection})
	if !strings.Contains(query, "case_id = $1") {
		t.Fatalf("expected case_id clause for case sections, got: %s", query)
	}
	if args[0] != int64(42) {
		t.Fatalf("expected first arg to be the parent id, got %v", args[0])
	}

	query, _ = buildChunkQuery(contracts.ChunkFilter{ParentID: 42, SourceType: model.SourceLawArticle})
	if !strings.Contains(query, "law_source_id = $1") {
		t.Fatalf("expected law_source_id clause for law articles, got: %s", query)
	}
}

func TestBuildChunkQuery_JurisdictionUsesSubquery(t *testing.T) {
	query, args := buildChunkQuery(contracts.ChunkFilter{Jurisdiction: "riyadh"})
	if !strings.Contains(query, "law_source_id IN (SELECT id FROM law_sources WHERE lower(jurisdiction) = lower($1))") {
		t.Fatalf("expected a well-formed jurisdiction subquery, got: %s", query)
	}
	if len(args) != 1 || args[0] != "riyadh" {
		t.Fatalf("expected jurisdiction arg, got %v", args)
	}
}

func TestBuildChunkQuery_PlaceholdersIncrementAcrossClauses(t *testing.T) {
	filter := contracts.ChunkFilter{
		ParentID:     7,
		SourceType:   model.SourceLawArticle,
		Jurisdiction: "makkah",
		VerifiedOnly: true,
		MinDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxDate:      time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	query, args := buildChunkQuery(filter)

	for i := 1; i <= 5; i++ {
		placeholder := "$" + string(rune('0'+i))
		if !strings.Contains(query, placeholder) {
			t.Fatalf("expected placeholder %s in query: %s", placeholder, query)
		}
	}
	if len(args) != 5 {
		t.Fatalf("expected 5 positional args (law_source_id, source_type, jurisdiction, min_date, max_date), got %d: %v", len(args), args)
	}
	if !strings.Contains(query, "verified_by_admin = true") {
		t.Fatalf("expected verified_only clause, got: %s", query)
	}
}

func TestBuildChunkQuery_ChunkIDsUsesAnyClause(t *testing.T) {
	query, args := buildChunkQuery(contracts.ChunkFilter{ChunkIDs: []int64{1, 2, 3}})
	if !strings.Contains(query, "id = ANY($1)") {
		t.Fatalf("expected an ANY($1) clause for chunk ids, got: %s", query)
	}
	if len(args) != 1 {
		t.Fatalf("expected one positional arg carrying the id slice, got %v", args)
	}
}

func TestBuildChunkQuery_OnlyMissingEmbeddingAddsNoArg(t *testing.T) {
	query, args := buildChunkQuery(contracts.ChunkFilter{OnlyMissingEmbedding: true})
	if !strings.Contains(query, "embedding_vector IS NULL OR embedding_vector = ''") {
		t.Fatalf("expected the missing-embedding clause, got: %s", query)
	}
	if len(args) != 0 {
		t.Fatalf("expected no positional args for this clause, got %v", args)
	}
}
