// Package postgres is a reference StorageCollaborator implementation over
// PostgreSQL, using pgxpool and raw SQL. The embedding_vector column is
// TEXT holding a JSON float array, encoded/decoded with sonic — the JSON
// encoding never leaks past this package's boundary
// (contracts.StorageCollaborator deals only in []float32).
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/legatoo/legal-semantic-search/internal/contracts"
	"github.com/legatoo/legal-semantic-search/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS law_sources (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	jurisdiction TEXT NOT NULL,
	issuing_authority TEXT,
	issue_date TIMESTAMP,
	last_update TIMESTAMP,
	status TEXT NOT NULL DEFAULT 'raw'
);

CREATE TABLE IF NOT EXISTS law_branches (
	id BIGSERIAL PRIMARY KEY,
	law_source_id BIGINT NOT NULL REFERENCES law_sources(id),
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS law_chapters (
	id BIGSERIAL PRIMARY KEY,
	branch_id BIGINT NOT NULL REFERENCES law_branches(id),
	law_source_id BIGINT NOT NULL REFERENCES law_sources(id),
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS law_articles (
	id BIGSERIAL PRIMARY KEY,
	law_source_id BIGINT NOT NULL REFERENCES law_sources(id),
	branch_id BIGINT,
	chapter_id BIGINT,
	article_number TEXT NOT NULL,
	title TEXT,
	content TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS legal_cases (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	jurisdiction TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'raw'
);

CREATE TABLE IF NOT EXISTS case_sections (
	id BIGSERIAL PRIMARY KEY,
	case_id BIGINT NOT NULL REFERENCES legal_cases(id),
	section_type TEXT NOT NULL,
	content TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id BIGSERIAL PRIMARY KEY,
	content TEXT NOT NULL,
	embedding_vector TEXT,
	source_type TEXT NOT NULL,
	law_source_id BIGINT,
	branch_id BIGINT,
	chapter_id BIGINT,
	article_id BIGINT,
	case_id BIGINT,
	section_id BIGINT,
	chunk_index INTEGER NOT NULL DEFAULT 0,
	tokens_count INTEGER NOT NULL DEFAULT 0,
	verified_by_admin BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL DEFAULT now(),
	parent_status TEXT NOT NULL DEFAULT 'raw'
);

CREATE INDEX IF NOT EXISTS idx_chunks_source_type ON chunks(source_type);
CREATE INDEX IF NOT EXISTS idx_chunks_law_source_id ON chunks(law_source_id);
CREATE INDEX IF NOT EXISTS idx_chunks_case_id ON chunks(case_id);
CREATE INDEX IF NOT EXISTS idx_chunks_created_at ON chunks(created_at DESC);
`

// Store implements contracts.StorageCollaborator over PostgreSQL.
type Store struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

var _ contracts.StorageCollaborator = (*Store)(nil)

// Open connects to PostgreSQL and bootstraps the schema.
func Open(ctx context.Context, url string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{db: db, log: log}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) GetChunks(ctx context.Context, filter contracts.ChunkFilter, yield func(model.Chunk) bool) error {
	query, args := buildChunkQuery(filter)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return fmt.Errorf("scan chunk: %w", err)
		}
		if !yield(c) {
			break
		}
	}
	return rows.Err()
}

// buildChunkQuery assembles the dynamic SELECT + positional args for
// filter. It is a pure function so the filter-building logic can be tested
// without a live database.
func buildChunkQuery(filter contracts.ChunkFilter) (string, []any) {
	query := `SELECT id, content, embedding_vector, source_type, law_source_id, branch_id,
		chapter_id, article_id, case_id, section_id, chunk_index, tokens_count,
		verified_by_admin, created_at, parent_status FROM chunks WHERE 1=1`
	args := []any{}
	n := 0

	addArg := func(clause string, v any) {
		n++
		query += fmt.Sprintf(" AND %s $%d", clause, n)
		args = append(args, v)
	}

	if filter.ParentID != 0 {
		switch filter.SourceType {
		case model.SourceCaseSection:
			addArg("case_id =", filter.ParentID)
		default:
			addArg("law_source_id =", filter.ParentID)
		}
	}
	if len(filter.ChunkIDs) > 0 {
		n++
		query += fmt.Sprintf(" AND id = ANY($%d)", n)
		args = append(args, filter.ChunkIDs)
	}
	if filter.SourceType != "" {
		addArg("source_type =", string(filter.SourceType))
	}
	if filter.Jurisdiction != "" {
		n++
		query += fmt.Sprintf(" AND law_source_id IN (SELECT id FROM law_sources WHERE lower(jurisdiction) = lower($%d))", n)
		args = append(args, filter.Jurisdiction)
	}
	if filter.VerifiedOnly {
		query += " AND verified_by_admin = true"
	}
	if !filter.MinDate.IsZero() {
		addArg("created_at >=", filter.MinDate)
	}
	if !filter.MaxDate.IsZero() {
		addArg("created_at <=", filter.MaxDate)
	}
	if filter.OnlyMissingEmbedding {
		query += " AND (embedding_vector IS NULL OR embedding_vector = '')"
	}

	return query, args
}

func (s *Store) GetChunksMissingEmbedding(ctx context.Context, parentID int64, yield func(model.Chunk) bool) error {
	filter := contracts.ChunkFilter{OnlyMissingEmbedding: true}
	if parentID != 0 {
		filter.ParentID = parentID
	}
	return s.GetChunks(ctx, filter, yield)
}

func (s *Store) SaveEmbeddings(ctx context.Context, updates []contracts.EmbeddingUpdate) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range updates {
		encoded, err := sonic.Marshal(u.Vector)
		if err != nil {
			return fmt.Errorf("encode embedding: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE chunks SET embedding_vector = $1 WHERE id = $2`, string(encoded), u.ChunkID); err != nil {
			return fmt.Errorf("update chunk %d: %w", u.ChunkID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) GetParentMetadataBulk(ctx context.Context, chunkIDs []int64) (map[int64]contracts.ParentMetadata, error) {
	out := make(map[int64]contracts.ParentMetadata, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.Query(ctx, `SELECT id, source_type, law_source_id, branch_id, chapter_id, article_id, case_id, section_id
		FROM chunks WHERE id = ANY($1)`, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("query chunk parents: %w", err)
	}
	defer rows.Close()

	lawSourceIDs := map[int64]bool{}
	branchIDs := map[int64]bool{}
	chapterIDs := map[int64]bool{}
	articleIDs := map[int64]bool{}
	caseIDs := map[int64]bool{}
	sectionIDs := map[int64]bool{}

	type link struct {
		chunkID                                                    int64
		sourceType                                                 model.SourceType
		lawSourceID, branchID, chapterID, articleID, caseID, sectionID int64
	}
	var links []link

	for rows.Next() {
		var l link
		if err := rows.Scan(&l.chunkID, &l.sourceType, &l.lawSourceID, &l.branchID, &l.chapterID, &l.articleID, &l.caseID, &l.sectionID); err != nil {
			return nil, fmt.Errorf("scan chunk parent link: %w", err)
		}
		links = append(links, l)
		if l.lawSourceID != 0 {
			lawSourceIDs[l.lawSourceID] = true
		}
		if l.branchID != 0 {
			branchIDs[l.branchID] = true
		}
		if l.chapterID != 0 {
			chapterIDs[l.chapterID] = true
		}
		if l.articleID != 0 {
			articleIDs[l.articleID] = true
		}
		if l.caseID != 0 {
			caseIDs[l.caseID] = true
		}
		if l.sectionID != 0 {
			sectionIDs[l.sectionID] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lawSources, err := s.fetchLawSources(ctx, keys(lawSourceIDs))
	if err != nil {
		return nil, err
	}
	branches, err := s.fetchBranches(ctx, keys(branchIDs))
	if err != nil {
		return nil, err
	}
	chapters, err := s.fetchChapters(ctx, keys(chapterIDs))
	if err != nil {
		return nil, err
	}
	articles, err := s.fetchArticles(ctx, keys(articleIDs))
	if err != nil {
		return nil, err
	}
	cases, err := s.fetchCases(ctx, keys(caseIDs))
	if err != nil {
		return nil, err
	}
	sections, err := s.fetchSections(ctx, keys(sectionIDs))
	if err != nil {
		return nil, err
	}

	for _, l := range links {
		meta := contracts.ParentMetadata{}
		if v, ok := lawSources[l.lawSourceID]; ok {
			meta.LawSource = &v
		}
		if v, ok := branches[l.branchID]; ok {
			meta.Branch = &v
		}
		if v, ok := chapters[l.chapterID]; ok {
			meta.Chapter = &v
		}
		if v, ok := articles[l.articleID]; ok {
			meta.Article = &v
		}
		if v, ok := cases[l.caseID]; ok {
			meta.Case = &v
		}
		if v, ok := sections[l.sectionID]; ok {
			meta.Section = &v
		}
		out[l.chunkID] = meta
	}
	return out, nil
}

func (s *Store) SetParentStatus(ctx context.Context, parentID int64, sourceType model.SourceType, status model.ParentStatus) error {
	table := "law_sources"
	if sourceType == model.SourceCaseSection {
		table = "legal_cases"
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(`UPDATE %s SET status = $1 WHERE id = $2`, table), string(status), parentID)
	return err
}

func keys(m map[int64]bool) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(rows rowScanner) (model.Chunk, error) {
	var c model.Chunk
	var embedJSON *string
	var createdAt time.Time
	err := rows.Scan(&c.ID, &c.Content, &embedJSON, &c.SourceType, &c.LawSourceID, &c.BranchID,
		&c.ChapterID, &c.ArticleID, &c.CaseID, &c.SectionID, &c.ChunkIndex, &c.TokensCount,
		&c.VerifiedByAdmin, &createdAt, &c.ParentStatus)
	if err != nil {
		return model.Chunk{}, err
	}
	c.CreatedAt = createdAt
	if embedJSON != nil && *embedJSON != "" {
		var vec []float32
		if err := sonic.Unmarshal([]byte(*embedJSON), &vec); err == nil {
			c.EmbeddingVector = vec
		}
	}
	return c, nil
}
