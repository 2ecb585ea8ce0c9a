package postgres

import (
	"context"
	"fmt"

	"github.com/legatoo/legal-semantic-search/internal/model"
)

// The fetchX helpers below implement the bulk-by-id lookups
// GetParentMetadataBulk needs; each issues exactly one query regardless of
// how many chunks reference that parent kind, satisfying the no-N+1
// requirement.

func (s *Store) fetchLawSources(ctx context.Context, ids []int64) (map[int64]model.LawSource, error) {
	out := map[int64]model.LawSource{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `SELECT id, name, type, jurisdiction, issuing_authority, issue_date, last_update, status
		FROM law_sources WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch law sources: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v model.LawSource
		if err := rows.Scan(&v.ID, &v.Name, &v.Type, &v.Jurisdiction, &v.IssuingAuthority, &v.IssueDate, &v.LastUpdate, &v.Status); err != nil {
			return nil, err
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}

func (s *Store) fetchBranches(ctx context.Context, ids []int64) (map[int64]model.LawBranch, error) {
	out := map[int64]model.LawBranch{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `SELECT id, law_source_id, name FROM law_branches WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch branches: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v model.LawBranch
		if err := rows.Scan(&v.ID, &v.LawSourceID, &v.Name); err != nil {
			return nil, err
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}

func (s *Store) fetchChapters(ctx context.Context, ids []int64) (map[int64]model.LawChapter, error) {
	out := map[int64]model.LawChapter{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `SELECT id, branch_id, law_source_id, name FROM law_chapters WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch chapters: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v model.LawChapter
		if err := rows.Scan(&v.ID, &v.BranchID, &v.LawSourceID, &v.Name); err != nil {
			return nil, err
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}

func (s *Store) fetchArticles(ctx context.Context, ids []int64) (map[int64]model.LawArticle, error) {
	out := map[int64]model.LawArticle{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `SELECT id, law_source_id, branch_id, chapter_id, article_number, title, content
		FROM law_articles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch articles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v model.LawArticle
		if err := rows.Scan(&v.ID, &v.LawSourceID, &v.BranchID, &v.ChapterID, &v.ArticleNumber, &v.Title, &v.Content); err != nil {
			return nil, err
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}

func (s *Store) fetchCases(ctx context.Context, ids []int64) (map[int64]model.LegalCase, error) {
	out := map[int64]model.LegalCase{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `SELECT id, title, jurisdiction, status FROM legal_cases WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch cases: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v model.LegalCase
		if err := rows.Scan(&v.ID, &v.Title, &v.Jurisdiction, &v.Status); err != nil {
			return nil, err
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}

func (s *Store) fetchSections(ctx context.Context, ids []int64) (map[int64]model.CaseSection, error) {
	out := map[int64]model.CaseSection{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `SELECT id, case_id, section_type, content FROM case_sections WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch sections: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v model.CaseSection
		if err := rows.Scan(&v.ID, &v.CaseID, &v.SectionType, &v.Content); err != nil {
			return nil, err
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}
