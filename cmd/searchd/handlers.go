package main

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/legatoo/legal-semantic-search/internal/apierr"
	"github.com/legatoo/legal-semantic-search/internal/model"
	"github.com/legatoo/legal-semantic-search/internal/search"
)

// healthCheck reports a top-level status plus a components breakdown, so a
// load balancer and a human operator can both tell what's degraded.
func (s *server) healthCheck(c *gin.Context) {
	components := gin.H{
		"database":       s.store != nil,
		"redis":          s.redisClient != nil,
		"amqp":           s.publisher != nil,
		"embedding_mode": s.embedder.Mode(s.search.UsingIndex()),
	}
	c.JSON(200, gin.H{
		"status":     "healthy",
		"timestamp":  time.Now(),
		"service":    "legal-semantic-search",
		"components": components,
	})
}

type searchRequestBody struct {
	Query        string   `json:"query" binding:"required"`
	TopK         int      `json:"top_k"`
	Threshold    *float32 `json:"threshold"`
	LawSourceID  int64    `json:"law_source_id"`
	CaseID       int64    `json:"case_id"`
	Jurisdiction string   `json:"jurisdiction"`
	VerifiedOnly bool     `json:"verified_only"`
	Alpha        *float32 `json:"alpha"`
}

// threshold distinguishes an omitted "threshold" field from an explicit 0.0:
// the former falls back to the search service's default, the latter means
// "return up to top_k results regardless of similarity".
func (b searchRequestBody) threshold() float32 {
	if b.Threshold == nil {
		return search.UnsetThreshold
	}
	return *b.Threshold
}

func (s *server) handleSearchLaws(c *gin.Context) {
	s.handleFindSimilar(c, model.SourceLawArticle)
}

func (s *server) handleSearchCases(c *gin.Context) {
	s.handleFindSimilar(c, model.SourceCaseSection)
}

func (s *server) handleFindSimilar(c *gin.Context, sourceType model.SourceType) {
	var body searchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondErr(c, apierr.New(apierr.InvalidInput, err.Error()))
		return
	}

	req := search.Request{
		Query:     body.Query,
		TopK:      body.TopK,
		Threshold: body.threshold(),
		Filters: search.Filters{
			LawSourceID:  body.LawSourceID,
			CaseID:       body.CaseID,
			Jurisdiction: body.Jurisdiction,
			VerifiedOnly: body.VerifiedOnly,
		},
		SourceType: sourceType,
	}

	data, err := s.search.FindSimilar(c.Request.Context(), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(200, apierr.Success("search complete", data))
}

func (s *server) handleSearchHybrid(c *gin.Context) {
	var body searchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondErr(c, apierr.New(apierr.InvalidInput, err.Error()))
		return
	}

	sourceType := model.SourceLawArticle
	if body.CaseID != 0 {
		sourceType = model.SourceCaseSection
	}

	req := search.Request{
		Query:      body.Query,
		TopK:       body.TopK,
		Threshold:  body.threshold(),
		SourceType: sourceType,
		Filters: search.Filters{
			LawSourceID:  body.LawSourceID,
			CaseID:       body.CaseID,
			Jurisdiction: body.Jurisdiction,
			VerifiedOnly: body.VerifiedOnly,
		},
	}

	// An omitted "alpha" is passed as an out-of-range value, which the search
	// service replaces with its configured default.
	alpha := float32(-1)
	if body.Alpha != nil {
		alpha = *body.Alpha
	}

	data, err := s.search.FindSimilarHybrid(c.Request.Context(), req, alpha)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(200, apierr.Success("hybrid search complete", data))
}

type generateRequestBody struct {
	Overwrite bool `json:"overwrite"`
}

func (s *server) handleGenerateForDocument(c *gin.Context) {
	parentID, err := strconv.ParseInt(c.Param("parent_id"), 10, 64)
	if err != nil {
		respondErr(c, apierr.New(apierr.InvalidInput, "parent_id must be an integer"))
		return
	}

	var body generateRequestBody
	_ = c.ShouldBindJSON(&body)

	result, err := s.maintenance.GenerateForDocument(c.Request.Context(), parentID, body.Overwrite)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(200, apierr.Success("generation complete", result))
}

type batchGenerateRequestBody struct {
	ChunkIDs  []int64 `json:"chunk_ids"`
	Overwrite bool    `json:"overwrite"`
}

func (s *server) handleBatchGenerateChunks(c *gin.Context) {
	var body batchGenerateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondErr(c, apierr.New(apierr.InvalidInput, err.Error()))
		return
	}

	result, err := s.maintenance.GenerateForChunks(c.Request.Context(), body.ChunkIDs, body.Overwrite)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(200, apierr.Success("batch generation complete", result))
}

func (s *server) handleDocumentStatus(c *gin.Context) {
	parentID, err := strconv.ParseInt(c.Param("parent_id"), 10, 64)
	if err != nil {
		respondErr(c, apierr.New(apierr.InvalidInput, "parent_id must be an integer"))
		return
	}

	status, err := s.maintenance.StatusForDocument(c.Request.Context(), parentID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(200, apierr.Success("status", status))
}

func (s *server) handleGlobalStatus(c *gin.Context) {
	status, err := s.maintenance.Status(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(200, apierr.Success("status", status))
}

func respondErr(c *gin.Context, err error) {
	resp, code := apierr.Render(err)
	c.JSON(code, resp)
}

