package api

import (
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/trialscout/trial-matcher/internal/domain"
	"github.com/trialscout/trial-matcher/internal/extraction"
	"github.com/trialscout/trial-matcher/internal/feedback"
	"github.com/trialscout/trial-matcher/internal/service"
)

// maxJSONBody bounds request bodies of the JSON endpoints
const maxJSONBody = 1 << 20

// BatchMatchRequest is the body of POST /api/v1/match/batch
type BatchMatchRequest struct {
	Profiles []domain.PatientProfile `json:"profiles"`
}

// BatchMatchResponse keeps results in request order
type BatchMatchResponse struct {
	Count   int                        `json:"count"`
	Results []*domain.MatchingResponse `json:"results"`
}

// ExclusionCheckRequest is the body of POST /api/v1/exclusion-check
type ExclusionCheckRequest struct {
	Patient   *domain.PatientProfile `json:"patient"`
	NCTNumber string                 `json:"nct_number"`
}

// TrialListResponse is one page of the catalog
type TrialListResponse struct {
	Trials []domain.Trial `json:"trials"`
	Count  int            `json:"count"`
	Skip   int            `json:"skip"`
	Limit  int            `json:"limit"`
}

func (s *Server) bindJSON(c *gin.Context, dst interface{}) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBody)
	dec := json.NewDecoder(c.Request.Body)
	if err := dec.Decode(dst); err != nil {
		s.respondError(c, fmt.Errorf("%w: malformed JSON body: %v", domain.ErrInvalidInput, err))
		return false
	}
	return true
}

func (s *Server) handleHealth(c *gin.Context) {
	health, err := s.services.Match.Health(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, health)
}

func (s *Server) handleMatch(c *gin.Context) {
	var profile domain.PatientProfile
	if !s.bindJSON(c, &profile) {
		return
	}

	resp, err := s.services.Match.Match(c.Request.Context(), &profile)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMatchBatch(c *gin.Context) {
	var req BatchMatchRequest
	if !s.bindJSON(c, &req) {
		return
	}

	results, err := s.services.Match.MatchBatch(c.Request.Context(), req.Profiles)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, BatchMatchResponse{Count: len(results), Results: results})
}

func (s *Server) handleExclusionCheck(c *gin.Context) {
	var req ExclusionCheckRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if req.NCTNumber == "" {
		s.respondError(c, domain.NewValidationError("nct_number", "is required", ""))
		return
	}

	check, err := s.services.Match.CheckExclusion(c.Request.Context(), req.Patient, req.NCTNumber)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

func (s *Server) handleListTrials(c *gin.Context) {
	var filter domain.TrialFilter

	if v := c.Query("cancer_type"); v != "" {
		ct := domain.CancerType(strings.ToLower(v))
		filter.CancerType = &ct
	}
	if v := c.Query("status"); v != "" {
		st := domain.TrialStatus(strings.ToLower(v))
		filter.Status = &st
	}

	var err error
	if filter.Skip, err = queryInt(c, "skip", 0); err != nil {
		s.respondError(c, err)
		return
	}
	if filter.Limit, err = queryInt(c, "limit", domain.MaxListLimit); err != nil {
		s.respondError(c, err)
		return
	}

	trials, err := s.services.Match.ListTrials(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	filter = filter.Normalize()
	c.JSON(http.StatusOK, TrialListResponse{Trials: trials, Count: len(trials), Skip: filter.Skip, Limit: filter.Limit})
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(name, "must be a non-negative integer", raw)
	}
	return n, nil
}

func (s *Server) handleGetTrial(c *gin.Context) {
	trial, err := s.services.Match.GetTrial(c.Request.Context(), strings.ToUpper(c.Param("nct")))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, trial)
}

func (s *Server) handleCreateTrial(c *gin.Context) {
	var trial domain.Trial
	if !s.bindJSON(c, &trial) {
		return
	}

	if err := s.services.Match.CreateTrial(c.Request.Context(), &trial); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, trial)
}

func (s *Server) handleUpdateTrial(c *gin.Context) {
	var patch domain.TrialPatch
	if !s.bindJSON(c, &patch) {
		return
	}

	trial, err := s.services.Match.UpdateTrial(c.Request.Context(), strings.ToUpper(c.Param("nct")), &patch)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, trial)
}

func (s *Server) handleDeleteTrial(c *gin.Context) {
	if err := s.services.Match.DeleteTrial(c.Request.Context(), strings.ToUpper(c.Param("nct"))); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// uploadedDocument opens the multipart "file" field. The caller closes it.
func (s *Server) uploadedDocument(c *gin.Context) (extraction.Document, multipart.File, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return extraction.Document{}, nil, fmt.Errorf("%w: multipart field \"file\" is required", domain.ErrInvalidInput)
	}
	if limit := s.configManager.GetConfig().Extraction.MaxDocumentBytes; limit > 0 && header.Size > limit {
		return extraction.Document{}, nil, domain.NewExtractionError(domain.STAGE_DOCUMENT,
			fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrDocumentTooLarge, header.Size, limit))
	}

	f, err := header.Open()
	if err != nil {
		return extraction.Document{}, nil, fmt.Errorf("failed to open upload: %w", err)
	}
	return extraction.Document{
		Filename:    header.Filename,
		ContentType: documentContentType(header),
		Body:        f,
	}, f, nil
}

// documentContentType trusts the part header unless it is missing or
// generic, then falls back to the file extension
func documentContentType(header *multipart.FileHeader) string {
	ct := header.Header.Get("Content-Type")
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(header.Filename))); byExt != "" {
		return byExt
	}
	return ct
}

func (s *Server) handleExtractBiomarkers(c *gin.Context) {
	if !s.services.Extraction.BiomarkerExtractionEnabled() {
		s.respondError(c, service.ErrExtractionDisabled)
		return
	}

	overrides, err := formOverrides(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	doc, f, err := s.uploadedDocument(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer f.Close()

	result, err := s.services.Extraction.ExtractDocument(c.Request.Context(), doc, c.PostForm("cancer_type"), overrides)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// formOverrides reads optional demographic fields that fill gaps the
// document leaves
func formOverrides(c *gin.Context) (extraction.ProfileOverrides, error) {
	var o extraction.ProfileOverrides
	if v := c.PostForm("age"); v != "" {
		age, err := strconv.Atoi(v)
		if err != nil {
			return o, domain.NewValidationError("age", "must be an integer", v)
		}
		o.Age = &age
	}
	o.Sex = domain.Sex(strings.ToLower(c.PostForm("sex")))
	o.CancerType = domain.CancerType(strings.ToLower(c.PostForm("cancer_type")))
	if !o.CancerType.IsValid() {
		o.CancerType = ""
	}
	if v := c.PostForm("stage"); v != "" {
		stage, ok := extraction.NormalizeStage(v)
		if !ok {
			return o, domain.NewValidationError("stage", "must be one of I, II, III, IV", v)
		}
		o.Stage = stage
	}
	return o, nil
}

func (s *Server) handleExtractText(c *gin.Context) {
	doc, f, err := s.uploadedDocument(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer f.Close()

	result, err := s.services.Extraction.ExtractText(c.Request.Context(), doc)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRecordFeedback(c *gin.Context) {
	var fb feedback.Feedback
	if !s.bindJSON(c, &fb) {
		return
	}
	fb.NCTNumber = strings.ToUpper(fb.NCTNumber)

	if err := s.services.Feedback.Record(c.Request.Context(), &fb); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fb)
}

func (s *Server) handleListFeedback(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		s.respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.respondError(c, err)
		return
	}

	page, err := s.services.Feedback.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
