package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/trialscout/trial-matcher/internal/domain"
	"github.com/trialscout/trial-matcher/internal/middleware"
	"github.com/trialscout/trial-matcher/internal/service"
)

// validationResponse is the 400 body for rejected input
type validationResponse struct {
	*domain.APIError
	Errors domain.ValidationErrors `json:"errors"`
}

// respondError maps service errors onto status codes and the APIError envelope
func (s *Server) respondError(c *gin.Context, err error) {
	var (
		verrs   domain.ValidationErrors
		verr    *domain.ValidationError
		extrErr *domain.ExtractionError
	)

	switch {
	case errors.As(err, &verrs):
		c.AbortWithStatusJSON(http.StatusBadRequest, validationResponse{
			APIError: middleware.NewAPIError(c, domain.ErrCodeValidation, "Validation failed", err.Error()),
			Errors:   verrs,
		})
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, validationResponse{
			APIError: middleware.NewAPIError(c, domain.ErrCodeValidation, "Validation failed", err.Error()),
			Errors:   domain.ValidationErrors{verr},
		})
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, service.ErrBatchTooLarge):
		middleware.Abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		middleware.Abort(c, http.StatusNotFound, domain.ErrCodeNotFound, "Not found", err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		middleware.Abort(c, http.StatusConflict, domain.ErrCodeConflict, "Already exists", err.Error())
	case errors.Is(err, service.ErrReadOnlyCatalog):
		middleware.Abort(c, http.StatusNotImplemented, domain.ErrCodeUnavailable, "Catalog is read-only", err.Error())
	case errors.Is(err, service.ErrExtractionDisabled):
		middleware.Abort(c, http.StatusServiceUnavailable, domain.ErrCodeUnavailable, "Biomarker extraction unavailable", err.Error())
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.Header("Retry-After", "60")
		middleware.Abort(c, http.StatusServiceUnavailable, domain.ErrCodeUnavailable, "Biomarker extraction temporarily unavailable", err.Error())
	case errors.Is(err, domain.ErrDocumentTooLarge):
		middleware.Abort(c, http.StatusRequestEntityTooLarge, domain.ErrCodeInvalidInput, "Document too large", err.Error())
	case errors.As(err, &extrErr):
		if extrErr.Stage == domain.STAGE_LLM {
			s.logger.WithFields(logrus.Fields{
				"correlation_id": c.GetString(middleware.CorrelationIDKey),
				"error":          err.Error(),
			}).Error("Upstream extraction failed")
			middleware.Abort(c, http.StatusBadGateway, domain.ErrCodeExtraction, "Biomarker extraction failed", err.Error())
			return
		}
		middleware.Abort(c, http.StatusBadRequest, domain.ErrCodeExtraction, "Document could not be processed", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		middleware.Abort(c, http.StatusGatewayTimeout, domain.ErrCodeUnavailable, "Request timeout", "")
	default:
		s.logger.WithFields(logrus.Fields{
			"correlation_id": c.GetString(middleware.CorrelationIDKey),
			"path":           c.FullPath(),
			"error":          err.Error(),
		}).Error("Request failed")
		// internal details stay in the log
		middleware.Abort(c, http.StatusInternalServerError, domain.ErrCodeInternal, "Internal server error", "")
	}
}
