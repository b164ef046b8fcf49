package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// ExtractorConfig tunes the biomarker extractor
type ExtractorConfig struct {
	// CacheSize is the number of extraction results kept in memory
	CacheSize int
	// Timeout bounds a single LLM call
	Timeout time.Duration
}

// DefaultExtractorConfig returns the settings used when none are configured
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		CacheSize: 128,
		Timeout:   60 * time.Second,
	}
}

// BiomarkerExtractor asks an LLM for a structured clinical summary of a document.
// Calls go through a circuit breaker and answers are cached by document content.
type BiomarkerExtractor struct {
	client    Client
	breaker   *gobreaker.CircuitBreaker
	cache     *lru.Cache[string, []byte]
	validator *SchemaValidator
	timeout   time.Duration
	logger    *logrus.Logger
}

// NewBiomarkerExtractor wraps client with caching, a circuit breaker and output validation
func NewBiomarkerExtractor(client Client, cfg ExtractorConfig, logger *logrus.Logger) (*BiomarkerExtractor, error) {
	if client == nil {
		return nil, fmt.Errorf("LLM client is required")
	}
	defaults := DefaultExtractorConfig()
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaults.CacheSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	cache, err := lru.New[string, []byte](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction cache: %w", err)
	}

	validator, err := NewSchemaValidator()
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "Gemini",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker changed state")
		},
	})

	return &BiomarkerExtractor{
		client:    client,
		breaker:   breaker,
		cache:     cache,
		validator: validator,
		timeout:   cfg.Timeout,
		logger:    logger,
	}, nil
}

// Extract returns the structured clinical summary of text. hint is an optional
// cancer type ("breast" or "lung") selecting a specialised prompt.
func (e *BiomarkerExtractor) Extract(ctx context.Context, text, hint string) (*domain.ExtractedBiomarkerData, error) {
	if err := RequireText(text); err != nil {
		return nil, err
	}

	key := cacheKey(text, hint)
	if cached, ok := e.cache.Get(key); ok {
		e.logger.WithField("cache_key", key[:12]).Debug("Extraction cache hit")
		return decodeExtraction(cached)
	}

	start := time.Now()
	result, err := e.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return e.client.GenerateJSON(callCtx, BuildPrompt(text, hint))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			e.logger.WithError(err).Warn("LLM extraction rejected by circuit breaker")
		} else {
			e.logger.WithError(err).Error("LLM extraction failed")
		}
		return nil, domain.NewExtractionError(domain.STAGE_LLM, err)
	}

	normalized, err := e.normalize(result.(string))
	if err != nil {
		return nil, domain.NewExtractionError(domain.STAGE_LLM, err)
	}

	data, err := decodeExtraction(normalized)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, normalized)

	e.logger.WithFields(logrus.Fields{
		"cancer_type": data.CancerType,
		"biomarkers":  len(data.Biomarkers),
		"treatments":  len(data.PriorTreatments),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Extracted biomarkers")

	return data, nil
}

// BreakerState reports the circuit breaker state, e.g. for health output
func (e *BiomarkerExtractor) BreakerState() string {
	return e.breaker.State().String()
}

// normalize applies the missing-field defaults and checks the result against the schema
func (e *BiomarkerExtractor) normalize(answer string) ([]byte, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(cleanJSONBlock(answer)), &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON response from model: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("model returned an empty response")
	}

	if v, ok := doc["cancer_type"]; !ok || v == nil {
		doc["cancer_type"] = "unknown"
	}
	if v, ok := doc["biomarkers"]; !ok || v == nil {
		doc["biomarkers"] = map[string]interface{}{}
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if err := e.validator.Validate(normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

func decodeExtraction(data []byte) (*domain.ExtractedBiomarkerData, error) {
	var out domain.ExtractedBiomarkerData
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, domain.NewExtractionError(domain.STAGE_LLM, fmt.Errorf("failed to decode extraction: %w", err))
	}
	if out.Biomarkers == nil {
		out.Biomarkers = map[string]domain.ExtractedMarker{}
	}
	return &out, nil
}

func cacheKey(text, hint string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(normalizeHint(hint)))
	return hex.EncodeToString(h.Sum(nil))
}
