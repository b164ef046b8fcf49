package domain

import (
	"context"
)

// TrialCatalogSource supplies trial records to the matcher. A nil cancerType
// returns every trial. Implementations return copies the caller may keep.
type TrialCatalogSource interface {
	GetTrials(ctx context.Context, cancerType *CancerType) ([]Trial, error)
	GetTrial(ctx context.Context, nctNumber string) (*Trial, error)
	ListTrials(ctx context.Context, filter TrialFilter) ([]Trial, error)
	CountTrials(ctx context.Context) (int, error)
}

// TrialStore is a catalog source that also accepts curation writes
type TrialStore interface {
	TrialCatalogSource
	CreateTrial(ctx context.Context, trial *Trial) error
	UpdateTrial(ctx context.Context, nctNumber string, patch *TrialPatch) (*Trial, error)
	DeleteTrial(ctx context.Context, nctNumber string) error
}

// BiomarkerExtractor turns report text into structured clinical data.
// cancerTypeHint may be empty for auto-detection.
type BiomarkerExtractor interface {
	Extract(ctx context.Context, text, cancerTypeHint string) (*ExtractedBiomarkerData, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetMatchingConfig() *MatchingConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
