package services

import (
	"patent_explorer_go_backend/internal/models"

	"gorm.io/gorm"
)

// ArtifactStore persists the charts and CSV tables created by tool calls.
// Artifacts are immutable after creation.
type ArtifactStore interface {
	SaveChart(chart *models.Chart) error
	GetChartByID(id string) (*models.Chart, error)
	SaveCSV(artifact *models.CSVArtifact) error
	GetCSVByID(id string) (*models.CSVArtifact, error)
}

type DefaultArtifactStore struct {
	db *gorm.DB
}

func NewArtifactStore(db *gorm.DB) ArtifactStore {
	return &DefaultArtifactStore{db: db}
}

func (s *DefaultArtifactStore) SaveChart(chart *models.Chart) error {
	return s.db.Create(chart).Error
}

func (s *DefaultArtifactStore) GetChartByID(id string) (*models.Chart, error) {
	var chart models.Chart
	if err := s.db.Where("id = ?", id).First(&chart).Error; err != nil {
		return nil, err
	}
	return &chart, nil
}

func (s *DefaultArtifactStore) SaveCSV(artifact *models.CSVArtifact) error {
	return s.db.Create(artifact).Error
}

func (s *DefaultArtifactStore) GetCSVByID(id string) (*models.CSVArtifact, error) {
	var artifact models.CSVArtifact
	if err := s.db.Where("id = ?", id).First(&artifact).Error; err != nil {
		return nil, err
	}
	return &artifact, nil
}
