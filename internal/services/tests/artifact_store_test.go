package services_test

import (
	"encoding/json"
	"testing"

	"patent_explorer_go_backend/internal/models"
	"patent_explorer_go_backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestArtifactStoreCSVRoundTrip(t *testing.T) {
	db := newTestDB(t)
	store := services.NewArtifactStore(db)

	headers, err := json.Marshal([]string{"assignee", "filings"})
	require.NoError(t, err)
	rows, err := json.Marshal([][]string{{"Acme Corp", "42"}, {"Widget, Inc.", "7"}})
	require.NoError(t, err)

	saved := &models.CSVArtifact{
		ID:        "csv-roundtrip-1",
		SessionID: "sess-artifacts",
		Title:     "Filings by assignee",
		Headers:   headers,
		Rows:      rows,
		Content:   "assignee,filings\nAcme Corp,42\n\"Widget, Inc.\",7",
	}
	require.NoError(t, store.SaveCSV(saved))

	got, err := store.GetCSVByID("csv-roundtrip-1")
	require.NoError(t, err)
	assert.Equal(t, saved.Content, got.Content)
	assert.Equal(t, saved.Title, got.Title)
	assert.Equal(t, saved.SessionID, got.SessionID)

	var gotHeaders []string
	require.NoError(t, json.Unmarshal(got.Headers, &gotHeaders))
	assert.Equal(t, []string{"assignee", "filings"}, gotHeaders)

	var gotRows [][]string
	require.NoError(t, json.Unmarshal(got.Rows, &gotRows))
	assert.Equal(t, [][]string{{"Acme Corp", "42"}, {"Widget, Inc.", "7"}}, gotRows)
}

func TestArtifactStoreChartRoundTrip(t *testing.T) {
	db := newTestDB(t)
	store := services.NewArtifactStore(db)

	series, err := json.Marshal([]models.ChartSeries{{
		Name:   "filings",
		Points: []models.ChartPoint{{X: 2022, Y: 120}, {X: 2023, Y: 145}},
	}})
	require.NoError(t, err)

	saved := &models.Chart{
		ID:        "chart-roundtrip-1",
		SessionID: "sess-artifacts",
		Title:     "Filings per year",
		Type:      models.ChartLine,
		XLabel:    "year",
		YLabel:    "filings",
		Series:    series,
	}
	require.NoError(t, store.SaveChart(saved))

	got, err := store.GetChartByID("chart-roundtrip-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChartLine, got.Type)
	assert.Equal(t, saved.Title, got.Title)

	var gotSeries []models.ChartSeries
	require.NoError(t, json.Unmarshal(got.Series, &gotSeries))
	require.Len(t, gotSeries, 1)
	assert.Equal(t, "filings", gotSeries[0].Name)
	assert.Len(t, gotSeries[0].Points, 2)
}

func TestArtifactStoreMissingIDs(t *testing.T) {
	db := newTestDB(t)
	store := services.NewArtifactStore(db)

	_, err := store.GetCSVByID("nope")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = store.GetChartByID("nope")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
