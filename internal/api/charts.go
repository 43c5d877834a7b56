package api

import (
	"encoding/json"
	"net/http"

	apperrors "patent_explorer_go_backend/internal/errors"
	"patent_explorer_go_backend/internal/models"
	"patent_explorer_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	chart "github.com/wcharczuk/go-chart/v2"
)

func getChartHandler(artifactStore services.ArtifactStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := artifactStore.GetChartByID(c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, apperrors.New404Error("Chart not found"))
			return
		}
		var series []models.ChartSeries
		if err := json.Unmarshal(record.Series, &series); err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":        record.ID,
			"sessionId": record.SessionID,
			"title":     record.Title,
			"type":      record.Type,
			"xLabel":    record.XLabel,
			"yLabel":    record.YLabel,
			"series":    series,
			"createdAt": record.CreatedAt,
		})
	}
}

func chartImageHandler(artifactStore services.ArtifactStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := artifactStore.GetChartByID(c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, apperrors.New404Error("Chart not found"))
			return
		}
		var series []models.ChartSeries
		if err := json.Unmarshal(record.Series, &series); err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}

		c.Header("Content-Type", "image/png")
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
		if err := renderChartPNG(c.Writer, record, series); err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
		}
	}
}

func renderChartPNG(w http.ResponseWriter, record *models.Chart, series []models.ChartSeries) error {
	switch record.Type {
	case models.ChartBar:
		return renderBarPNG(w, record, series)
	case models.ChartPie:
		return renderPiePNG(w, record, series)
	default:
		return renderXYPNG(w, record, series)
	}
}

// Bar charts flatten every series into labeled values. Point labels win
// over x coordinates since bar categories are usually named.
func renderBarPNG(w http.ResponseWriter, record *models.Chart, series []models.ChartSeries) error {
	var bars []chart.Value
	for _, s := range series {
		for _, p := range s.Points {
			label := p.Label
			if label == "" {
				label = s.Name
			}
			bars = append(bars, chart.Value{Label: label, Value: p.Y})
		}
	}
	graph := chart.BarChart{
		Title:    record.Title,
		Height:   512,
		BarWidth: 48,
		Bars:     bars,
		YAxis:    chart.YAxis{Name: record.YLabel},
	}
	return graph.Render(chart.PNG, w)
}

func renderPiePNG(w http.ResponseWriter, record *models.Chart, series []models.ChartSeries) error {
	var slices []chart.Value
	for _, s := range series {
		for _, p := range s.Points {
			label := p.Label
			if label == "" {
				label = s.Name
			}
			slices = append(slices, chart.Value{Label: label, Value: p.Y})
		}
	}
	graph := chart.PieChart{
		Title:  record.Title,
		Width:  512,
		Height: 512,
		Values: slices,
	}
	return graph.Render(chart.PNG, w)
}

func renderXYPNG(w http.ResponseWriter, record *models.Chart, series []models.ChartSeries) error {
	scatter := record.Type == models.ChartScatter || record.Type == models.ChartQuadrant
	var plotted []chart.Series
	for _, s := range series {
		xs := make([]float64, len(s.Points))
		ys := make([]float64, len(s.Points))
		for i, p := range s.Points {
			xs[i] = p.X
			ys[i] = p.Y
		}
		cs := chart.ContinuousSeries{Name: s.Name, XValues: xs, YValues: ys}
		if scatter {
			cs.Style = chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    5,
			}
		}
		plotted = append(plotted, cs)
	}
	graph := chart.Chart{
		Title:  record.Title,
		Height: 512,
		XAxis:  chart.XAxis{Name: record.XLabel},
		YAxis:  chart.YAxis{Name: record.YLabel},
		Series: plotted,
	}
	if record.Type == models.ChartQuadrant {
		// Quadrant charts draw midlines through the plot area.
		graph.XAxis.GridLines = []chart.GridLine{{Value: midValue(series, true)}}
		graph.YAxis.GridLines = []chart.GridLine{{Value: midValue(series, false)}}
		graph.XAxis.GridMajorStyle = chart.Style{StrokeColor: chart.ColorAlternateGray, StrokeWidth: 1}
		graph.YAxis.GridMajorStyle = chart.Style{StrokeColor: chart.ColorAlternateGray, StrokeWidth: 1}
	}
	return graph.Render(chart.PNG, w)
}

func midValue(series []models.ChartSeries, xAxis bool) float64 {
	var min, max float64
	first := true
	for _, s := range series {
		for _, p := range s.Points {
			v := p.Y
			if xAxis {
				v = p.X
			}
			if first || v < min {
				min = v
			}
			if first || v > max {
				max = v
			}
			first = false
		}
	}
	return (min + max) / 2
}
