package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"patent_explorer_go_backend/internal/models"
	"patent_explorer_go_backend/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func barChartArgs() map[string]interface{} {
	return map[string]interface{}{
		"title": "Filings by assignee",
		"type":  "bar",
		"series": []interface{}{
			map[string]interface{}{
				"name": "Filings",
				"points": []interface{}{
					map[string]interface{}{"x": 1.0, "y": 412.0},
				},
			},
		},
	}
}

func TestCreateChartTool(t *testing.T) {
	ctx := context.Background()

	t.Run("persists a valid chart and returns a markdown reference", func(t *testing.T) {
		saver := new(MockArtifactSaver)
		tool := tools.NewCreateChartTool(saver)

		var saved *models.Chart
		saver.On("SaveChart", mock.AnythingOfType("*models.Chart")).
			Run(func(args mock.Arguments) { saved = args.Get(0).(*models.Chart) }).
			Return(nil).Once()

		payload, err := tool.Execute(ctx, tools.Call{SessionID: "sess-1", Args: barChartArgs()})

		assert.NoError(t, err)
		assert.Equal(t, "chart_created", payload["type"])
		assert.Contains(t, payload["display"], "/api/charts/")
		assert.Equal(t, models.ChartBar, saved.Type)

		var series []models.ChartSeries
		assert.NoError(t, json.Unmarshal(saved.Series, &series))
		assert.Len(t, series, 1)
		assert.Equal(t, 412.0, series[0].Points[0].Y)
		saver.AssertExpectations(t)
	})

	t.Run("rejects an unknown chart type", func(t *testing.T) {
		saver := new(MockArtifactSaver)
		tool := tools.NewCreateChartTool(saver)

		args := barChartArgs()
		args["type"] = "donut"
		_, err := tool.Execute(ctx, tools.Call{Args: args})

		var vErr *tools.ValidationError
		assert.ErrorAs(t, err, &vErr)
		saver.AssertNotCalled(t, "SaveChart", mock.Anything)
	})

	t.Run("rejects point labels outside scatter and quadrant charts", func(t *testing.T) {
		saver := new(MockArtifactSaver)
		tool := tools.NewCreateChartTool(saver)

		args := barChartArgs()
		args["series"] = []interface{}{
			map[string]interface{}{
				"name": "Filings",
				"points": []interface{}{
					map[string]interface{}{"x": 1.0, "y": 2.0, "label": "IBM"},
				},
			},
		}
		_, err := tool.Execute(ctx, tools.Call{Args: args})

		var vErr *tools.ValidationError
		assert.ErrorAs(t, err, &vErr)
		saver.AssertNotCalled(t, "SaveChart", mock.Anything)
	})

	t.Run("allows sized labeled points on a quadrant chart", func(t *testing.T) {
		saver := new(MockArtifactSaver)
		tool := tools.NewCreateChartTool(saver)
		saver.On("SaveChart", mock.Anything).Return(nil).Once()

		args := barChartArgs()
		args["type"] = "quadrant"
		args["series"] = []interface{}{
			map[string]interface{}{
				"name": "Assignees",
				"points": []interface{}{
					map[string]interface{}{"x": 0.7, "y": 0.3, "size": 12.0, "label": "IBM"},
				},
			},
		}
		_, err := tool.Execute(ctx, tools.Call{Args: args})

		assert.NoError(t, err)
		saver.AssertExpectations(t)
	})

	t.Run("rejects an empty series", func(t *testing.T) {
		saver := new(MockArtifactSaver)
		tool := tools.NewCreateChartTool(saver)

		args := barChartArgs()
		args["series"] = []interface{}{
			map[string]interface{}{"name": "Filings", "points": []interface{}{}},
		}
		_, err := tool.Execute(ctx, tools.Call{Args: args})

		var vErr *tools.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})
}
