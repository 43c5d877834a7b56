package tools_test

import (
	"context"
	"testing"

	"patent_explorer_go_backend/internal/tools"

	"github.com/stretchr/testify/assert"
)

func TestRegistryExecute(t *testing.T) {
	ctx := context.Background()
	saver := new(MockArtifactSaver)
	registry := tools.NewRegistry(tools.NewCreateCSVTool(saver))

	t.Run("unknown tool yields an error payload, not a failure", func(t *testing.T) {
		payload := registry.Execute(ctx, "fetchMoonPhase", tools.Call{})
		assert.Contains(t, payload["error"], "unknown tool")
	})

	t.Run("validation errors come back as retryable self-correction payloads", func(t *testing.T) {
		payload := registry.Execute(ctx, "createCSV", tools.Call{
			Args: map[string]interface{}{
				"title":   "Broken",
				"headers": []interface{}{"A"},
				"rows":    []interface{}{[]interface{}{"1", "2"}},
			},
		})
		assert.Equal(t, "validation_error", payload["type"])
		assert.Equal(t, true, payload["retryable"])
		assert.Contains(t, payload["error"], "row 0")
		saver.AssertNotCalled(t, "SaveCSV")
	})
}

func TestRegistryDefinitionsKeepOrder(t *testing.T) {
	saver := new(MockArtifactSaver)
	usage := new(MockUsageReporter)
	searcher := new(MockSearcher)

	registry := tools.NewRegistry(
		tools.NewPatentSearchTool(searcher, usage),
		tools.NewCreateChartTool(saver),
		tools.NewCreateCSVTool(saver),
	)

	defs := registry.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"patentSearch", "createChart", "createCSV"}, names)
}
