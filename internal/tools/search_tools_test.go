package tools_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"patent_explorer_go_backend/internal/search"
	"patent_explorer_go_backend/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// valyuStub records the last request body and serves a canned response.
func valyuStub(t *testing.T, results []search.Result, cost float64) (*httptest.Server, *search.Request) {
	t.Helper()
	var lastReq search.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/deepsearch", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&lastReq))
		json.NewEncoder(w).Encode(search.Response{
			Success:              true,
			Results:              results,
			TotalDeductionDollar: cost,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &lastReq
}

func TestPatentSearchTool(t *testing.T) {
	results := []search.Result{{Title: "US1234567B2", URL: "https://patents.example/US1234567B2", RelevanceScore: 0.9}}
	srv, lastReq := valyuStub(t, results, 0.015)

	usage := new(MockUsageReporter)
	usage.On("ReportToolCost", mock.Anything, "sess-1", "patentSearch", 0.015).Once()

	tool := tools.NewPatentSearchTool(search.NewClient(srv.URL, "test-key"), usage)
	payload, err := tool.Execute(context.Background(), tools.Call{
		SessionID: "sess-1",
		Args:      map[string]interface{}{"query": "battery anode", "maxResults": 50.0},
	})

	assert.NoError(t, err)
	assert.Equal(t, "patent_search", payload["type"])
	assert.Equal(t, tools.DisplaySourcePatents, payload["displaySource"])
	assert.Equal(t, 1, payload["resultCount"])

	assert.Equal(t, search.SearchTypeProprietary, lastReq.SearchType)
	assert.Equal(t, []string{search.PatentsDataset}, lastReq.IncludedSources)
	assert.Equal(t, 20, lastReq.MaxNumResults) // clamped from 50
	usage.AssertExpectations(t)
}

func TestPatentAnalysisTool(t *testing.T) {
	srv, lastReq := valyuStub(t, []search.Result{{Title: "US7654321B1"}}, 0.04)

	usage := new(MockUsageReporter)
	usage.On("ReportToolCost", mock.Anything, "sess-1", "patentAnalysis", 0.04).Once()

	tool := tools.NewPatentAnalysisTool(search.NewClient(srv.URL, "test-key"), usage)
	payload, err := tool.Execute(context.Background(), tools.Call{
		SessionID: "sess-1",
		Args:      map[string]interface{}{"query": "US7654321B1 citations"},
	})

	assert.NoError(t, err)
	assert.Equal(t, "patent_analysis", payload["type"])
	assert.Equal(t, tools.DisplaySourcePatents, payload["displaySource"])

	assert.Equal(t, 5, lastReq.MaxNumResults) // analysis default
	assert.Equal(t, 0.5, lastReq.RelevanceThreshold)
	usage.AssertExpectations(t)
}

func TestWebSearchTool(t *testing.T) {
	srv, lastReq := valyuStub(t, []search.Result{{Title: "Press release"}}, 0.002)

	usage := new(MockUsageReporter)
	usage.On("ReportToolCost", mock.Anything, "sess-1", "webSearch", 0.002).Once()

	tool := tools.NewWebSearchTool(search.NewClient(srv.URL, "test-key"), usage)
	payload, err := tool.Execute(context.Background(), tools.Call{
		SessionID: "sess-1",
		Args:      map[string]interface{}{"query": "uspto fee schedule 2026"},
	})

	assert.NoError(t, err)
	assert.Equal(t, "web_search", payload["type"])
	assert.Equal(t, search.SearchTypeWeb, lastReq.SearchType)
	assert.Empty(t, lastReq.IncludedSources)
	usage.AssertExpectations(t)
}

func TestSearchToolRejectsEmptyQuery(t *testing.T) {
	searcher := new(MockSearcher)
	usage := new(MockUsageReporter)
	tool := tools.NewPatentSearchTool(searcher, usage)

	_, err := tool.Execute(context.Background(), tools.Call{Args: map[string]interface{}{}})

	var vErr *tools.ValidationError
	assert.ErrorAs(t, err, &vErr)
	searcher.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}
