package tools

import (
	"context"
	"fmt"

	"patent_explorer_go_backend/internal/llm"
	"patent_explorer_go_backend/internal/search"
)

// DisplaySourcePatents tags patent payloads with the index they came from.
const DisplaySourcePatents = "USPTO (via Valyu)"

const DisplaySourceWeb = "Web (via Valyu)"

type searchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"maxResults"`
}

func searchParameters(maxResults int) *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"query": {Type: "string", Description: "Natural-language search query"},
			"maxResults": {
				Type:        "integer",
				Description: fmt.Sprintf("Number of results to return, at most %d", maxResults),
			},
		},
		Required: []string{"query"},
	}
}

func resultsPayload(results []search.Result) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		entry := map[string]interface{}{
			"title":          r.Title,
			"url":            r.URL,
			"content":        r.Content,
			"source":         r.Source,
			"relevanceScore": r.RelevanceScore,
		}
		if len(r.Metadata) > 0 {
			entry["metadata"] = r.Metadata
		}
		out = append(out, entry)
	}
	return out
}

// PatentSearchTool queries the hosted USPTO index.
type PatentSearchTool struct {
	searcher Searcher
	usage    UsageReporter
}

func NewPatentSearchTool(searcher Searcher, usage UsageReporter) *PatentSearchTool {
	return &PatentSearchTool{searcher: searcher, usage: usage}
}

func (t *PatentSearchTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "patentSearch",
		Description: "Search the USPTO patent index for patents matching a query. Returns titles, abstracts and links.",
		Parameters:  searchParameters(20),
	}
}

func (t *PatentSearchTool) Execute(ctx context.Context, call Call) (map[string]interface{}, error) {
	var args searchArgs
	if err := decodeArgs(call.Args, &args); err != nil {
		return nil, err
	}
	if args.Query == "" {
		return nil, &ValidationError{Message: "query is required"}
	}

	resp, err := t.searcher.Search(ctx, search.Request{
		Query:           args.Query,
		SearchType:      search.SearchTypeProprietary,
		IncludedSources: []string{search.PatentsDataset},
		MaxNumResults:   clampResults(args.MaxResults, 10, 20),
	})
	if err != nil {
		return nil, err
	}

	t.usage.ReportToolCost(call.UserID, call.SessionID, "patentSearch", resp.TotalDeductionDollar)
	return map[string]interface{}{
		"type":          "patent_search",
		"query":         args.Query,
		"displaySource": DisplaySourcePatents,
		"resultCount":   len(resp.Results),
		"results":       resultsPayload(resp.Results),
	}, nil
}

// PatentAnalysisTool pulls deeper records (citations, families) from the
// same index with a stricter relevance threshold.
type PatentAnalysisTool struct {
	searcher Searcher
	usage    UsageReporter
}

func NewPatentAnalysisTool(searcher Searcher, usage UsageReporter) *PatentAnalysisTool {
	return &PatentAnalysisTool{searcher: searcher, usage: usage}
}

func (t *PatentAnalysisTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "patentAnalysis",
		Description: "Deep analysis of patents: full records with citations and patent families. Use for specific patent numbers or detailed landscape questions.",
		Parameters:  searchParameters(10),
	}
}

func (t *PatentAnalysisTool) Execute(ctx context.Context, call Call) (map[string]interface{}, error) {
	var args searchArgs
	if err := decodeArgs(call.Args, &args); err != nil {
		return nil, err
	}
	if args.Query == "" {
		return nil, &ValidationError{Message: "query is required"}
	}

	resp, err := t.searcher.Search(ctx, search.Request{
		Query:              args.Query,
		SearchType:         search.SearchTypeProprietary,
		IncludedSources:    []string{search.PatentsDataset},
		MaxNumResults:      clampResults(args.MaxResults, 5, 10),
		RelevanceThreshold: 0.5,
	})
	if err != nil {
		return nil, err
	}

	t.usage.ReportToolCost(call.UserID, call.SessionID, "patentAnalysis", resp.TotalDeductionDollar)
	return map[string]interface{}{
		"type":          "patent_analysis",
		"query":         args.Query,
		"displaySource": DisplaySourcePatents,
		"resultCount":   len(resp.Results),
		"results":       resultsPayload(resp.Results),
	}, nil
}

// WebSearchTool runs a generic web search through the same provider.
type WebSearchTool struct {
	searcher Searcher
	usage    UsageReporter
}

func NewWebSearchTool(searcher Searcher, usage UsageReporter) *WebSearchTool {
	return &WebSearchTool{searcher: searcher, usage: usage}
}

func (t *WebSearchTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "webSearch",
		Description: "General web search for current events, companies or technology context that the patent index cannot answer.",
		Parameters:  searchParameters(20),
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, call Call) (map[string]interface{}, error) {
	var args searchArgs
	if err := decodeArgs(call.Args, &args); err != nil {
		return nil, err
	}
	if args.Query == "" {
		return nil, &ValidationError{Message: "query is required"}
	}

	resp, err := t.searcher.Search(ctx, search.Request{
		Query:         args.Query,
		SearchType:    search.SearchTypeWeb,
		MaxNumResults: clampResults(args.MaxResults, 10, 20),
	})
	if err != nil {
		return nil, err
	}

	t.usage.ReportToolCost(call.UserID, call.SessionID, "webSearch", resp.TotalDeductionDollar)
	return map[string]interface{}{
		"type":          "web_search",
		"query":         args.Query,
		"displaySource": DisplaySourceWeb,
		"resultCount":   len(resp.Results),
		"results":       resultsPayload(resp.Results),
	}, nil
}
