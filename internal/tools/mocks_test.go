package tools_test

import (
	"context"

	"patent_explorer_go_backend/internal/models"
	"patent_explorer_go_backend/internal/sandbox"
	"patent_explorer_go_backend/internal/search"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockArtifactSaver struct {
	mock.Mock
}

func (m *MockArtifactSaver) SaveChart(chart *models.Chart) error {
	args := m.Called(chart)
	return args.Error(0)
}

func (m *MockArtifactSaver) SaveCSV(artifact *models.CSVArtifact) error {
	args := m.Called(artifact)
	return args.Error(0)
}

type MockUsageReporter struct {
	mock.Mock
}

func (m *MockUsageReporter) ReportToolCost(userID *uuid.UUID, sessionID, tool string, dollars float64) {
	m.Called(userID, sessionID, tool, dollars)
}

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) CreateSandbox(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockRunner) RunCode(ctx context.Context, sandboxID, code string) (*sandbox.ExecResult, error) {
	args := m.Called(ctx, sandboxID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sandbox.ExecResult), args.Error(1)
}

func (m *MockRunner) DeleteSandbox(ctx context.Context, sandboxID string) error {
	args := m.Called(ctx, sandboxID)
	return args.Error(0)
}

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*search.Response), args.Error(1)
}
