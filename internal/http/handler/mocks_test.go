package handler_test

import (
	"context"

	"synapse.app/ingest/internal/adapter/github"
	"synapse.app/ingest/internal/cursor"
	"synapse.app/ingest/internal/model"
	"synapse.app/ingest/internal/service"
	"synapse.app/ingest/internal/syncer"
)

type mockIngestService struct {
	ingestFn func(ctx context.Context, draft model.Draft) (*service.IngestResult, error)
}

func (m *mockIngestService) Ingest(ctx context.Context, draft model.Draft) (*service.IngestResult, error) {
	if m.ingestFn != nil {
		return m.ingestFn(ctx, draft)
	}
	event, err := model.NewEvent(draft)
	if err != nil {
		return nil, err
	}
	return &service.IngestResult{Event: event, Published: true}, nil
}

type mockTestDataService struct {
	generateFn func(ctx context.Context, source string, count int) ([]service.TestDataResult, error)
}

func (m *mockTestDataService) Generate(ctx context.Context, source string, count int) ([]service.TestDataResult, error) {
	return m.generateFn(ctx, source, count)
}

type mockSyncRunner struct {
	runAllFn     func(ctx context.Context) []*syncer.SourceResult
	runAdapterFn func(ctx context.Context, name string) (*syncer.SourceResult, error)
}

func (m *mockSyncRunner) RunAll(ctx context.Context) []*syncer.SourceResult {
	if m.runAllFn != nil {
		return m.runAllFn(ctx)
	}
	return nil
}

func (m *mockSyncRunner) RunAdapter(ctx context.Context, name string) (*syncer.SourceResult, error) {
	return m.runAdapterFn(ctx, name)
}

type mockCursorAdmin struct {
	peekFn     func(ctx context.Context, key cursor.Key) (cursor.Position, bool, error)
	cleared    []cursor.Key
	clearedAll bool
}

func (m *mockCursorAdmin) Peek(ctx context.Context, key cursor.Key) (cursor.Position, bool, error) {
	if m.peekFn != nil {
		return m.peekFn(ctx, key)
	}
	return cursor.Position{}, false, nil
}

func (m *mockCursorAdmin) Clear(ctx context.Context, key cursor.Key) error {
	m.cleared = append(m.cleared, key)
	return nil
}

func (m *mockCursorAdmin) ClearAll(ctx context.Context) error {
	m.clearedAll = true
	return nil
}

type mockAnalyzer struct {
	analyzeFn func(ctx context.Context, repository string) (*github.Analysis, error)
	requested []string
}

func (m *mockAnalyzer) Analyze(ctx context.Context, repository string) (*github.Analysis, error) {
	m.requested = append(m.requested, repository)
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, repository)
	}
	return &github.Analysis{FullName: repository}, nil
}
