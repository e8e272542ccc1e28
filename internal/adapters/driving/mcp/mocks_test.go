package mcp

import (
	"context"

	"github.com/custodia-labs/mira/internal/core/domain"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	answer   *domain.Answer
	err      error
	question string
	opts     domain.QueryOptions
}

func (m *mockQueryService) Answer(ctx context.Context, question string) (*domain.Answer, error) {
	return m.AnswerWithOptions(ctx, question, domain.QueryOptions{})
}

func (m *mockQueryService) AnswerWithOptions(
	_ context.Context,
	question string,
	opts domain.QueryOptions,
) (*domain.Answer, error) {
	m.question = question
	m.opts = opts
	return m.answer, m.err
}

func (m *mockQueryService) Run(_ context.Context, question string, _ domain.QueryOptions) *domain.QueryOutcome {
	return &domain.QueryOutcome{Question: question, Stage: domain.StageDone, Answer: m.answer}
}

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	passages []domain.RetrievedPassage
	err      error
	opts     domain.RetrieveOptions
}

func (m *mockRetrievalService) Retrieve(
	_ context.Context,
	_ string,
	opts domain.RetrieveOptions,
) ([]domain.RetrievedPassage, error) {
	m.opts = opts
	return m.passages, m.err
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	documents []domain.Document
	err       error
}

func (m *mockIngestService) Ingest(_ context.Context, _ []domain.Document) (*domain.IngestionReport, error) {
	return &domain.IngestionReport{}, m.err
}

func (m *mockIngestService) Delete(_ context.Context, _ []string) (*domain.DeleteReport, error) {
	return &domain.DeleteReport{}, m.err
}

func (m *mockIngestService) List(_ context.Context) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockIngestService) Get(_ context.Context, id string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.documents {
		if m.documents[i].ID == id {
			return &m.documents[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func validPorts() *Ports {
	return &Ports{Query: &mockQueryService{}, Retrieval: &mockRetrievalService{}}
}
