package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/core/ports/driving"
	"github.com/custodia-labs/mira/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// QueryConfig holds the per-query defaults.
type QueryConfig struct {
	TopK             int
	ScoreThreshold   float64
	MaxContextTokens int
	Generation       domain.GenerationParams
}

// DefaultQueryConfig returns the query configuration derived from defaults.
func DefaultQueryConfig() QueryConfig {
	s := domain.DefaultAppSettings()
	return QueryConfig{
		TopK:             s.Retrieval.TopK,
		ScoreThreshold:   s.Retrieval.ScoreThreshold,
		MaxContextTokens: s.Generation.MaxContextTokens,
		Generation: domain.GenerationParams{
			Temperature: s.Generation.Temperature,
			MaxTokens:   s.Generation.MaxTokens,
		},
	}
}

// QueryService runs the embed, retrieve, assemble and generate stages.
type QueryService struct {
	embedder  *Embedder
	retriever *Retriever
	assembler *ContextAssembler
	generator *Generator
	cfg       QueryConfig
	newID     func() string
}

// NewQueryService creates a query pipeline.
func NewQueryService(
	embedder *Embedder,
	retriever *Retriever,
	assembler *ContextAssembler,
	generator *Generator,
	cfg QueryConfig,
) *QueryService {
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = domain.DefaultMaxContextTokens
	}
	return &QueryService{
		embedder:  embedder,
		retriever: retriever,
		assembler: assembler,
		generator: generator,
		cfg:       cfg,
		newID:     uuid.NewString,
	}
}

// Answer answers question with the configured retrieval defaults.
func (s *QueryService) Answer(ctx context.Context, question string) (*domain.Answer, error) {
	return s.AnswerWithOptions(ctx, question, domain.QueryOptions{})
}

// AnswerWithOptions answers question with per-query retrieval overrides.
// A failure is returned as *domain.StageError.
func (s *QueryService) AnswerWithOptions(
	ctx context.Context, question string, opts domain.QueryOptions,
) (*domain.Answer, error) {
	outcome := s.Run(ctx, question, opts)
	if !outcome.Succeeded() {
		return nil, outcome.Err
	}
	return outcome.Answer, nil
}

// queryRun carries the state of one pipeline execution.
type queryRun struct {
	outcome *domain.QueryOutcome
	ctx     context.Context
}

// enter moves the run to stage, failing it if ctx has already ended.
func (r *queryRun) enter(stage domain.QueryStage) bool {
	r.outcome.Stage = stage
	r.outcome.Trace = append(r.outcome.Trace, stage)
	if err := r.ctx.Err(); err != nil {
		r.fail(err)
		return false
	}
	logger.Debug("query %s: %s", r.outcome.ID, stage)
	return true
}

// settle fails the run when err is set or ctx ended while the stage's call
// was in flight; a result produced after cancellation is discarded.
func (r *queryRun) settle(err error) bool {
	if err == nil {
		err = r.ctx.Err()
	}
	if err != nil {
		r.fail(err)
		return false
	}
	return true
}

func (r *queryRun) fail(err error) {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		err = fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	r.outcome.Err = &domain.StageError{Stage: r.outcome.Stage, Err: err}
	r.outcome.Answer = nil
	r.outcome.Stage = domain.StageFailed
	r.outcome.Trace = append(r.outcome.Trace, domain.StageFailed)
	logger.Warn("query %s failed during %s: %v", r.outcome.ID, r.outcome.Err.Stage, err)
}

// Run executes the pipeline and always returns a terminal outcome.
func (s *QueryService) Run(ctx context.Context, question string, opts domain.QueryOptions) *domain.QueryOutcome {
	run := &queryRun{
		ctx: ctx,
		outcome: &domain.QueryOutcome{
			ID:       s.newID(),
			Question: NormalizeText(question),
			Stage:    domain.StagePending,
			Trace:    []domain.QueryStage{domain.StagePending},
		},
	}
	logger.Section("Query " + run.outcome.ID)

	if !run.enter(domain.StageEmbedding) {
		return run.outcome
	}
	if run.outcome.Question == "" {
		run.fail(fmt.Errorf("%w: question is empty", domain.ErrInvalidInput))
		return run.outcome
	}
	vector, err := s.embedder.EmbedQuery(ctx, run.outcome.Question)
	if !run.settle(err) {
		return run.outcome
	}

	if !run.enter(domain.StageRetrieving) {
		return run.outcome
	}
	passages, err := s.retriever.RetrieveByVector(ctx, vector, s.retrieveOptions(opts))
	if !run.settle(err) {
		return run.outcome
	}

	if !run.enter(domain.StageAssembling) {
		return run.outcome
	}
	prompt, err := s.assembler.Assemble(passages, run.outcome.Question, s.cfg.MaxContextTokens)
	if !run.settle(err) {
		return run.outcome
	}

	if !run.enter(domain.StageGenerating) {
		return run.outcome
	}
	answer, err := s.generator.Generate(ctx, domain.GenerationRequest{
		System:           prompt.System,
		User:             prompt.User,
		Params:           s.cfg.Generation,
		CitedDocumentIDs: prompt.CitedDocumentIDs,
		NoContext:        prompt.NoContext(),
	})
	if !run.settle(err) {
		return run.outcome
	}

	answer.Passages = prompt.Included
	answer.Sources = passages[:prompt.Included]
	if prompt.Included > 0 {
		answer.Confidence = passages[0].Score
	}

	run.outcome.Answer = answer
	run.outcome.Stage = domain.StageDone
	run.outcome.Trace = append(run.outcome.Trace, domain.StageDone)
	logger.Info("Query %s answered from %d passages (%d citations)",
		run.outcome.ID, prompt.Included, len(answer.Citations))
	return run.outcome
}

func (s *QueryService) retrieveOptions(opts domain.QueryOptions) domain.RetrieveOptions {
	ro := domain.RetrieveOptions{
		TopK:           s.cfg.TopK,
		ScoreThreshold: s.cfg.ScoreThreshold,
		Filter:         opts.Filter,
	}
	if opts.TopK > 0 {
		ro.TopK = opts.TopK
	}
	if opts.ScoreThreshold > 0 {
		ro.ScoreThreshold = opts.ScoreThreshold
	}
	return ro
}
