package domain

import (
	"errors"
	"fmt"
)

// QueryStage is a step of the query state machine.
type QueryStage string

// Query stages in execution order. Done and Failed are terminal.
const (
	StagePending    QueryStage = "pending"
	StageEmbedding  QueryStage = "embedding"
	StageRetrieving QueryStage = "retrieving"
	StageAssembling QueryStage = "assembling"
	StageGenerating QueryStage = "generating"
	StageDone       QueryStage = "done"
	StageFailed     QueryStage = "failed"
)

// String returns the string representation.
func (s QueryStage) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible.
func (s QueryStage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// Next returns the stage that follows s on success.
// Terminal stages return themselves.
func (s QueryStage) Next() QueryStage {
	switch s {
	case StagePending:
		return StageEmbedding
	case StageEmbedding:
		return StageRetrieving
	case StageRetrieving:
		return StageAssembling
	case StageAssembling:
		return StageGenerating
	case StageGenerating:
		return StageDone
	default:
		return s
	}
}

// StageError is the failure of one query stage.
type StageError struct {
	Stage QueryStage
	Err   error
}

// Error implements error.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Kind returns the stable error kind of the failure.
func (e *StageError) Kind() ErrorKind {
	return KindOf(e.Err)
}

// FailedStage returns the stage that failed, if err carries one.
func FailedStage(err error) (QueryStage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// QueryOutcome is the terminal result of a query: exactly one of Answer or
// Err is set, and Stage is StageDone or StageFailed accordingly.
type QueryOutcome struct {
	// ID identifies the query in logs.
	ID string

	// Question is the normalised question text.
	Question string

	// Stage is the terminal stage.
	Stage QueryStage

	// Answer is set when Stage is StageDone.
	Answer *Answer

	// Err is set when Stage is StageFailed.
	Err *StageError

	// Trace lists the stages entered, in order.
	Trace []QueryStage
}

// Succeeded reports whether the query produced an answer.
func (o *QueryOutcome) Succeeded() bool {
	return o.Stage == StageDone && o.Answer != nil
}

// QueryOptions customises a single query.
type QueryOptions struct {
	// TopK overrides the configured passage count when > 0.
	TopK int

	// ScoreThreshold overrides the configured threshold when > 0.
	ScoreThreshold float64

	// Filter restricts retrieval by metadata.
	Filter MetadataFilter
}
