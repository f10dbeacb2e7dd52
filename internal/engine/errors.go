package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNoText is returned by generators when the model produced no usable text.
	ErrNoText = errors.New("generator returned no text")

	// ErrEmptyInput rejects a chat turn without identity or input.
	ErrEmptyInput = errors.New("user_id and user_input are required")
)

// Pipeline stages reported in PipelineError.
const (
	StageHistory        = "history"
	StageMemoryStore    = "memory_store"
	StageMemoryRetrieve = "memory_retrieve"
	StageGenerate       = "generate"
	StageLogAppend      = "log_append"
	StageSummaryHistory = "summary_history"
	StageSummaryMemory  = "summary_memory"
	StagePrompt         = "prompt"
)

// PipelineError records the stage of a chat turn that failed.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func stageError(stage string, err error) error {
	return &PipelineError{Stage: stage, Err: err}
}
