package transport

import (
	"context"
	"time"

	"github.com/rhuss/runbox/pkg/api"
	"github.com/rhuss/runbox/pkg/correction"
)

// Executor runs code synchronously. *sandbox.Sandbox implements it.
type Executor interface {
	Execute(ctx context.Context, code, lang string) api.ExecutionResult
}

// Classifier diagnoses failed runs and keeps an error log.
// *classifier.Classifier implements it.
type Classifier interface {
	ClassifyResult(res api.ExecutionResult, ctx map[string]any) api.Diagnosis
	History(limit int) []api.ErrorRecord
	ClearHistory()
}

// Corrector runs the retry-correction loop. *correction.Loop implements it.
type Corrector interface {
	Run(ctx context.Context, code, lang string) correction.Outcome
}

// TaskManager is the asynchronous task API. *tasks.Executor implements it.
type TaskManager interface {
	SubmitCode(code, lang string) api.Submission
	Result(id string) api.TaskResult
	Wait(ctx context.Context, id string, timeout time.Duration) api.TaskResult
	Cancel(id string) api.TaskResult
	List(status api.TaskStatus) map[api.TaskStatus][]api.TaskView
	Cleanup(maxAge time.Duration) int
}

// HistoryReader lists recorded executions. history.Store implements it.
type HistoryReader interface {
	List(ctx context.Context, limit int) ([]api.ExecutionRecord, error)
}
