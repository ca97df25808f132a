package worker

import (
	"errors"
	"fmt"

	"github.com/FranksOps/securescan/internal/scan"
)

// Kind distinguishes scan tasks from init (warm-up) tasks.
type Kind string

const (
	KindScan Kind = "scan"
	KindInit Kind = "init"
)

// Task is one unit of work for the pool. Task IDs are globally unique; scan
// tasks use "<scan_id>::page-<index>" by convention.
type Task struct {
	ID       string
	ScanID   string
	Kind     Kind
	Page     scan.Page
	Priority int
}

// TaskID builds the conventional id for the index-th page task of a scan.
func TaskID(scanID string, index int) string {
	return fmt.Sprintf("%s::page-%d", scanID, index)
}

// Result is the outcome of one task. Exactly one Result is delivered per
// submitted task, on the future returned by Submit.
type Result struct {
	TaskID          string
	WorkerID        int
	PageURL         string
	Findings        []scan.Finding
	FormsFound      int
	EndpointsTested int
	Err             error
}

// Ok reports whether the task completed without error.
func (r Result) Ok() bool { return r.Err == nil }

// ErrWorkerCrashed marks a task whose worker died mid-flight. The pool
// replaces the worker; the task is not retried.
var ErrWorkerCrashed = errors.New("worker crashed")

// ErrPoolClosed rejects tasks submitted to, or still queued in, a pool that
// is shutting down.
var ErrPoolClosed = errors.New("worker pool closed")

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	WorkerCount int
	Active      int
	Queued      int
	InFlight    int
}
