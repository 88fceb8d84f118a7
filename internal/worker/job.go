// Package worker runs the asynchronous Job surface (spec §6.3): submit a
// job, poll its status, fetch its results by id, with exponential-backoff
// retries bounded per job kind. Grounded on the teacher's Scheduler
// worker-pool loop, repurposed from "dequeue a crawl request, fetch it"
// to "dequeue a job, run its URLs through the orchestrator".
package worker

import (
	"time"

	"github.com/foofork/riptide/internal/types"
)

// Kind distinguishes the job shapes spec §6.3 names. PDF jobs run the
// same pipeline as single/batch; engine selection is not forced to PDF,
// the Content Analyzer decides it as for any other job.
type Kind string

const (
	KindSingle    Kind = "single"
	KindBatch     Kind = "batch"
	KindPDF       Kind = "pdf"
	KindScheduled Kind = "scheduled"
	KindCustom    Kind = "custom"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// maxAttemptsByKind bounds retries per job-type (spec §6.3's "exponential
// backoff retries per job-type max"). Scheduled and custom jobs get one
// extra attempt since their triggers are often one-shot and worth a
// single retry on transient failure; PDF jobs get fewer, since a PDF
// extraction failure is rarely transient (malformed/encrypted document).
var maxAttemptsByKind = map[Kind]int{
	KindSingle:    3,
	KindBatch:     3,
	KindPDF:       2,
	KindScheduled: 4,
	KindCustom:    4,
}

func maxAttempts(k Kind) int {
	if n, ok := maxAttemptsByKind[k]; ok {
		return n
	}
	return 3
}

// Job is one unit of asynchronous work: a batch of URLs to run through
// the Pipeline Orchestrator, tracked by id from submission through
// terminal status.
type Job struct {
	ID      string
	Kind    Kind
	URLs    []string
	Options types.Options

	Status      Status
	Attempts    int
	MaxAttempts int

	// ReadyAt is when the job becomes eligible to dequeue; used both for
	// KindScheduled's delayed start and for backoff between retries.
	ReadyAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Results []*types.PipelineResult
	Err     string
}

// NewJob builds a queued Job ready to run immediately.
func NewJob(id string, kind Kind, urls []string, opts types.Options) *Job {
	now := time.Now()
	return &Job{
		ID:          id,
		Kind:        kind,
		URLs:        urls,
		Options:     opts,
		Status:      StatusQueued,
		MaxAttempts: maxAttempts(kind),
		ReadyAt:     now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// jobCrawlRequest builds the CrawlRequest a Pool hands to the Batch
// Runner for job. Every kind shares the same URLs/Options shape; the
// distinction between single, batch, PDF, scheduled and custom lives in
// how a job gets created and retried, not in how it is run.
func jobCrawlRequest(job *Job) *types.CrawlRequest {
	return &types.CrawlRequest{URLs: job.URLs, Options: job.Options}
}

// backoff returns the delay before retry attempt n (1-indexed), doubling
// from a one-second base and capped at one minute.
func backoff(attempt int) time.Duration {
	d := time.Second << uint(attempt-1)
	if d > time.Minute {
		d = time.Minute
	}
	return d
}
