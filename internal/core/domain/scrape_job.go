package domain

import "time"

// JobStatus is the lifecycle state of a ScrapeJob (spec.md §3, §4.10, §8
// property 10): COLLECTING -> DISPATCHED -> PROCESSING -> AGGREGATING ->
// COMPLETE, monotonic, with FAILED reachable from any non-terminal state.
type JobStatus string

const (
	JobCollecting  JobStatus = "collecting"
	JobDispatched  JobStatus = "dispatched"
	JobProcessing  JobStatus = "processing"
	JobAggregating JobStatus = "aggregating"
	JobComplete    JobStatus = "complete"
	JobFailed      JobStatus = "failed"
)

// jobStatusRank gives the monotonic ordering non-failed statuses must
// advance through; FAILED has no rank since it is reachable from any of them.
var jobStatusRank = map[JobStatus]int{
	JobCollecting:  0,
	JobDispatched:  1,
	JobProcessing:  2,
	JobAggregating: 3,
	JobComplete:    4,
}

// CanAdvanceTo reports whether transitioning from j.Status to next respects
// the required lifecycle ordering (spec.md §8 property 10): forward-only
// through the non-terminal sequence, or into FAILED from anywhere non-terminal,
// never out of a terminal status.
func (j ScrapeJob) CanAdvanceTo(next JobStatus) bool {
	if j.IsTerminal() {
		return false
	}
	if next == JobFailed {
		return true
	}
	curRank, curOK := jobStatusRank[j.Status]
	nextRank, nextOK := jobStatusRank[next]
	if !curOK || !nextOK {
		return false
	}
	return nextRank > curRank
}

// ScrapeJob is one dispatch run for a site: a set of discovered listing URLs
// fanned out across workers in chunks and joined back into aggregate counts
// via the chord pattern (spec.md §3, §4.10, §4.12).
type ScrapeJob struct {
	CreatedAt      time.Time `json:"created_at"`
	CompletedAt    time.Time `json:"completed_at"`
	ID             string    `json:"job_id"`
	Site           string    `json:"site"`
	Status         JobStatus `json:"status"`
	SeedURLs       []string  `json:"seed_urls"`
	TotalURLs      int       `json:"total_urls"`
	TotalChunks    int       `json:"total_chunks"`
	DoneChunks     int       `json:"completed_chunks"`
	FailedChunks   int       `json:"failed_chunks"`
	ResultCount    int       `json:"result_count"`
	ErrorCount     int       `json:"error_count"`
}

// Progress returns the fraction of chunks that have finished (succeeded or
// failed), in [0, 1].
func (j ScrapeJob) Progress() float64 {
	if j.TotalChunks == 0 {
		return 0
	}
	return float64(j.DoneChunks) / float64(j.TotalChunks)
}

// IsTerminal reports whether the job has reached a final status.
func (j ScrapeJob) IsTerminal() bool {
	return j.Status == JobComplete || j.Status == JobFailed
}
