package domain

import "time"

// Checkpoint is the crash-recovery record persisted by the CheckpointManager
// (spec.md §4.11): every URL seen, split into what has been scraped and what
// is still pending.
type Checkpoint struct {
	JobID     string    `json:"job_id"`
	UpdatedAt time.Time `json:"updated_at"`
	Scraped   []string  `json:"scraped"`
	Pending   []string  `json:"pending"`
}

// Remaining returns the pending set minus anything already scraped, so a
// resumed run never re-fetches a completed URL even if Pending was stale
// when the checkpoint was last flushed.
func (c Checkpoint) Remaining() []string {
	done := make(map[string]struct{}, len(c.Scraped))
	for _, u := range c.Scraped {
		done[u] = struct{}{}
	}
	out := make([]string, 0, len(c.Pending))
	for _, u := range c.Pending {
		if _, ok := done[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}
