// Package scan runs username scans: it fans a handle out across the selected
// providers under the rate controller, streams each Result into a job record,
// and keeps finished jobs in a bounded store for polling.
package scan

import (
	"sync"
	"time"

	"github.com/hazyhaar/prowl/provider"
)

// State is the job lifecycle phase.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// Job is one scan in flight or finished. Results are append-only while the
// job runs and frozen once the state is terminal. All access goes through
// the job's own mutex; the store never holds it.
type Job struct {
	ID             string
	Username       string
	ProvidersCount int

	mu          sync.Mutex
	state       State
	errMsg      string
	results     []provider.Result
	foundCount  int
	failedCount int
	created     time.Time
	terminalAt  time.Time
	cancel      func()
}

// NewJob builds a pending job record outside the engine, mainly for tests
// and tooling that feed results directly.
func NewJob(id, username string, providersCount int) *Job {
	return newJob(id, username, providersCount, nil)
}

func newJob(id, username string, providersCount int, cancel func()) *Job {
	return &Job{
		ID:             id,
		Username:       username,
		ProvidersCount: providersCount,
		state:          StatePending,
		created:        time.Now(),
		cancel:         cancel,
	}
}

// Append records one provider outcome. Appends after the job reached a
// terminal state are dropped.
func (j *Job) Append(res provider.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return
	}
	j.results = append(j.results, res)
	switch res.Status {
	case provider.StatusFound:
		j.foundCount++
	case provider.StatusError:
		j.failedCount++
	}
}

// Rewrite runs fn over the accumulated results under the job lock. The
// enrichment pipeline uses it to attach addon fields before the job is
// marked done.
func (j *Job) Rewrite(fn func(results []provider.Result)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return
	}
	fn(j.results)
}

func (j *Job) setState(s State, errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return
	}
	j.state = s
	j.errMsg = errMsg
	if s.Terminal() {
		j.terminalAt = time.Now()
	}
}

// Cancel signals every outstanding provider task. Safe on finished jobs.
func (j *Job) Cancel() {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State returns the current lifecycle phase.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// TerminalSince returns when the job reached a terminal state, zero if it
// has not.
func (j *Job) TerminalSince() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.terminalAt
}

// View is the polling projection of a job.
type View struct {
	JobID          string            `json:"job_id"`
	Username       string            `json:"username"`
	State          State             `json:"state"`
	Error          string            `json:"error,omitempty"`
	ProvidersCount int               `json:"providers_count"`
	ResultsCount   int               `json:"results_count"`
	FoundCount     int               `json:"found_count"`
	FailedCount    int               `json:"failed_count"`
	Results        []provider.Result `json:"results"`
}

// Snapshot projects the job for a poll. limit < 0 returns every result;
// limit = 0 returns counts only.
func (j *Job) Snapshot(limit int) View {
	j.mu.Lock()
	defer j.mu.Unlock()
	v := View{
		JobID:          j.ID,
		Username:       j.Username,
		State:          j.state,
		Error:          j.errMsg,
		ProvidersCount: j.ProvidersCount,
		ResultsCount:   len(j.results),
		FoundCount:     j.foundCount,
		FailedCount:    j.failedCount,
	}
	n := len(j.results)
	if limit >= 0 && limit < n {
		n = limit
	}
	v.Results = make([]provider.Result, n)
	copy(v.Results, j.results[:n])
	return v
}

// Tally counts results per status, for event reporting.
func (j *Job) Tally() map[provider.Status]int {
	j.mu.Lock()
	defer j.mu.Unlock()
	t := make(map[provider.Status]int, 5)
	for _, r := range j.results {
		t[r.Status]++
	}
	return t
}
