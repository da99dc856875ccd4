package scan

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/hazyhaar/prowl/provider"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

// stubProvider is a provider with scripted behavior.
type stubProvider struct {
	name     string
	status   provider.Status
	profile  provider.Profile
	delay    time.Duration
	panicMsg string
	block    bool // wait for ctx cancellation before returning
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Check(ctx context.Context, username string) provider.Result {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.block {
		<-ctx.Done()
		return provider.Result{Provider: s.name, Status: provider.StatusError, Error: ctx.Err().Error()}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return provider.Result{Provider: s.name, Status: provider.StatusError, Error: ctx.Err().Error()}
		}
	}
	return provider.Result{Provider: s.name, Status: s.status, Profile: s.profile}
}

func testRegistry(t *testing.T, stubs ...*stubProvider) *provider.Registry {
	t.Helper()
	reg := provider.NewRegistry(provider.Sources{}, nil, discard())
	for _, s := range stubs {
		reg.RegisterDriver(s)
	}
	if err := reg.Reload(); err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestSanitizeUsername(t *testing.T) {
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "alice", "alice", false},
		{"trimmed", "  alice \n", "alice", false},
		{"empty", "", "", true},
		{"whitespace only", "   ", "", true},
		{"too long", string(long), "", true},
		{"max length", string(long[:64]), string(long[:64]), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeUsername(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJobSnapshotLimit(t *testing.T) {
	j := newJob("job_1", "alice", 3, nil)
	j.Append(provider.Result{Provider: "a", Status: provider.StatusFound})
	j.Append(provider.Result{Provider: "b", Status: provider.StatusNotFound})
	j.Append(provider.Result{Provider: "c", Status: provider.StatusError})

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"all", -1, 3},
		{"counts only", 0, 0},
		{"capped", 2, 2},
		{"over", 10, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := j.Snapshot(tt.limit)
			if len(v.Results) != tt.want {
				t.Errorf("results = %d, want %d", len(v.Results), tt.want)
			}
			if v.ResultsCount != 3 || v.FoundCount != 1 || v.FailedCount != 1 {
				t.Errorf("counts = %d/%d/%d", v.ResultsCount, v.FoundCount, v.FailedCount)
			}
		})
	}
}

func TestJobFrozenAfterTerminal(t *testing.T) {
	j := newJob("job_1", "alice", 2, nil)
	j.Append(provider.Result{Provider: "a", Status: provider.StatusFound})
	j.setState(StateDone, "")
	j.Append(provider.Result{Provider: "b", Status: provider.StatusFound})
	j.setState(StateFailed, "late")

	v := j.Snapshot(-1)
	if v.ResultsCount != 1 {
		t.Errorf("results_count = %d, want 1 (frozen)", v.ResultsCount)
	}
	if v.State != StateDone {
		t.Errorf("state = %q, want done (no transition out of terminal)", v.State)
	}
}

func TestStoreLRUEviction(t *testing.T) {
	s := NewStore(StoreConfig{Capacity: 2})
	s.Put(newJob("job_1", "a", 1, nil))
	s.Put(newJob("job_2", "b", 1, nil))

	if _, ok := s.Get("job_1"); !ok {
		t.Fatal("job_1 missing before eviction")
	}
	// job_1 is now most recent; inserting a third evicts job_2.
	s.Put(newJob("job_3", "c", 1, nil))

	if _, ok := s.Get("job_2"); ok {
		t.Error("job_2 should have been evicted")
	}
	if _, ok := s.Get("job_1"); !ok {
		t.Error("job_1 should survive")
	}
	if _, ok := s.Get("job_3"); !ok {
		t.Error("job_3 should survive")
	}
}

func TestStoreTerminalTTL(t *testing.T) {
	s := NewStore(StoreConfig{Capacity: 10, TerminalTTL: 20 * time.Millisecond})
	done := newJob("job_done", "a", 1, nil)
	done.setState(StateDone, "")
	running := newJob("job_running", "b", 1, nil)
	s.Put(done)
	s.Put(running)

	time.Sleep(40 * time.Millisecond)
	if _, ok := s.Get("job_done"); ok {
		t.Error("terminal job should expire")
	}
	if _, ok := s.Get("job_running"); !ok {
		t.Error("running job must not expire")
	}
}

func TestEngineRun(t *testing.T) {
	reg := testRegistry(t,
		&stubProvider{name: "a", status: provider.StatusFound, profile: provider.Profile{"display_name": "A"}},
		&stubProvider{name: "b", status: provider.StatusNotFound},
		&stubProvider{name: "c", status: provider.StatusError},
	)
	e := New(reg, NewStore(StoreConfig{}), Config{Logger: discard()})

	v, err := e.Run(context.Background(), Request{Username: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if v.State != StateDone {
		t.Fatalf("state = %q (%s), want done", v.State, v.Error)
	}
	if v.ProvidersCount != 3 || v.ResultsCount != 3 {
		t.Errorf("counts = %d/%d, want 3/3", v.ProvidersCount, v.ResultsCount)
	}
	if v.FoundCount != 1 || v.FailedCount != 1 {
		t.Errorf("found/failed = %d/%d", v.FoundCount, v.FailedCount)
	}
}

func TestEngineSelectSubset(t *testing.T) {
	reg := testRegistry(t,
		&stubProvider{name: "a", status: provider.StatusFound},
		&stubProvider{name: "b", status: provider.StatusFound},
	)
	e := New(reg, NewStore(StoreConfig{}), Config{Logger: discard()})

	v, err := e.Run(context.Background(), Request{Username: "alice", Providers: []string{"b"}})
	if err != nil {
		t.Fatal(err)
	}
	if v.ProvidersCount != 1 || v.Results[0].Provider != "b" {
		t.Errorf("subset = %d providers, first %q", v.ProvidersCount, v.Results[0].Provider)
	}

	if _, err := e.Run(context.Background(), Request{Username: "alice", Providers: []string{"nope"}}); err == nil {
		t.Error("unknown-only subset should fail submission")
	}
}

func TestEngineInvalidUsername(t *testing.T) {
	reg := testRegistry(t, &stubProvider{name: "a", status: provider.StatusFound})
	e := New(reg, NewStore(StoreConfig{}), Config{Logger: discard()})

	if _, err := e.Submit(Request{Username: "  "}); err == nil {
		t.Error("blank username should be rejected")
	}
}

func TestEnginePanicIsolation(t *testing.T) {
	reg := testRegistry(t,
		&stubProvider{name: "ok", status: provider.StatusFound},
		&stubProvider{name: "boom", panicMsg: "nil deref"},
	)
	e := New(reg, NewStore(StoreConfig{}), Config{Logger: discard()})

	v, err := e.Run(context.Background(), Request{Username: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if v.State != StateDone {
		t.Fatalf("state = %q, want done despite panic", v.State)
	}
	var boom *provider.Result
	for i := range v.Results {
		if v.Results[i].Provider == "boom" {
			boom = &v.Results[i]
		}
	}
	if boom == nil {
		t.Fatal("panicking provider produced no result")
	}
	if boom.Status != provider.StatusError || boom.Error != "provider panic" {
		t.Errorf("panic result = %q/%q", boom.Status, boom.Error)
	}
}

func TestEngineCancel(t *testing.T) {
	reg := testRegistry(t,
		&stubProvider{name: "fast", status: provider.StatusFound},
		&stubProvider{name: "slow", block: true},
	)
	e := New(reg, NewStore(StoreConfig{}), Config{Logger: discard()})

	id, err := e.Submit(Request{Username: "alice"})
	if err != nil {
		t.Fatal(err)
	}

	// Wait for the fast provider's result to stream in, then cancel.
	deadline := time.Now().Add(5 * time.Second)
	for {
		v, ok := e.Get(id, 0)
		if !ok {
			t.Fatal("job vanished")
		}
		if v.ResultsCount >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no partial result before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !e.Cancel(id) {
		t.Fatal("cancel returned false")
	}

	for {
		v, ok := e.Get(id, -1)
		if !ok {
			t.Fatal("job vanished after cancel")
		}
		if v.State.Terminal() {
			if v.State != StateFailed || v.Error != "cancelled" {
				t.Fatalf("terminal = %q/%q, want failed/cancelled", v.State, v.Error)
			}
			if v.ResultsCount != 2 {
				t.Errorf("results = %d, want 2", v.ResultsCount)
			}
			for _, r := range v.Results {
				if r.Provider == "slow" && r.Error != "cancelled" {
					t.Errorf("slow result error = %q, want cancelled", r.Error)
				}
				if r.Provider == "fast" && r.Status != provider.StatusFound {
					t.Errorf("fast partial outcome lost: %q", r.Status)
				}
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("job never reached terminal state")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngineJobDeadline(t *testing.T) {
	reg := testRegistry(t, &stubProvider{name: "slow", block: true})
	e := New(reg, NewStore(StoreConfig{}), Config{JobDeadline: 30 * time.Millisecond, Logger: discard()})

	v, err := e.Run(context.Background(), Request{Username: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if v.State != StateFailed || v.Error != "cancelled" {
		t.Fatalf("state = %q/%q, want failed/cancelled", v.State, v.Error)
	}
}

type captureEnricher struct {
	ran        bool
	stateAtRun State
}

func (c *captureEnricher) Enrich(ctx context.Context, job *Job, references [][]byte) {
	c.ran = true
	c.stateAtRun = job.State()
	job.Rewrite(func(results []provider.Result) {
		for i := range results {
			if results[i].Profile == nil {
				results[i].Profile = provider.Profile{}
			}
			results[i].Profile["enriched"] = true
		}
	})
}

func TestEngineEnricher(t *testing.T) {
	reg := testRegistry(t, &stubProvider{name: "a", status: provider.StatusFound})
	enr := &captureEnricher{}
	e := New(reg, NewStore(StoreConfig{}), Config{Enricher: enr, Logger: discard()})

	v, err := e.Run(context.Background(), Request{Username: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if !enr.ran {
		t.Fatal("enricher never ran")
	}
	if enr.stateAtRun != StateRunning {
		t.Errorf("enricher ran in state %q, want running", enr.stateAtRun)
	}
	if got := v.Results[0].Profile["enriched"]; got != true {
		t.Errorf("enrichment missing from final view: %v", got)
	}
}

type captureEvents struct {
	submitted int
	finished  int
	lastState State
}

func (c *captureEvents) JobSubmitted(jobID, username string, providers int) { c.submitted++ }
func (c *captureEvents) JobFinished(jobID string, state State, tally map[provider.Status]int) {
	c.finished++
	c.lastState = state
}

func TestEngineEvents(t *testing.T) {
	reg := testRegistry(t, &stubProvider{name: "a", status: provider.StatusFound})
	ev := &captureEvents{}
	e := New(reg, NewStore(StoreConfig{}), Config{Events: ev, Logger: discard()})

	if _, err := e.Run(context.Background(), Request{Username: "alice"}); err != nil {
		t.Fatal(err)
	}
	if ev.submitted != 1 || ev.finished != 1 {
		t.Errorf("events = %d submitted / %d finished", ev.submitted, ev.finished)
	}
	if ev.lastState != StateDone {
		t.Errorf("finished state = %q", ev.lastState)
	}
}
