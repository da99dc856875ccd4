package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// Heartbeat writes periodic liveness rows to the service_heartbeats table
// so operators can tell a hung server from a stopped one.
type Heartbeat struct {
	db          *sql.DB
	serviceName string
	hostname    string
	pid         int
	interval    time.Duration
	stop        chan struct{}
	done        chan struct{}
}

// NewHeartbeat creates a heartbeat writer. Recommended interval: 15s.
func NewHeartbeat(db *sql.DB, serviceName string, interval time.Duration) *Heartbeat {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Heartbeat{
		db:          db,
		serviceName: serviceName,
		hostname:    hostname,
		pid:         os.Getpid(),
		interval:    interval,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the heartbeat goroutine. It writes one beat immediately,
// then repeats at the configured interval until Stop or ctx cancellation.
func (h *Heartbeat) Start(ctx context.Context) {
	go h.loop(ctx)
}

// Beat writes a single heartbeat row with current runtime stats.
func (h *Heartbeat) Beat() error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	_, err := h.db.Exec(`
		INSERT INTO service_heartbeats (
			service_name, hostname, pid, timestamp,
			goroutines_count, memory_alloc_mb, gc_count
		) VALUES (?,?,?,?,?,?,?)`,
		h.serviceName, h.hostname, h.pid, time.Now().Unix(),
		runtime.NumGoroutine(), float64(mem.Alloc)/1024/1024, mem.NumGC)
	if err != nil {
		return fmt.Errorf("observability: insert heartbeat: %w", err)
	}
	return nil
}

// Stop signals the heartbeat goroutine to exit and waits for it.
func (h *Heartbeat) Stop() {
	close(h.stop)
	<-h.done
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.Beat(); err != nil {
		slog.Error("observability: heartbeat write failed", "error", err, "service", h.serviceName)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		case <-ticker.C:
			if err := h.Beat(); err != nil {
				slog.Error("observability: heartbeat write failed", "error", err, "service", h.serviceName)
			}
		}
	}
}

// HeartbeatStatus is the latest beat for a service plus a staleness verdict.
type HeartbeatStatus struct {
	ServiceName     string    `json:"service_name"`
	Hostname        string    `json:"hostname"`
	PID             int       `json:"pid"`
	Timestamp       time.Time `json:"timestamp"`
	GoroutinesCount int       `json:"goroutines_count"`
	MemoryAllocMB   float64   `json:"memory_alloc_mb"`
	GCCount         int       `json:"gc_count"`
	Alive           bool      `json:"alive"`
}

// LatestHeartbeat returns the most recent beat for serviceName. The
// staleness threshold is typically 3x the heartbeat interval. Returns
// nil, nil when no beat has been recorded yet.
func LatestHeartbeat(ctx context.Context, db *sql.DB, serviceName string, staleAfter time.Duration) (*HeartbeatStatus, error) {
	row := db.QueryRowContext(ctx, `
		SELECT service_name, hostname, pid, timestamp,
		       goroutines_count, memory_alloc_mb, gc_count
		FROM service_heartbeats
		WHERE service_name = ?
		ORDER BY timestamp DESC LIMIT 1`, serviceName)

	var hs HeartbeatStatus
	var ts int64
	err := row.Scan(&hs.ServiceName, &hs.Hostname, &hs.PID, &ts,
		&hs.GoroutinesCount, &hs.MemoryAllocMB, &hs.GCCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("observability: query latest heartbeat: %w", err)
	}
	hs.Timestamp = time.Unix(ts, 0)
	hs.Alive = time.Since(hs.Timestamp) <= staleAfter
	return &hs, nil
}
