package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Sources names the registry's YAML inputs. Both are optional: a registry
// can run on code drivers alone.
type Sources struct {
	// BasePack is the path of the primary provider pack.
	BasePack string
	// OverlayDir holds extra *.yml / *.yaml packs, loaded in filename
	// order after the base pack. A later pack overrides earlier YAML
	// descriptors of the same name.
	OverlayDir string
}

// Snapshot is one immutable view of the merged provider set. Readers keep
// whatever snapshot they started with across reloads.
type Snapshot struct {
	ordered []Provider
	byName  map[string]Provider
}

// Providers returns the stable ordered list: code drivers in registration
// order, then YAML providers in file+document order.
func (s *Snapshot) Providers() []Provider { return s.ordered }

// Len returns the provider count.
func (s *Snapshot) Len() int { return len(s.ordered) }

// Lookup returns the provider with the given name.
func (s *Snapshot) Lookup(name string) (Provider, bool) {
	p, ok := s.byName[name]
	return p, ok
}

// Names returns the provider names in snapshot order.
func (s *Snapshot) Names() []string {
	out := make([]string, len(s.ordered))
	for i, p := range s.ordered {
		out[i] = p.Name()
	}
	return out
}

// Select resolves a requested subset in snapshot order. Unknown names are
// silently dropped; an empty request selects every provider.
func (s *Snapshot) Select(names []string) []Provider {
	if len(names) == 0 {
		return s.ordered
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = true
	}
	var out []Provider
	for _, p := range s.ordered {
		if want[p.Name()] {
			out = append(out, p)
		}
	}
	return out
}

// Registry merges code drivers and YAML packs into an atomically replaced
// snapshot. Reload is serialized; reads are lock-free.
type Registry struct {
	sources Sources
	env     *Env
	logger  *slog.Logger

	mu      sync.Mutex
	drivers []Provider

	snap atomic.Pointer[Snapshot]
}

// NewRegistry builds an empty registry. Call RegisterDriver for each code
// driver, then Reload to publish the first snapshot.
func NewRegistry(sources Sources, env *Env, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{sources: sources, env: env, logger: logger}
	r.snap.Store(&Snapshot{byName: map[string]Provider{}})
	return r
}

// RegisterDriver appends a code driver. Drivers registered after a Reload
// appear once Reload runs again.
func (r *Registry) RegisterDriver(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers = append(r.drivers, p)
}

// Snapshot returns the current published snapshot.
func (r *Registry) Snapshot() *Snapshot { return r.snap.Load() }

// Reload re-reads every source and swaps in a fresh snapshot. In-flight
// readers keep the snapshot they already hold. A source read error leaves
// the old snapshot published.
func (r *Registry) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	descs, err := r.loadPacks()
	if err != nil {
		return err
	}

	byName := make(map[string]Provider, len(r.drivers)+len(descs))
	ordered := make([]Provider, 0, len(r.drivers)+len(descs))
	for _, d := range r.drivers {
		if _, dup := byName[d.Name()]; dup {
			r.logger.Warn("provider: duplicate code driver ignored", "name", d.Name())
			continue
		}
		byName[d.Name()] = d
		ordered = append(ordered, d)
	}

	// YAML merge: a later pack replaces an earlier YAML descriptor in
	// place; a code driver always wins over YAML.
	yamlPos := map[string]int{}
	for _, desc := range descs {
		if _, isDriver := byName[desc.Name]; isDriver && !isYAML(byName[desc.Name]) {
			r.logger.Info("provider: code driver overrides pack descriptor", "name", desc.Name)
			continue
		}
		p := NewPatternProvider(desc, r.env)
		if pos, seen := yamlPos[desc.Name]; seen {
			ordered[pos] = p
		} else {
			yamlPos[desc.Name] = len(ordered)
			ordered = append(ordered, p)
		}
		byName[desc.Name] = p
	}

	r.snap.Store(&Snapshot{ordered: ordered, byName: byName})
	r.logger.Info("provider: registry loaded",
		"providers", len(ordered), "drivers", len(r.drivers), "packs", len(descs))
	return nil
}

func isYAML(p Provider) bool {
	_, ok := p.(*PatternProvider)
	return ok
}

func (r *Registry) loadPacks() ([]Descriptor, error) {
	var out []Descriptor
	if r.sources.BasePack != "" {
		descs, err := ParsePackFile(r.sources.BasePack, r.logger)
		if err != nil {
			return nil, err
		}
		out = append(out, descs...)
	}
	for _, path := range r.overlayFiles() {
		descs, err := ParsePackFile(path, r.logger)
		if err != nil {
			r.logger.Warn("provider: overlay pack skipped", "path", path, "error", err)
			continue
		}
		out = append(out, descs...)
	}
	return out, nil
}

func (r *Registry) overlayFiles() []string {
	if r.sources.OverlayDir == "" {
		return nil
	}
	entries, err := os.ReadDir(r.sources.OverlayDir)
	if err != nil {
		r.logger.Warn("provider: overlay dir unreadable", "dir", r.sources.OverlayDir, "error", err)
		return nil
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yml", ".yaml":
			files = append(files, filepath.Join(r.sources.OverlayDir, e.Name()))
		}
	}
	sort.Strings(files)
	return files
}

// Watch polls the source files and reloads when any of them changes.
// It blocks until ctx is cancelled.
func (r *Registry) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	last := r.sourceFingerprint()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("provider: watching packs", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("provider: watch stopped")
			return
		case <-ticker.C:
			cur := r.sourceFingerprint()
			if cur == last {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.Error("provider: reload failed", "error", err)
				continue
			}
			last = cur
		}
	}
}

// sourceFingerprint folds path, size, and mtime of every source file into
// one comparable string.
func (r *Registry) sourceFingerprint() string {
	var b strings.Builder
	stat := func(path string) {
		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(&b, "%s:missing;", path)
			return
		}
		fmt.Fprintf(&b, "%s:%d:%d;", path, info.Size(), info.ModTime().UnixNano())
	}
	if r.sources.BasePack != "" {
		stat(r.sources.BasePack)
	}
	for _, f := range r.overlayFiles() {
		stat(f)
	}
	return b.String()
}
