package handler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

type Failure struct {
	File   string
	Reason string
}

// LoadReport summarizes one load cycle. Builtin definitions count as units
// with File set to "builtin:<id>".
type LoadReport struct {
	Kind        Kind
	TotalFiles  int
	LoadedCount int
	FailedCount int
	Failures    []Failure
}

// Loader rebuilds a Registry from the definitions registered in code plus
// any definition files found in a directory.
type Loader struct {
	kind     Kind
	registry *Registry
	logger   *zap.Logger
	observer Observer

	mu       sync.Mutex
	builtins []*Definition
	actions  map[string]Invoke
}

func NewLoader(kind Kind, registry *Registry, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		kind:     kind,
		registry: registry,
		logger:   logger.With(zap.String("kind", kind.String())),
		actions:  make(map[string]Invoke),
	}
}

func (l *Loader) Kind() Kind {
	return l.kind
}

func (l *Loader) Registry() *Registry {
	return l.registry
}

// SetObserver installs a sink for load outcomes.
func (l *Loader) SetObserver(observer Observer) {
	l.observer = observer
}

// Register queues definitions for every subsequent load cycle. Each one is
// also bound as an action under its identifier so files can alias it.
func (l *Loader) Register(defs ...*Definition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, def := range defs {
		l.builtins = append(l.builtins, def)
		if def != nil && def.Identifier != "" && def.Invoke != nil {
			if _, exists := l.actions[def.Identifier]; !exists {
				l.actions[def.Identifier] = def.Invoke
			}
		}
	}
}

// Bind names a compiled action that definition files may reference.
func (l *Loader) Bind(action string, invoke Invoke) {
	l.mu.Lock()
	l.actions[action] = invoke
	l.mu.Unlock()
}

// Load runs a full load cycle and swaps the result into the registry. An
// empty dir skips the file scan; a missing dir is created.
func (l *Loader) Load(dir string) (LoadReport, error) {
	l.mu.Lock()
	builtins := make([]*Definition, len(l.builtins))
	copy(builtins, l.builtins)
	actions := make(map[string]Invoke, len(l.actions))
	for name, invoke := range l.actions {
		actions[name] = invoke
	}
	l.mu.Unlock()

	report := LoadReport{Kind: l.kind}
	next := newTable(len(builtins))

	for _, def := range builtins {
		source := "builtin"
		if def != nil {
			source = "builtin:" + def.Identifier
		}
		report.TotalFiles++
		l.admit(next, &report, source, def)
	}

	files, err := l.scan(dir)
	if err != nil {
		return report, fmt.Errorf("load %s handlers: %w", l.kind, err)
	}
	for _, path := range files {
		report.TotalFiles++
		m, err := readManifest(path)
		if err != nil {
			l.fail(&report, path, fmt.Errorf("%w: %v", ErrValidation, err))
			continue
		}
		def, err := m.definition(l.kind, actions, path)
		if err != nil {
			l.fail(&report, path, err)
			continue
		}
		l.admit(next, &report, path, def)
	}

	l.registry.swap(next)
	if l.observer != nil {
		l.observer.Loaded(l.kind, report)
	}
	l.logger.Info("handlers loaded",
		zap.String("dir", dir),
		zap.Int("total", report.TotalFiles),
		zap.Int("loaded", report.LoadedCount),
		zap.Int("failed", report.FailedCount),
	)

	if l.kind.Mandatory() && report.LoadedCount == 0 {
		return report, fmt.Errorf("load %s handlers from %q: %w", l.kind, dir, ErrLoadExhausted)
	}
	return report, nil
}

func (l *Loader) admit(next *table, report *LoadReport, source string, def *Definition) {
	if err := def.Validate(l.kind); err != nil {
		l.fail(report, source, err)
		return
	}
	entry := *def
	entry.Kind = l.kind
	entry.Source = source
	if err := next.insert(&entry); err != nil {
		l.fail(report, source, err)
		return
	}
	report.LoadedCount++
}

func (l *Loader) fail(report *LoadReport, source string, err error) {
	report.FailedCount++
	report.Failures = append(report.Failures, Failure{File: source, Reason: err.Error()})
	l.logger.Warn("handler rejected", zap.String("source", source), zap.Error(err))
}

// scan lists definition files one level deep, in name order.
func (l *Loader) scan(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		l.logger.Info("handler directory created", zap.String("dir", dir))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !isManifest(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}
