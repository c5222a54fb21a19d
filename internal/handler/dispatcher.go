package handler

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Listener receives notifications published on a stream category.
type Listener func(ctx context.Context, n Notification, args ...any)

// Stream is the host runtime's notification feed.
type Stream interface {
	// Subscribe attaches listener to category. Once listeners are removed by
	// the stream after their first delivery. The returned func detaches.
	Subscribe(category string, once bool, listener Listener) func()
	UnsubscribeAll(category string)
}

// Observer receives load and dispatch outcomes, typically for metrics.
type Observer interface {
	Loaded(kind Kind, report LoadReport)
	Dispatched(kind Kind, outcome string)
}

// Dispatcher routes stream notifications of one kind to the registry.
type Dispatcher struct {
	kind     Kind
	loader   *Loader
	registry *Registry
	stream   Stream
	guard    *Guard
	logger   *zap.Logger
	observer Observer

	mu       sync.Mutex
	attached []string
}

func NewDispatcher(loader *Loader, stream Stream, guard *Guard, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if guard == nil {
		guard = NewGuard(logger)
	}
	return &Dispatcher{
		kind:     loader.Kind(),
		loader:   loader,
		registry: loader.Registry(),
		stream:   stream,
		guard:    guard,
		logger:   logger.With(zap.String("kind", loader.Kind().String())),
	}
}

func (d *Dispatcher) Kind() Kind {
	return d.kind
}

func (d *Dispatcher) Loader() *Loader {
	return d.loader
}

func (d *Dispatcher) SetObserver(observer Observer) {
	d.observer = observer
	d.loader.SetObserver(observer)
}

// Reload runs a load cycle. Event listeners are detached and attached again
// for the new definitions, so listener counts stay constant across reloads
// of an unchanged directory. The single category listener of an interaction
// kind stays attached throughout: it resolves against the registry on every
// delivery and sees the swapped table.
func (d *Dispatcher) Reload(dir string) (LoadReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.kind != KindEvent && len(d.attached) > 0 {
		return d.loader.Load(dir)
	}
	d.detachLocked()
	report, err := d.loader.Load(dir)
	d.attachLocked()
	return report, err
}

// Start attaches listeners for the current registry contents.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detachLocked()
	d.attachLocked()
}

func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detachLocked()
}

func (d *Dispatcher) attachLocked() {
	if d.kind != KindEvent {
		d.stream.Subscribe(d.kind.Category(), false, func(ctx context.Context, n Notification, args ...any) {
			d.Dispatch(ctx, n, args...)
		})
		d.attached = append(d.attached, d.kind.Category())
		return
	}

	seen := make(map[string]struct{})
	for _, def := range d.registry.All() {
		def := def
		d.stream.Subscribe(def.Identifier, def.Descriptor.Once, func(ctx context.Context, n Notification, args ...any) {
			d.deliver(ctx, def, n, args...)
		})
		if _, ok := seen[def.Identifier]; !ok {
			seen[def.Identifier] = struct{}{}
			d.attached = append(d.attached, def.Identifier)
		}
	}
}

func (d *Dispatcher) detachLocked() {
	for _, category := range d.attached {
		d.stream.UnsubscribeAll(category)
	}
	d.attached = nil
}

// Dispatch resolves n against the registry and runs the match. A miss is
// logged and dropped without any reply.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification, args ...any) Outcome {
	key := RouteKey(n.Identifier())
	def, ok := d.registry.Get(key)
	if !ok {
		d.logger.Warn("no handler for notification",
			zap.String("identifier", n.Identifier()),
			zap.Error(ErrDispatchMiss),
		)
		if d.observer != nil {
			d.observer.Dispatched(d.kind, Missed.String())
		}
		return Missed
	}
	return d.deliver(ctx, def, n, args...)
}

func (d *Dispatcher) deliver(ctx context.Context, def *Definition, n Notification, args ...any) Outcome {
	outcome := d.guard.Run(ctx, def, n, args...)
	if d.observer != nil {
		d.observer.Dispatched(d.kind, outcome.String())
	}
	return outcome
}
