// Package memory provides an in-memory output backend.
//
// Every backend operation is appended to a trace, which makes the backend
// useful for dry runs and for asserting the order in which the output tree
// creates and closes its handles.
//
// This package registers the "memory" backend:
//
//	import _ "github.com/leapstack-labs/galotfa/internal/output/memory"
package memory

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/galotfa/internal/output"
	"github.com/leapstack-labs/galotfa/pkg/core"
)

func init() {
	output.RegisterBackend("memory", func(l *slog.Logger) core.Backend { return New(l) })
}

// Op is a traced backend operation.
type Op string

// Traced operations.
const (
	OpOpen      Op = "open"
	OpGroup     Op = "group"
	OpDataset   Op = "dataset"
	OpAttribute Op = "attribute"
	OpExtend    Op = "extend"
	OpWrite     Op = "write"
	OpClose     Op = "close"
)

// Event is one entry of the trace. ID is the resource id, for example
// "/model/step", "/model/step#layout" or "/model/step#space".
type Event struct {
	Op Op
	ID string
}

// Backend keeps the whole container in memory.
type Backend struct {
	logger *slog.Logger

	mu       sync.Mutex
	trace    []Event
	path     string
	datasets map[string]*Dataset
	attrs    map[string]map[string]any
	closed   map[string]int
}

// New creates an empty memory backend.
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Backend{
		logger:   logger,
		datasets: make(map[string]*Dataset),
		attrs:    make(map[string]map[string]any),
		closed:   make(map[string]int),
	}
}

// Name returns "memory".
func (b *Backend) Name() string { return "memory" }

// Extension returns "mem".
func (b *Backend) Extension() string { return "mem" }

func (b *Backend) record(op Op, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trace = append(b.trace, Event{Op: op, ID: id})
}

// Trace returns a copy of every traced operation so far.
func (b *Backend) Trace() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.trace))
	copy(out, b.trace)
	return out
}

// Closes returns the ids of closed resources in closing order.
func (b *Backend) Closes() []string {
	var ids []string
	for _, e := range b.Trace() {
		if e.Op == OpClose {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// Path returns the container path passed to OpenContainer.
func (b *Backend) Path() string { return b.path }

// Dataset returns the dataset stored under name.
func (b *Backend) Dataset(name string) (*Dataset, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.datasets[name]
	return d, ok
}

// Attribute returns the value attached to node under attr.
func (b *Backend) Attribute(node, attr string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.attrs[node][attr]
	return v, ok
}

// OpenContainer creates the in-memory container. path is only recorded.
func (b *Backend) OpenContainer(path string) (core.Resource, error) {
	b.path = path
	b.record(OpOpen, output.RootName)
	return &handle{b: b, id: output.RootName}, nil
}

// CreateGroup creates a group handle.
func (b *Backend) CreateGroup(parent core.Resource, name string) (core.Resource, error) {
	if err := b.live(parent); err != nil {
		return nil, err
	}
	b.record(OpGroup, name)
	return &handle{b: b, id: name}, nil
}

// CreateDataset creates an empty dataset with its layout and space handles.
func (b *Backend) CreateDataset(parent core.Resource, name string, layout core.DatasetLayout) (core.DatasetResources, error) {
	if err := b.live(parent); err != nil {
		return core.DatasetResources{}, err
	}
	data, err := makeSlice(layout.Descriptor.Type, 0)
	if err != nil {
		return core.DatasetResources{}, err
	}
	d := &Dataset{
		handle: handle{b: b, id: name},
		desc:   layout.Descriptor.Clone(),
		chunk:  append([]uint64(nil), layout.Chunk...),
		data:   data,
	}
	b.mu.Lock()
	b.datasets[name] = d
	b.mu.Unlock()
	b.record(OpDataset, name)
	return core.DatasetResources{
		Dataset: d,
		Layout:  &handle{b: b, id: name + "#layout"},
		Space:   &handle{b: b, id: name + "#space"},
	}, nil
}

// SetAttribute stores value under target's id.
func (b *Backend) SetAttribute(target core.Resource, name string, _ core.RecordDescriptor, value any) error {
	if err := b.live(target); err != nil {
		return err
	}
	b.mu.Lock()
	if b.attrs[target.ID()] == nil {
		b.attrs[target.ID()] = make(map[string]any)
	}
	b.attrs[target.ID()][name] = value
	b.mu.Unlock()
	b.record(OpAttribute, target.ID()+"@"+name)
	return nil
}

// Close is a no-op: the data stays readable for inspection.
func (b *Backend) Close() error {
	b.logger.Debug("memory backend closed", slog.Int("operations", len(b.Trace())))
	return nil
}

func (b *Backend) live(r core.Resource) error {
	if r == nil {
		return fmt.Errorf("memory backend: nil resource: %w", core.ErrNodeClosed)
	}
	h, ok := r.(interface{ isClosed() bool })
	if !ok {
		return fmt.Errorf("resource %T does not belong to the memory backend", r)
	}
	if h.isClosed() {
		return fmt.Errorf("resource %s: %w", r.ID(), core.ErrNodeClosed)
	}
	return nil
}

type handle struct {
	b      *Backend
	id     string
	closed bool
}

func (h *handle) ID() string { return h.id }

func (h *handle) isClosed() bool { return h.closed }

// Close records the close and fails on a second close of the same handle.
func (h *handle) Close() error {
	h.b.record(OpClose, h.id)
	if h.closed {
		return fmt.Errorf("resource %s closed twice", h.id)
	}
	h.closed = true
	return nil
}
