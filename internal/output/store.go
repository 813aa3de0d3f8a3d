package output

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

// RootName is the name of the container node.
const RootName = "/"

// DefaultChunk is the leading chunk extent used when CreateDataset gets 0.
const DefaultChunk = 1000

// Store is the output store: it owns the node tree, indexes it by name and
// tracks one append cursor per dataset.
type Store struct {
	path      string
	backend   core.Backend
	logger    *slog.Logger
	sessionID string
	now       func() time.Time

	root    *Node
	nodes   map[string]*Node
	cursors map[string]uint64
	closed  bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger (discard by default).
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSessionID overrides the generated session id written on the root.
func WithSessionID(id string) Option {
	return func(s *Store) { s.sessionID = id }
}

// WithClock overrides the clock used for the created_at attribute.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens or creates the container at path and registers the root node.
// The root is tagged with session_id and created_at attributes.
func Open(path string, backend core.Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	s := &Store{
		path:    path,
		backend: backend,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
		nodes:   make(map[string]*Node),
		cursors: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessionID == "" {
		s.sessionID = uuid.New().String()
	}

	res, err := backend.OpenContainer(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s container %s: %w", backend.Name(), path, err)
	}
	root, err := NewNode(nil, RootName, res, core.KindContainer)
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	s.root = root
	s.nodes[RootName] = root

	attrs := []struct {
		name  string
		value string
	}{
		{"session_id", s.sessionID},
		{"created_at", s.now().UTC().Format(time.RFC3339)},
	}
	for _, a := range attrs {
		if err := s.AddAttribute(RootName, a.name, core.Scalar(core.TypeString), a.value); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	s.logger.Info("output store opened",
		slog.String("path", path),
		slog.String("backend", backend.Name()),
		slog.String("session_id", s.sessionID))
	return s, nil
}

// Path returns the backing container path.
func (s *Store) Path() string { return s.path }

// SessionID returns the session id written on the root node.
func (s *Store) SessionID() string { return s.sessionID }

// Backend returns the storage backend.
func (s *Store) Backend() core.Backend { return s.backend }

// Root returns the container node.
func (s *Store) Root() *Node { return s.root }

// Node looks up a node by name.
func (s *Store) Node(name string) (*Node, error) {
	if s.closed {
		return nil, fmt.Errorf("store %s: %w", s.path, core.ErrNodeClosed)
	}
	n, ok := s.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, core.ErrNotFound)
	}
	return n, nil
}

// Names returns every registered node name, sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.nodes))
	for name := range s.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cursor returns the number of records appended to a dataset so far.
func (s *Store) Cursor(dataset string) (uint64, error) {
	if s.closed {
		return 0, fmt.Errorf("store %s: %w", s.path, core.ErrNodeClosed)
	}
	c, ok := s.cursors[dataset]
	if !ok {
		return 0, fmt.Errorf("dataset %q: %w", dataset, core.ErrNotFound)
	}
	return c, nil
}

// parentFor validates a new node name and returns its parent node.
func (s *Store) parentFor(name string) (*Node, error) {
	if s.closed {
		return nil, fmt.Errorf("store %s: %w", s.path, core.ErrNodeClosed)
	}
	if name == RootName || !path.IsAbs(name) || path.Clean(name) != name {
		return nil, fmt.Errorf("%w: %q must be a clean absolute path below /", core.ErrInvalidName, name)
	}
	if _, ok := s.nodes[name]; ok {
		return nil, fmt.Errorf("%q: %w", name, core.ErrExists)
	}
	parentName := path.Dir(name)
	parent, ok := s.nodes[parentName]
	if !ok {
		return nil, fmt.Errorf("parent %q of %q: %w", parentName, name, core.ErrNotFound)
	}
	if parent.closed {
		return nil, fmt.Errorf("parent %q of %q: %w", parentName, name, core.ErrNodeClosed)
	}
	if parent.kind == core.KindDataset {
		return nil, fmt.Errorf("parent %q of %q: %w", parentName, name, core.ErrNoChildren)
	}
	return parent, nil
}

// CreateGroup creates a group. Its parent (path.Dir(name)) must exist and
// the name must be unused.
func (s *Store) CreateGroup(name string) (*Node, error) {
	parent, err := s.parentFor(name)
	if err != nil {
		return nil, err
	}
	res, err := s.backend.CreateGroup(parent.res, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create group %q: %w", name, err)
	}
	n, err := NewNode(parent, name, res, core.KindGroup)
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	s.nodes[name] = n
	s.logger.Debug("group created", slog.String("name", name))
	return n, nil
}

// CreateDataset creates an empty dataset of records shaped by desc. The
// leading axis starts at 0 and is unbounded; storage is chunked as
// {chunk, dims...}. A chunk of 0 selects DefaultChunk.
func (s *Store) CreateDataset(name string, desc core.RecordDescriptor, chunk uint64) (*Node, error) {
	parent, err := s.parentFor(name)
	if err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("dataset %q: %w", name, err)
	}
	if desc.Type == core.TypeString {
		return nil, fmt.Errorf("dataset %q: %w: string records are not supported", name, core.ErrTypeMismatch)
	}
	if chunk == 0 {
		chunk = DefaultChunk
	}
	desc = desc.Clone()
	layout := core.DatasetLayout{
		Descriptor: desc,
		Chunk:      desc.ChunkShape(chunk),
		Extension:  desc.ExtensionShape(),
	}

	dr, err := s.backend.CreateDataset(parent.res, name, layout)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset %q: %w", name, err)
	}
	n, err := newDatasetNode(parent, name, dr)
	if err == nil {
		err = n.SetRecordDescriptor(desc)
	}
	if err != nil {
		for _, r := range []core.Resource{dr.Space, dr.Layout, dr.Dataset} {
			if r != nil {
				_ = r.Close()
			}
		}
		return nil, err
	}

	s.nodes[name] = n
	s.cursors[name] = 0
	s.logger.Debug("dataset created",
		slog.String("name", name),
		slog.String("descriptor", desc.String()),
		slog.Uint64("chunk", chunk))
	return n, nil
}

// AddAttribute attaches named metadata to a node. value may be a typed
// slice, a scalar (wrapped into a one-element slice) or nil for an
// attribute without a value. A non-nil value must match desc.
func (s *Store) AddAttribute(node, attr string, desc core.RecordDescriptor, value any) error {
	n, err := s.Node(node)
	if err != nil {
		return err
	}
	if n.closed {
		return fmt.Errorf("node %q: %w", node, core.ErrNodeClosed)
	}
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("attribute %q on %q: %w", attr, node, err)
	}
	value = attributeValue(value)
	if value != nil {
		if err := checkValue(desc, value); err != nil {
			return fmt.Errorf("attribute %q on %q: %w", attr, node, err)
		}
	}
	if err := s.backend.SetAttribute(n.res, attr, desc.Clone(), value); err != nil {
		return fmt.Errorf("failed to set attribute %q on %q: %w", attr, node, err)
	}
	return nil
}

// Push appends the first length elements of buf to a dataset as
// length/RecordLen whole records. The dataset grows along the leading axis
// only, and the append cursor advances by the number of records written.
// A rejected push mutates nothing.
func (s *Store) Push(dataset string, buf any, length int) error {
	n, err := s.Node(dataset)
	if err != nil {
		return err
	}
	if n.kind != core.KindDataset {
		return fmt.Errorf("%q is a %s: %w", dataset, n.kind, core.ErrNotDataset)
	}
	desc, err := n.RecordDescriptor()
	if err != nil {
		return err
	}

	t, size, ok := core.ElementTypeOf(buf)
	if !ok {
		return fmt.Errorf("push to %q: %w: unsupported buffer type %T", dataset, core.ErrTypeMismatch, buf)
	}
	if t != desc.Type {
		return fmt.Errorf("push to %q: %w: buffer is %s, dataset is %s", dataset, core.ErrTypeMismatch, t, desc.Type)
	}
	recLen := desc.RecordLen()
	if length <= 0 || length > size || uint64(length)%recLen != 0 {
		return fmt.Errorf("push to %q: %w: length %d (buffer %d) is not a positive multiple of the record length %d",
			dataset, core.ErrShapeMismatch, length, size, recLen)
	}

	records := uint64(length) / recLen
	cur := s.cursors[dataset]
	if err := n.dataset.Extend(cur + records); err != nil {
		return fmt.Errorf("failed to extend %q to %d records: %w", dataset, cur+records, err)
	}
	if err := n.dataset.WriteRecords(cur, records, head(buf, length)); err != nil {
		if rerr := n.dataset.Extend(cur); rerr != nil {
			err = errors.Join(err, fmt.Errorf("rolling back extent: %w", rerr))
		}
		return fmt.Errorf("failed to write %d records to %q at %d: %w", records, dataset, cur, err)
	}
	s.cursors[dataset] = cur + records
	return nil
}

// Close closes the whole tree, children before parents and the root last,
// then releases the backend. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.root != nil {
		if err := s.root.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close %s backend: %w", s.backend.Name(), err))
	}

	s.logger.Info("output store closed",
		slog.String("path", s.path),
		slog.Int("nodes", len(s.nodes)))
	return errors.Join(errs...)
}
