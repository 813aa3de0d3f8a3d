package core

// NodeKind classifies the nodes of the output tree.
type NodeKind int

// Node kinds. A tree has exactly one Container: its root.
const (
	KindUninitialized NodeKind = iota
	KindContainer
	KindGroup
	KindDataset
)

func (k NodeKind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindGroup:
		return "group"
	case KindDataset:
		return "dataset"
	default:
		return "uninitialized"
	}
}

// Resource is a handle on a storage backend object. Each resource is owned
// by exactly one output node, which closes it exactly once.
type Resource interface {
	// ID identifies the resource inside its backend (diagnostics only).
	ID() string
	// Close releases the backend object.
	Close() error
}

// Dataset is the resource of an appendable dataset.
type Dataset interface {
	Resource
	// Extend sets the leading axis length to leading records. The output
	// store only shrinks a dataset to roll back a failed write.
	Extend(leading uint64) error
	// WriteRecords writes count records from buf starting at record offset.
	// The region must lie inside the current extent.
	WriteRecords(offset, count uint64, buf any) error
}

// DatasetLayout is everything a backend needs to create a dataset.
type DatasetLayout struct {
	Descriptor RecordDescriptor
	// Chunk is the storage chunk shape {chunk, Dims...}.
	Chunk []uint64
	// Extension is the growth of one append {1, Dims...}.
	Extension []uint64
}

// DatasetResources groups the handles created together with a dataset: the
// dataset itself, its creation property (chunk layout) and its file space.
// Layout and Space may be nil for backends that do not expose them.
type DatasetResources struct {
	Dataset Dataset
	Layout  Resource
	Space   Resource
}

// Backend is a container format driver used by the output store.
//
// Implementations are used from a single goroutine (the collector rank);
// they need not be safe for concurrent use.
type Backend interface {
	// Name returns the registered backend name.
	Name() string
	// Extension returns the conventional file extension, without the dot.
	Extension() string
	// OpenContainer opens or creates the backing container.
	OpenContainer(path string) (Resource, error)
	// CreateGroup creates a group named name (a full slash path) under parent.
	CreateGroup(parent Resource, name string) (Resource, error)
	// CreateDataset creates an empty, leading-axis-unbounded dataset.
	CreateDataset(parent Resource, name string, layout DatasetLayout) (DatasetResources, error)
	// SetAttribute attaches named metadata to a node resource.
	SetAttribute(target Resource, name string, desc RecordDescriptor, value any) error
	// Close releases backend-wide state after the container is closed.
	Close() error
}
