package core

import "errors"

// Configuration errors: the operation is rejected before anything is mutated.
var (
	// ErrExists is returned when a node name is already registered.
	ErrExists = errors.New("node already exists")
	// ErrNotFound is returned when a node or dataset name is unknown.
	ErrNotFound = errors.New("node not found")
	// ErrNotDataset is returned when a dataset-only operation targets a group or container.
	ErrNotDataset = errors.New("node is not a dataset")
	// ErrNoChildren is returned when a node is created under a dataset.
	ErrNoChildren = errors.New("datasets cannot have children")
	// ErrInvalidName is returned for node names that are not clean absolute slash paths.
	ErrInvalidName = errors.New("invalid node name")
	// ErrDescriptorSet is returned when a record descriptor is attached twice.
	ErrDescriptorSet = errors.New("record descriptor already attached")
	// ErrNoDescriptor is returned when a dataset has no record descriptor.
	ErrNoDescriptor = errors.New("record descriptor not attached")
	// ErrTypeMismatch is returned when a buffer's element type differs from the descriptor.
	ErrTypeMismatch = errors.New("element type mismatch")
	// ErrShapeMismatch is returned when a buffer length does not fit the record shape.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrInvalidBins is returned for a BinSpec with upper <= lower or a zero count.
	ErrInvalidBins = errors.New("invalid bin specification")
	// ErrUnsupportedMethod is returned for a reduction method outside the closed set.
	ErrUnsupportedMethod = errors.New("unsupported statistic method")
)

// Resource misuse errors.
var (
	// ErrNodeClosed is returned by any operation on a closed node or store.
	ErrNodeClosed = errors.New("node is closed")
)

// Collective protocol errors.
var (
	// ErrCollectiveMismatch is returned when ranks disagree on the shape or
	// parameters of a collective call and the mismatch could be detected.
	ErrCollectiveMismatch = errors.New("collective participation mismatch")
)
