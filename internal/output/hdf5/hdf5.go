//go:build hdf5

// Package hdf5 provides the HDF5 output backend over the HDF5 C library
// (gonum.org/v1/hdf5, cgo). Build with -tags hdf5.
//
// Every dataset is chunked with an unlimited leading axis; a push resizes
// the dataset and writes the new hyperslab. Each dataset node owns three
// handles: the dataset, its creation property list (chunk layout) and its
// file dataspace.
//
// This package registers the "hdf5" backend:
//
//	import _ "github.com/leapstack-labs/galotfa/internal/output/hdf5"
package hdf5

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/hdf5"

	"github.com/leapstack-labs/galotfa/internal/output"
	"github.com/leapstack-labs/galotfa/pkg/core"
)

func init() {
	output.RegisterBackend("hdf5", func(l *slog.Logger) core.Backend { return New(l) })
}

// Backend writes an HDF5 file.
type Backend struct {
	logger *slog.Logger
}

// New creates an HDF5 backend.
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Backend{logger: logger}
}

// Name returns "hdf5".
func (b *Backend) Name() string { return "hdf5" }

// Extension returns "hdf5".
func (b *Backend) Extension() string { return "hdf5" }

// OpenContainer creates (truncating) the file at path.
func (b *Backend) OpenContainer(path string) (core.Resource, error) {
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, fmt.Errorf("failed to create hdf5 file %s: %w", path, err)
	}
	return &file{id: "/", f: f}, nil
}

// CreateGroup creates a group at the absolute path name.
func (b *Backend) CreateGroup(parent core.Resource, name string) (core.Resource, error) {
	fg, err := commonFG(parent)
	if err != nil {
		return nil, err
	}
	g, err := fg.CreateGroup(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create group %s: %w", name, err)
	}
	return &group{id: name, g: g}, nil
}

// CreateDataset creates a chunked dataset with an unlimited leading axis.
func (b *Backend) CreateDataset(parent core.Resource, name string, layout core.DatasetLayout) (core.DatasetResources, error) {
	fg, err := commonFG(parent)
	if err != nil {
		return core.DatasetResources{}, err
	}
	dtype, err := nativeType(layout.Descriptor.Type)
	if err != nil {
		return core.DatasetResources{}, err
	}

	dims := toUint(layout.Descriptor.Shape(0))
	maxDims := toUint(layout.Descriptor.Shape(0))
	maxDims[0] = hdf5.S_UNLIMITED
	space, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return core.DatasetResources{}, fmt.Errorf("failed to create dataspace for %s: %w", name, err)
	}

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		_ = space.Close()
		return core.DatasetResources{}, fmt.Errorf("failed to create property list for %s: %w", name, err)
	}
	if err := plist.SetChunk(toUint(layout.Chunk)); err != nil {
		_ = plist.Close()
		_ = space.Close()
		return core.DatasetResources{}, fmt.Errorf("failed to set chunk %v on %s: %w", layout.Chunk, name, err)
	}

	ds, err := fg.CreateDatasetWith(name, dtype, space, plist)
	if err != nil {
		_ = plist.Close()
		_ = space.Close()
		return core.DatasetResources{}, fmt.Errorf("failed to create dataset %s: %w", name, err)
	}

	b.logger.Debug("hdf5 dataset created", slog.String("name", name), slog.Any("chunk", layout.Chunk))
	return core.DatasetResources{
		Dataset: &dataset{id: name, ds: ds, desc: layout.Descriptor.Clone(), dtype: dtype},
		Layout:  &propList{id: name + "#layout", p: plist},
		Space:   &dataspace{id: name + "#space", s: space},
	}, nil
}

type attributer interface {
	CreateAttribute(name string, dtype *hdf5.Datatype, dspace *hdf5.Dataspace) (*hdf5.Attribute, error)
}

// SetAttribute creates an attribute on a group or dataset and writes value.
func (b *Backend) SetAttribute(target core.Resource, name string, desc core.RecordDescriptor, value any) error {
	var obj any
	switch r := target.(type) {
	case *file:
		obj = r.f
	case *group:
		obj = r.g
	case *dataset:
		obj = r.ds
	default:
		return fmt.Errorf("resource %T does not belong to the hdf5 backend", target)
	}
	at, ok := obj.(attributer)
	if !ok {
		return fmt.Errorf("hdf5 objects of type %T cannot carry attributes", obj)
	}

	dtype, err := nativeType(desc.Type)
	if err != nil {
		return err
	}
	dims := toUint(desc.Dims)
	if len(dims) == 0 {
		dims = []uint{1}
	}
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return fmt.Errorf("failed to create attribute space: %w", err)
	}
	defer func() { _ = space.Close() }()

	attr, err := at.CreateAttribute(name, dtype, space)
	if err != nil {
		return fmt.Errorf("failed to create attribute %s on %s: %w", name, target.ID(), err)
	}
	defer func() { _ = attr.Close() }()

	if value == nil {
		return nil
	}
	if s, ok := value.([]string); ok {
		// variable-length strings are written one scalar at a time
		if len(s) != 1 {
			return fmt.Errorf("%w: only scalar string attributes are supported", core.ErrShapeMismatch)
		}
		value = &s[0]
	}
	if err := attr.Write(value, dtype); err != nil {
		return fmt.Errorf("failed to write attribute %s on %s: %w", name, target.ID(), err)
	}
	return nil
}

// Close has nothing to release: the file closes with the root node.
func (b *Backend) Close() error { return nil }

func commonFG(r core.Resource) (*hdf5.CommonFG, error) {
	switch p := r.(type) {
	case *file:
		if p.f == nil {
			return nil, fmt.Errorf("file: %w", core.ErrNodeClosed)
		}
		return &p.f.CommonFG, nil
	case *group:
		if p.g == nil {
			return nil, fmt.Errorf("group %s: %w", p.id, core.ErrNodeClosed)
		}
		return &p.g.CommonFG, nil
	default:
		return nil, fmt.Errorf("resource %T cannot hold children", r)
	}
}

func nativeType(t core.ElementType) (*hdf5.Datatype, error) {
	switch t {
	case core.TypeInt8:
		return hdf5.T_NATIVE_INT8, nil
	case core.TypeUint8:
		return hdf5.T_NATIVE_UINT8, nil
	case core.TypeInt32:
		return hdf5.T_NATIVE_INT32, nil
	case core.TypeUint32:
		return hdf5.T_NATIVE_UINT32, nil
	case core.TypeInt64:
		return hdf5.T_NATIVE_INT64, nil
	case core.TypeUint64:
		return hdf5.T_NATIVE_UINT64, nil
	case core.TypeFloat32:
		return hdf5.T_NATIVE_FLOAT, nil
	case core.TypeFloat64:
		return hdf5.T_NATIVE_DOUBLE, nil
	case core.TypeString:
		return hdf5.T_GO_STRING, nil
	default:
		return nil, fmt.Errorf("%w: no hdf5 type for %s", core.ErrTypeMismatch, t)
	}
}

func toUint(v []uint64) []uint {
	out := make([]uint, len(v))
	for i, x := range v {
		out[i] = uint(x)
	}
	return out
}
