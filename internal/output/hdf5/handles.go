//go:build hdf5

package hdf5

import (
	"fmt"

	"gonum.org/v1/hdf5"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

type file struct {
	id string
	f  *hdf5.File
}

func (h *file) ID() string { return h.id }

func (h *file) Close() error {
	if h.f == nil {
		return fmt.Errorf("file closed twice")
	}
	err := h.f.Close()
	h.f = nil
	return err
}

type group struct {
	id string
	g  *hdf5.Group
}

func (h *group) ID() string { return h.id }

func (h *group) Close() error {
	if h.g == nil {
		return fmt.Errorf("group %s closed twice", h.id)
	}
	err := h.g.Close()
	h.g = nil
	return err
}

type propList struct {
	id string
	p  *hdf5.PropList
}

func (h *propList) ID() string { return h.id }

func (h *propList) Close() error {
	if h.p == nil {
		return fmt.Errorf("property list %s closed twice", h.id)
	}
	err := h.p.Close()
	h.p = nil
	return err
}

type dataspace struct {
	id string
	s  *hdf5.Dataspace
}

func (h *dataspace) ID() string { return h.id }

func (h *dataspace) Close() error {
	if h.s == nil {
		return fmt.Errorf("dataspace %s closed twice", h.id)
	}
	err := h.s.Close()
	h.s = nil
	return err
}

type dataset struct {
	id    string
	ds    *hdf5.Dataset
	desc  core.RecordDescriptor
	dtype *hdf5.Datatype
}

func (h *dataset) ID() string { return h.id }

func (h *dataset) Close() error {
	if h.ds == nil {
		return fmt.Errorf("dataset %s closed twice", h.id)
	}
	err := h.ds.Close()
	h.ds = nil
	return err
}

// Extend resizes the leading axis.
func (h *dataset) Extend(leading uint64) error {
	if h.ds == nil {
		return fmt.Errorf("dataset %s: %w", h.id, core.ErrNodeClosed)
	}
	if err := h.ds.Resize(toUint(h.desc.Shape(leading))); err != nil {
		return fmt.Errorf("failed to resize %s: %w", h.id, err)
	}
	return nil
}

// WriteRecords selects [offset, offset+count) along the leading axis of the
// file space and writes buf through a matching memory space.
func (h *dataset) WriteRecords(offset, count uint64, buf any) error {
	if h.ds == nil {
		return fmt.Errorf("dataset %s: %w", h.id, core.ErrNodeClosed)
	}
	filespace := h.ds.Space()
	defer func() { _ = filespace.Close() }()

	start := make([]uint, h.desc.Rank())
	start[0] = uint(offset)
	region := toUint(h.desc.Shape(count))
	if err := filespace.SelectHyperslab(start, nil, region, nil); err != nil {
		return fmt.Errorf("failed to select records [%d, %d) of %s: %w", offset, offset+count, h.id, err)
	}

	memspace, err := hdf5.CreateSimpleDataspace(region, nil)
	if err != nil {
		return fmt.Errorf("failed to create memory space: %w", err)
	}
	defer func() { _ = memspace.Close() }()

	if err := h.ds.WriteSubset(buf, memspace, filespace); err != nil {
		return fmt.Errorf("failed to write records to %s: %w", h.id, err)
	}
	return nil
}
