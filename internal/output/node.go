package output

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

// Node is one element of the output tree: the container root, a group or a
// dataset. A node exclusively owns its backend handles and its children;
// the parent is recorded by name and is never used to close anything.
// Closing a node unlinks it from its parent's children.
type Node struct {
	kind     core.NodeKind
	name     string
	parent   string
	children []*Node
	detach   func()

	res     core.Resource
	dataset core.Dataset
	layout  core.Resource
	space   core.Resource

	desc     *core.RecordDescriptor
	extShape []uint64

	closed bool
}

// NewNode creates a container, group or dataset node over res and makes it
// a child of parent. The root container is the only node created with a nil
// parent. Dataset nodes require res to implement core.Dataset.
func NewNode(parent *Node, name string, res core.Resource, kind core.NodeKind) (*Node, error) {
	if res == nil {
		return nil, fmt.Errorf("node %q: resource is required", name)
	}
	n := &Node{kind: kind, name: name, res: res}

	switch kind {
	case core.KindContainer:
		if parent != nil {
			return nil, fmt.Errorf("node %q: a container must be the root of its tree", name)
		}
		return n, nil
	case core.KindGroup:
	case core.KindDataset:
		ds, ok := res.(core.Dataset)
		if !ok {
			return nil, fmt.Errorf("node %q: resource %s is not a dataset", name, res.ID())
		}
		n.dataset = ds
	default:
		return nil, fmt.Errorf("node %q: cannot create a node of kind %s", name, kind)
	}

	if parent == nil {
		return nil, fmt.Errorf("node %q: only the container may be parentless", name)
	}
	if parent.closed {
		return nil, fmt.Errorf("parent %q: %w", parent.name, core.ErrNodeClosed)
	}
	if parent.kind == core.KindDataset {
		return nil, fmt.Errorf("parent %q: %w", parent.name, core.ErrNoChildren)
	}
	parent.children = append(parent.children, n)
	parent.adopt(n)
	return n, nil
}

// newDatasetNode creates a dataset node that also owns the layout and space
// handles created with it.
func newDatasetNode(parent *Node, name string, dr core.DatasetResources) (*Node, error) {
	if dr.Dataset == nil {
		return nil, fmt.Errorf("node %q: backend returned no dataset handle", name)
	}
	n, err := NewNode(parent, name, dr.Dataset, core.KindDataset)
	if err != nil {
		return nil, err
	}
	n.layout = dr.Layout
	n.space = dr.Space
	return n, nil
}

// adopt points c's parent name and detach hook at n. It does not add c to
// n.children.
func (n *Node) adopt(c *Node) {
	c.parent = n.name
	c.detach = func() { n.removeChild(c) }
}

func (n *Node) removeChild(c *Node) {
	for i, cur := range n.children {
		if cur == c {
			n.children = append(n.children[:i:i], n.children[i+1:]...)
			return
		}
	}
}

// Kind returns the node kind.
func (n *Node) Kind() core.NodeKind { return n.kind }

// Name returns the full slash path of the node.
func (n *Node) Name() string { return n.name }

// Parent returns the name of the parent node, empty for the root.
func (n *Node) Parent() string { return n.parent }

// Closed reports whether Close has been called.
func (n *Node) Closed() bool { return n.closed }

// Resource returns the node's primary backend handle.
func (n *Node) Resource() core.Resource { return n.res }

// Children returns the child nodes in creation order.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// ExtensionShape returns {1, dims...} for a dataset with a descriptor, nil otherwise.
func (n *Node) ExtensionShape() []uint64 {
	if n.extShape == nil {
		return nil
	}
	out := make([]uint64, len(n.extShape))
	copy(out, n.extShape)
	return out
}

// SetRecordDescriptor attaches the record schema of a dataset. A descriptor
// can be attached once; later attempts fail and leave the first in place.
func (n *Node) SetRecordDescriptor(d core.RecordDescriptor) error {
	if n.closed {
		return fmt.Errorf("node %q: %w", n.name, core.ErrNodeClosed)
	}
	if n.kind != core.KindDataset {
		return fmt.Errorf("node %q is a %s: %w", n.name, n.kind, core.ErrNotDataset)
	}
	if n.desc != nil {
		return fmt.Errorf("node %q has %s: %w", n.name, n.desc, core.ErrDescriptorSet)
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("node %q: %w", n.name, err)
	}
	c := d.Clone()
	n.desc = &c
	n.extShape = c.ExtensionShape()
	return nil
}

// RecordDescriptor returns a copy of the attached record schema.
func (n *Node) RecordDescriptor() (core.RecordDescriptor, error) {
	if n.closed {
		return core.RecordDescriptor{}, fmt.Errorf("node %q: %w", n.name, core.ErrNodeClosed)
	}
	if n.desc == nil {
		return core.RecordDescriptor{}, fmt.Errorf("node %q: %w", n.name, core.ErrNoDescriptor)
	}
	return n.desc.Clone(), nil
}

// Close closes the subtree: children first in creation order, then the
// node's own space, layout and primary handles. Closing twice is a no-op.
// Every handle is closed even if an earlier one fails; the errors are joined.
// A closed node no longer appears among its parent's children.
func (n *Node) Close() error {
	if n.closed {
		return nil
	}
	var errs []error
	children := n.children
	n.children = nil
	for _, c := range children {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	for _, r := range []core.Resource{n.space, n.layout, n.res} {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s of %q: %w", r.ID(), n.name, err))
		}
	}
	n.space, n.layout, n.res, n.dataset = nil, nil, nil, nil
	if n.detach != nil {
		n.detach()
		n.detach = nil
	}
	n.parent = ""
	n.closed = true
	return errors.Join(errs...)
}
