package output

// UnsafeShuffle resets n to an uninitialized node without closing anything.
//
// The handles and children n held are dropped on the floor: unless another
// node still references them they are leaked until the backend closes. The
// store's name index keeps pointing at n, so the store must not be used for
// n's name afterwards.
func UnsafeShuffle(n *Node) {
	*n = Node{name: n.name, detach: n.detach}
}

// UnsafeSwap exchanges the contents of a and b: kind, handles, children,
// descriptor and closed state. Names and parents stay with their position
// in the tree, and the children's parent names are rewritten to follow.
//
// The store's name index and append cursors are not updated. Pushing to
// either name afterwards writes through the swapped handles, and nothing
// guards against swapping a dataset into a group's place.
func UnsafeSwap(a, b *Node) {
	aName, aParent, aDetach := a.name, a.parent, a.detach
	bName, bParent, bDetach := b.name, b.parent, b.detach
	*a, *b = *b, *a
	a.name, a.parent, a.detach = aName, aParent, aDetach
	b.name, b.parent, b.detach = bName, bParent, bDetach
	for _, c := range a.children {
		a.adopt(c)
	}
	for _, c := range b.children {
		b.adopt(c)
	}
}
