// Package output implements the hierarchical append-only output store.
//
// A Store owns a tree of Nodes rooted at one container. Groups organise the
// tree and datasets are growable arrays of fixed-shape records: every Push
// appends whole records along the leading axis and advances the dataset's
// append cursor. Storage is delegated to a core.Backend chosen by name from
// the backend registry:
//
//	import _ "github.com/leapstack-labs/galotfa/internal/output/sqlite"
//
//	backend, err := output.NewBackend("sqlite", logger)
//	store, err := output.Open("run.sqlite", backend, output.WithLogger(logger))
//
// A store is used by a single goroutine, normally the collector rank.
package output
