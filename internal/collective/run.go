package collective

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

// RankFunc is the body executed by every rank of a Run.
type RankFunc func(ctx context.Context, comm core.Communicator) error

// Run creates a World of size ranks and runs fn once per rank, each on its
// own goroutine. The first failing rank cancels the context shared by the
// others, which unblocks any rank waiting inside a collective.
func Run(ctx context.Context, size int, fn RankFunc) error {
	w, err := NewWorld(size)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < size; r++ {
		comm := w.Comm(r)
		g.Go(func() error {
			if err := fn(gctx, comm); err != nil {
				return fmt.Errorf("rank %d: %w", comm.Rank(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
