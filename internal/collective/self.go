package collective

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

// selfComm is a communicator of size one.
type selfComm struct{}

// Self returns the communicator of a single-rank run.
func Self() core.Communicator {
	return selfComm{}
}

func (selfComm) Rank() int { return 0 }
func (selfComm) Size() int { return 1 }

func (selfComm) ReduceFloat64(_ context.Context, root int, send, recv []float64) error {
	if err := checkSelfRoot(root); err != nil {
		return err
	}
	if len(recv) < len(send) {
		return fmt.Errorf("%w: receive buffer holds %d of %d elements", core.ErrShapeMismatch, len(recv), len(send))
	}
	copy(recv, send)
	return nil
}

func (selfComm) ReduceUint64(_ context.Context, root int, send, recv []uint64) error {
	if err := checkSelfRoot(root); err != nil {
		return err
	}
	if len(recv) < len(send) {
		return fmt.Errorf("%w: receive buffer holds %d of %d elements", core.ErrShapeMismatch, len(recv), len(send))
	}
	copy(recv, send)
	return nil
}

func (selfComm) BroadcastFloat64(_ context.Context, root int, _ []float64) error {
	return checkSelfRoot(root)
}

func (selfComm) BroadcastUint64(_ context.Context, root int, _ []uint64) error {
	return checkSelfRoot(root)
}

func (selfComm) Barrier(context.Context) error { return nil }

func checkSelfRoot(root int) error {
	if root != 0 {
		return fmt.Errorf("root rank %d out of range [0, 1)", root)
	}
	return nil
}
