package core

import "context"

// Communicator is the message-passing collective primitive the reduction
// engine runs on.
//
// Every collective is blocking and requires symmetric participation: all
// ranks of the communicator must issue the same sequence of collective calls
// with the same root and buffer lengths. A rank that never joins a collective
// hangs the others until their context is cancelled.
type Communicator interface {
	// Rank is this process's index in [0, Size).
	Rank() int
	// Size is the number of participating ranks.
	Size() int
	// ReduceFloat64 sums send element-wise across ranks into recv on root.
	// recv is only written on root and may be nil elsewhere.
	ReduceFloat64(ctx context.Context, root int, send, recv []float64) error
	// ReduceUint64 sums send element-wise across ranks into recv on root.
	ReduceUint64(ctx context.Context, root int, send, recv []uint64) error
	// BroadcastFloat64 replicates root's buf into buf on every rank.
	BroadcastFloat64(ctx context.Context, root int, buf []float64) error
	// BroadcastUint64 replicates root's buf into buf on every rank.
	BroadcastUint64(ctx context.Context, root int, buf []uint64) error
	// Barrier returns once every rank has entered it.
	Barrier(ctx context.Context) error
}
