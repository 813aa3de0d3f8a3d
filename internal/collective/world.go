package collective

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

type payloadKind int

const (
	payloadFloat64 payloadKind = iota
	payloadUint64
	payloadBarrier
)

func (k payloadKind) String() string {
	return [...]string{"float64", "uint64", "barrier"}[k]
}

type message struct {
	kind payloadKind
	f64  []float64
	u64  []uint64
}

func (m message) len() int {
	switch m.kind {
	case payloadFloat64:
		return len(m.f64)
	case payloadUint64:
		return len(m.u64)
	default:
		return 0
	}
}

// linkBuffer is the capacity of each point-to-point channel.
const linkBuffer = 4

// World is a set of in-process ranks connected by FIFO channels.
type World struct {
	size  int
	links [][]chan message // links[from][to]
	comms []*Comm
}

// Comm is one rank's view of a World. It implements core.Communicator and
// must only be used from the goroutine that plays this rank.
type Comm struct {
	world *World
	rank  int
}

// NewWorld connects size in-process ranks.
func NewWorld(size int) (*World, error) {
	if size < 1 {
		return nil, fmt.Errorf("world size must be at least 1, got %d", size)
	}
	w := &World{size: size, links: make([][]chan message, size)}
	for from := range w.links {
		w.links[from] = make([]chan message, size)
		for to := range w.links[from] {
			if from != to {
				w.links[from][to] = make(chan message, linkBuffer)
			}
		}
	}
	w.comms = make([]*Comm, size)
	for r := range w.comms {
		w.comms[r] = &Comm{world: w, rank: r}
	}
	return w, nil
}

// Size returns the number of ranks.
func (w *World) Size() int { return w.size }

// Comm returns the communicator of rank r.
func (w *World) Comm(r int) *Comm { return w.comms[r] }

// Rank returns this rank's index.
func (c *Comm) Rank() int { return c.rank }

// Size returns the number of ranks in the world.
func (c *Comm) Size() int { return c.world.size }

// ReduceFloat64 sums send across ranks into recv on root. Contributions are
// added in rank order so every run produces bit-identical sums.
func (c *Comm) ReduceFloat64(ctx context.Context, root int, send, recv []float64) error {
	if err := c.checkRoot(root); err != nil {
		return err
	}
	if c.rank != root {
		buf := make([]float64, len(send))
		copy(buf, send)
		return c.send(ctx, root, message{kind: payloadFloat64, f64: buf})
	}
	if len(recv) < len(send) {
		return fmt.Errorf("%w: receive buffer holds %d of %d elements", core.ErrShapeMismatch, len(recv), len(send))
	}

	parts, err := c.gather(ctx, payloadFloat64, len(send))
	if err != nil {
		return err
	}
	for i := range send {
		var sum float64
		for r := 0; r < c.world.size; r++ {
			if r == root {
				sum += send[i]
				continue
			}
			sum += parts[r].f64[i]
		}
		recv[i] = sum
	}
	return nil
}

// ReduceUint64 sums send across ranks into recv on root.
func (c *Comm) ReduceUint64(ctx context.Context, root int, send, recv []uint64) error {
	if err := c.checkRoot(root); err != nil {
		return err
	}
	if c.rank != root {
		buf := make([]uint64, len(send))
		copy(buf, send)
		return c.send(ctx, root, message{kind: payloadUint64, u64: buf})
	}
	if len(recv) < len(send) {
		return fmt.Errorf("%w: receive buffer holds %d of %d elements", core.ErrShapeMismatch, len(recv), len(send))
	}

	parts, err := c.gather(ctx, payloadUint64, len(send))
	if err != nil {
		return err
	}
	for i := range send {
		sum := send[i]
		for r := 0; r < c.world.size; r++ {
			if r != root {
				sum += parts[r].u64[i]
			}
		}
		recv[i] = sum
	}
	return nil
}

// BroadcastFloat64 copies root's buf into every other rank's buf.
func (c *Comm) BroadcastFloat64(ctx context.Context, root int, buf []float64) error {
	if err := c.checkRoot(root); err != nil {
		return err
	}
	if c.rank == root {
		return c.scatterCopies(ctx, func() message {
			out := make([]float64, len(buf))
			copy(out, buf)
			return message{kind: payloadFloat64, f64: out}
		})
	}
	msg, err := c.expect(ctx, root, payloadFloat64, len(buf))
	if err != nil {
		return err
	}
	copy(buf, msg.f64)
	return nil
}

// BroadcastUint64 copies root's buf into every other rank's buf.
func (c *Comm) BroadcastUint64(ctx context.Context, root int, buf []uint64) error {
	if err := c.checkRoot(root); err != nil {
		return err
	}
	if c.rank == root {
		return c.scatterCopies(ctx, func() message {
			out := make([]uint64, len(buf))
			copy(out, buf)
			return message{kind: payloadUint64, u64: out}
		})
	}
	msg, err := c.expect(ctx, root, payloadUint64, len(buf))
	if err != nil {
		return err
	}
	copy(buf, msg.u64)
	return nil
}

// Barrier gathers a token on rank 0 and releases every rank once all arrived.
func (c *Comm) Barrier(ctx context.Context) error {
	const root = 0
	if c.rank != root {
		if err := c.send(ctx, root, message{kind: payloadBarrier}); err != nil {
			return err
		}
		_, err := c.expect(ctx, root, payloadBarrier, 0)
		return err
	}
	if _, err := c.gather(ctx, payloadBarrier, 0); err != nil {
		return err
	}
	return c.scatterCopies(ctx, func() message { return message{kind: payloadBarrier} })
}

// gather receives one message from every other rank. It keeps draining after
// a mismatch so the links stay aligned for the next collective.
func (c *Comm) gather(ctx context.Context, kind payloadKind, n int) ([]message, error) {
	parts := make([]message, c.world.size)
	var mismatch error
	for r := 0; r < c.world.size; r++ {
		if r == c.rank {
			continue
		}
		msg, err := c.recv(ctx, r)
		if err != nil {
			return nil, err
		}
		if msg.kind != kind || msg.len() != n {
			if mismatch == nil {
				mismatch = fmt.Errorf("%w: rank %d sent %d %s elements, rank %d expected %d %s elements",
					core.ErrCollectiveMismatch, r, msg.len(), msg.kind, c.rank, n, kind)
			}
			continue
		}
		parts[r] = msg
	}
	if mismatch != nil {
		return nil, mismatch
	}
	return parts, nil
}

func (c *Comm) scatterCopies(ctx context.Context, mk func() message) error {
	for r := 0; r < c.world.size; r++ {
		if r == c.rank {
			continue
		}
		if err := c.send(ctx, r, mk()); err != nil {
			return err
		}
	}
	return nil
}

func (c *Comm) expect(ctx context.Context, from int, kind payloadKind, n int) (message, error) {
	msg, err := c.recv(ctx, from)
	if err != nil {
		return message{}, err
	}
	if msg.kind != kind || msg.len() != n {
		return message{}, fmt.Errorf("%w: rank %d received %d %s elements from rank %d, expected %d %s elements",
			core.ErrCollectiveMismatch, c.rank, msg.len(), msg.kind, from, n, kind)
	}
	return msg, nil
}

func (c *Comm) send(ctx context.Context, to int, msg message) error {
	select {
	case c.world.links[c.rank][to] <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("rank %d sending to rank %d: %w", c.rank, to, ctx.Err())
	}
}

func (c *Comm) recv(ctx context.Context, from int) (message, error) {
	select {
	case msg := <-c.world.links[from][c.rank]:
		return msg, nil
	case <-ctx.Done():
		return message{}, fmt.Errorf("rank %d waiting for rank %d: %w", c.rank, from, ctx.Err())
	}
}

func (c *Comm) checkRoot(root int) error {
	if root < 0 || root >= c.world.size {
		return fmt.Errorf("root rank %d out of range [0, %d)", root, c.world.size)
	}
	return nil
}
