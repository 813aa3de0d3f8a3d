package collective

import (
	"context"
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

// Fingerprint hashes the printed form of parts. Ranks that pass equal
// parameters get equal fingerprints.
func Fingerprint(parts ...any) uint64 {
	var buf []byte
	for _, p := range parts {
		buf = fmt.Appendf(buf, "%T:%v|", p, p)
	}
	return xxh3.Hash(buf)
}

// VerifyUniform checks that every rank holds the same fingerprint before a
// collective whose buffer sizes depend on the fingerprinted parameters.
//
// It only exchanges fixed-size buffers, so it completes even when the ranks
// disagree, and every rank returns the same verdict:
// core.ErrCollectiveMismatch if any rank differs from root.
func VerifyUniform(ctx context.Context, comm core.Communicator, root int, fingerprint uint64) error {
	return VerifyInput(ctx, comm, root, fingerprint, nil)
}

// VerifyInput is VerifyUniform for a rank that has also validated its own
// input. A non-nil local error takes part in the exchange instead of
// returning early, so the other ranks never wait on a peer that left. The
// rank that rejected its input gets local back; every other rank gets
// core.ErrCollectiveMismatch.
func VerifyInput(ctx context.Context, comm core.Communicator, root int, fingerprint uint64, local error) error {
	reference := []uint64{fingerprint}
	if err := comm.BroadcastUint64(ctx, root, reference); err != nil {
		return fmt.Errorf("broadcasting fingerprint: %w", err)
	}

	// {differs from root, rejected its input}
	flags := []uint64{0, 0}
	if reference[0] != fingerprint {
		flags[0] = 1
	}
	if local != nil {
		flags[1] = 1
	}
	verdict := []uint64{0, 0}
	if err := comm.ReduceUint64(ctx, root, flags, verdict); err != nil {
		return fmt.Errorf("reducing fingerprint verdicts: %w", err)
	}
	if err := comm.BroadcastUint64(ctx, root, verdict); err != nil {
		return fmt.Errorf("broadcasting fingerprint verdict: %w", err)
	}

	switch {
	case local != nil:
		return local
	case verdict[1] != 0:
		return fmt.Errorf("%w: %d of %d ranks rejected their input",
			core.ErrCollectiveMismatch, verdict[1], comm.Size())
	case verdict[0] != 0:
		return fmt.Errorf("%w: %d of %d ranks called with parameters differing from rank %d",
			core.ErrCollectiveMismatch, verdict[0], comm.Size(), root)
	}
	return nil
}
