// Package collective provides implementations of core.Communicator.
//
// Self is the single-rank communicator used when the simulation runs in one
// process. World wires N in-process ranks together over FIFO channels, one
// per ordered pair of ranks, which gives the same non-overtaking guarantee
// as MPI point-to-point traffic: as long as every rank issues the same
// sequence of collectives, messages are matched to the right call without
// sequence numbers. Run launches one goroutine per rank of a World and
// cancels the survivors when any rank fails, so a rank that drops out of a
// collective turns into an error instead of a hang.
package collective
