// Package core defines the shared language of the galotfa diagnostics pipeline.
//
// This package contains:
//   - Binning and reduction vocabulary (BinSpec, Method)
//   - Record schema types (ElementType, RecordDescriptor)
//   - Output tree vocabulary (NodeKind) and storage driver interfaces
//     (Backend, Resource, Dataset)
//   - The collective communication contract (Communicator)
//   - Particle buffers handed over by the simulation (Particles)
//   - Sentinel errors shared by all layers
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
