//go:build hdf5

package cli

import _ "github.com/leapstack-labs/galotfa/internal/output/hdf5"
