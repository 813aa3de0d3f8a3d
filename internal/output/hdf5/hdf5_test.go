//go:build hdf5

package hdf5

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/hdf5"

	"github.com/leapstack-labs/galotfa/internal/output"
	"github.com/leapstack-labs/galotfa/pkg/core"
)

func TestBackend_PushAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.hdf5")

	s, err := output.Open(path, New(nil))
	require.NoError(t, err)
	_, err = s.CreateGroup("/model")
	require.NoError(t, err)
	_, err = s.CreateDataset("/model/vec", core.Array(core.TypeFloat64, 3), 4)
	require.NoError(t, err)
	require.NoError(t, s.AddAttribute("/model/vec", "range", core.Array(core.TypeFloat64, 2), []float64{-1, 1}))

	for k := 0; k < 5; k++ {
		require.NoError(t, s.Push("/model/vec", []float64{float64(k), float64(k), float64(k)}, 3))
	}
	require.NoError(t, s.Close())

	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	ds, err := f.OpenDataset("/model/vec")
	require.NoError(t, err)
	defer func() { _ = ds.Close() }()

	dims, _, err := ds.Space().SimpleExtentDims()
	require.NoError(t, err)
	assert.Equal(t, []uint{5, 3}, dims)

	got := make([]float64, 15)
	require.NoError(t, ds.Read(&got))
	assert.Equal(t, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2, 3, 3, 3, 4, 4, 4}, got)
}
