// Package sqlstoretest holds the behaviour tests shared by the SQL backends.
package sqlstoretest

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/galotfa/internal/output"
	"github.com/leapstack-labs/galotfa/internal/output/sqlstore"
	"github.com/leapstack-labs/galotfa/pkg/core"
)

// Run exercises a SQL backend end to end through an output.Store. path is
// where the container is created; reopen opens it again after the store
// is closed.
func Run(t *testing.T, backend *sqlstore.Backend, path string, reopen sqlstore.Opener) {
	t.Helper()
	ctx := context.Background()

	s, err := output.Open(path, backend, output.WithSessionID("suite"))
	require.NoError(t, err)

	_, err = s.CreateGroup("/model")
	require.NoError(t, err)
	_, err = s.CreateDataset("/model/vec", core.Array(core.TypeFloat64, 3), 8)
	require.NoError(t, err)
	_, err = s.CreateDataset("/model/step", core.Scalar(core.TypeInt64), 0)
	require.NoError(t, err)
	require.NoError(t, s.AddAttribute("/model/vec", "range", core.Array(core.TypeFloat64, 2), []float64{-1, 1}))
	require.NoError(t, s.AddAttribute("/model", "note", core.Scalar(core.TypeString), nil))

	var pushed [][]float64
	for k := 0; k < 4; k++ {
		buf := []float64{float64(k), math.NaN(), -float64(k)}
		require.NoError(t, s.Push("/model/vec", buf, 3))
		require.NoError(t, s.Push("/model/step", []int64{int64(10 * k)}, 1))
		pushed = append(pushed, buf)
	}
	require.NoError(t, s.Push("/model/step", []int64{40, 50}, 2))

	_, err = s.CreateGroup("/model")
	require.ErrorIs(t, err, core.ErrExists)
	require.ErrorIs(t, s.Push("/model/vec", []int64{1, 2, 3}, 3), core.ErrTypeMismatch)

	require.NoError(t, s.Close())
	assert.Nil(t, backend.DB(), "closing the root closes the database")

	db, err := reopen(path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	cat, err := sqlstore.ReadCatalog(ctx, db)
	require.NoError(t, err)

	var names []string
	for _, n := range cat.Nodes {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"/", "/model", "/model/step", "/model/vec"}, names)

	vec := cat.Datasets["/model/vec"]
	assert.Equal(t, []uint64{4, 3}, vec.Shape())
	assert.Equal(t, []uint64{8, 3}, vec.Chunk)

	records, err := sqlstore.ReadRecords(ctx, db, vec)
	require.NoError(t, err)
	require.Len(t, records, 4)
	for k, rec := range records {
		row := rec.([]float64)
		assert.Equal(t, pushed[k][0], row[0], "row %d", k)
		assert.True(t, math.IsNaN(row[1]), "row %d", k)
		assert.Equal(t, pushed[k][2], row[2], "row %d", k)
	}

	step := cat.Datasets["/model/step"]
	assert.Equal(t, uint64(6), step.Records)
	records, err = sqlstore.ReadRecords(ctx, db, step)
	require.NoError(t, err)
	assert.Equal(t, []any{[]int64{0}, []int64{10}, []int64{20}, []int64{30}, []int64{40}, []int64{50}}, records)

	attrs := map[string]sqlstore.AttributeInfo{}
	for _, a := range cat.Attributes {
		attrs[a.Node+"@"+a.Name] = a
	}
	assert.Equal(t, []string{"suite"}, attrs["/@session_id"].Value)
	assert.Equal(t, []float64{-1, 1}, attrs["/model/vec@range"].Value)
	assert.Nil(t, attrs["/model@note"].Value)
	assert.Contains(t, attrs, "/@created_at")
}

// RunReopenTruncates checks that opening a container again starts empty.
func RunReopenTruncates(t *testing.T, first, second *sqlstore.Backend, path string) {
	t.Helper()

	s, err := output.Open(path, first)
	require.NoError(t, err)
	_, err = s.CreateDataset("/old", core.Scalar(core.TypeFloat64), 0)
	require.NoError(t, err)
	require.NoError(t, s.Push("/old", []float64{1}, 1))
	require.NoError(t, s.Close())

	s, err = output.Open(path, second)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = s.CreateDataset("/old", core.Scalar(core.TypeFloat64), 0)
	require.NoError(t, err, "the previous session's nodes are gone")
}
