package commands

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/galotfa/internal/cli/testutil"
	"github.com/leapstack-labs/galotfa/internal/output"
	_ "github.com/leapstack-labs/galotfa/internal/output/memory"
	"github.com/leapstack-labs/galotfa/internal/output/sqlite"
	"github.com/leapstack-labs/galotfa/pkg/core"
)

// writeSQLiteOutput creates a small model file.
func writeSQLiteOutput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.sqlite")
	s, err := output.Open(path, sqlite.New(nil), output.WithSessionID("sess-1"))
	require.NoError(t, err)

	_, err = s.CreateGroup("/model")
	require.NoError(t, err)
	_, err = s.CreateDataset("/model/step", core.Scalar(core.TypeInt64), 0)
	require.NoError(t, err)
	_, err = s.CreateDataset("/model/image", core.Array(core.TypeFloat64, 4, 4), 16)
	require.NoError(t, err)
	require.NoError(t, s.AddAttribute("/model", "period", core.Scalar(core.TypeInt64), 5))

	image := make([]float64, 16)
	image[3] = math.NaN()
	image[5] = 2
	for step := int64(0); step < 15; step += 5 {
		require.NoError(t, s.Push("/model/step", []int64{step}, 1))
		require.NoError(t, s.Push("/model/image", image, len(image)))
	}
	require.NoError(t, s.Close())
	return path
}

func TestInspect_Tree(t *testing.T) {
	path := writeSQLiteOutput(t)

	out, _, err := testutil.Execute(t, NewInspectCommand(), path)
	require.NoError(t, err)
	for _, want := range []string{"/model/step", "/model/image", "{3, 4, 4}", "{16, 4, 4}", "sess-1", "period"} {
		assert.Contains(t, out, want)
	}
}

func TestInspect_DatasetTail(t *testing.T) {
	path := writeSQLiteOutput(t)

	out, _, err := testutil.Execute(t, NewInspectCommand(), path, "-d", "/model/step", "-n", "2", "-f", "csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "1,5", lines[1])
	assert.Equal(t, "2,10", lines[2])

	out, _, err = testutil.Execute(t, NewInspectCommand(), path, "-d", "/model/image", "-f", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "n=16 min=0 max=2 sum=2 nan=1")
}

func TestInspect_Errors(t *testing.T) {
	path := writeSQLiteOutput(t)

	_, _, err := testutil.Execute(t, NewInspectCommand(), path, "-d", "/model/nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no dataset "/model/nope"`)

	_, _, err = testutil.Execute(t, NewInspectCommand(), filepath.Join(t.TempDir(), "out.h5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported extension")
}

func TestBackendsCommand(t *testing.T) {
	out, _, err := testutil.Execute(t, NewBackendsCommand(), "-f", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"backend": "memory"`)
	assert.Contains(t, out, `"extension": ".mem"`)
}

func TestHelp_DocumentsHDF5BuildTag(t *testing.T) {
	for _, cmd := range []*cobra.Command{NewBackendsCommand(), NewSimulateCommand()} {
		assert.Contains(t, cmd.Long, "-tags hdf5", cmd.Name())
	}
}

func TestRenderRows(t *testing.T) {
	cols := []string{"a", "b"}
	rows := [][]string{{"1", "x"}, {"2", "y"}}

	var buf bytes.Buffer
	require.NoError(t, renderRows(&buf, "table", cols, rows))
	assert.Contains(t, buf.String(), "(2 rows)")

	buf.Reset()
	require.NoError(t, renderRows(&buf, "markdown", cols, rows))
	assert.Contains(t, buf.String(), "| 1 | x |")

	require.Error(t, renderRows(&buf, "xml", cols, rows))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "NULL", formatValue(nil))
	assert.Equal(t, "count", formatValue([]string{"count"}))
	assert.Equal(t, "0.5", formatValue([]float64{0.5}))
	assert.Equal(t, "[-20 20]", formatValue([]float64{-20, 20}))
	assert.Equal(t, "7", formatValue([]uint64{7}))
	assert.Equal(t, "n=9 all NaN", formatValue([]float64{
		math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(),
		math.NaN(), math.NaN(), math.NaN(), math.NaN(),
	}))
}

func TestInspect_FollowNeedsDataset(t *testing.T) {
	path := writeSQLiteOutput(t)
	_, _, err := testutil.Execute(t, NewInspectCommand(), path, "--follow")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--follow needs --dataset")
}

func TestPrintAppended(t *testing.T) {
	path := writeSQLiteOutput(t)
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetContext(context.Background())

	n, err := printAppended(cmd, path, "/model/step", "csv", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "1,5", lines[1])
	assert.Equal(t, "2,10", lines[2])

	buf.Reset()
	n, err = printAppended(cmd, path, "/model/step", "csv", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, buf.String(), "nothing new")

	_, err = printAppended(cmd, path, "/model/none", "csv", 0)
	assert.Error(t, err)
}

func TestFollowDataset_StopsWithContext(t *testing.T) {
	path := writeSQLiteOutput(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)

	assert.NoError(t, followDataset(cmd, path, "/model/step", "csv", 3))

	cmd.SetContext(context.Background())
	err := followDataset(cmd, filepath.Join(t.TempDir(), "missing", "model.sqlite"), "/model/step", "csv", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to watch")
}
