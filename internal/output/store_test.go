package output_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/galotfa/internal/output"
	"github.com/leapstack-labs/galotfa/internal/output/memory"
	"github.com/leapstack-labs/galotfa/internal/output/sqlite"
	"github.com/leapstack-labs/galotfa/pkg/core"
)

func openMemory(t *testing.T) (*output.Store, *memory.Backend) {
	t.Helper()
	b := memory.New(nil)
	s, err := output.Open("test.mem", b, output.WithSessionID("session-1"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, b
}

func TestOpen_TagsRoot(t *testing.T) {
	clock := func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	b := memory.New(nil)
	s, err := output.Open("run.mem", b, output.WithSessionID("abc"), output.WithClock(clock))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.Equal(t, core.KindContainer, s.Root().Kind())
	assert.Equal(t, []string{"/"}, s.Names())

	id, ok := b.Attribute("/", "session_id")
	require.True(t, ok)
	assert.Equal(t, []string{"abc"}, id)
	created, ok := b.Attribute("/", "created_at")
	require.True(t, ok)
	assert.Equal(t, []string{"2024-03-01T12:00:00Z"}, created)
}

func TestOpen_GeneratesSessionID(t *testing.T) {
	s, err := output.Open("x", memory.New(nil))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.Len(t, s.SessionID(), 36)
}

func TestCreateGroup(t *testing.T) {
	s, _ := openMemory(t)

	g, err := s.CreateGroup("/model")
	require.NoError(t, err)
	assert.Equal(t, core.KindGroup, g.Kind())
	assert.Equal(t, "/", g.Parent())

	sub, err := s.CreateGroup("/model/images")
	require.NoError(t, err)
	assert.Equal(t, "/model", sub.Parent())
	assert.Len(t, g.Children(), 1)

	tests := []struct {
		name   string
		target error
	}{
		{"/model", core.ErrExists},
		{"/", core.ErrInvalidName},
		{"model", core.ErrInvalidName},
		{"/model/", core.ErrInvalidName},
		{"/missing/child", core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateGroup(tt.name)
			require.ErrorIs(t, err, tt.target)
		})
	}
}

func TestCreateDataset(t *testing.T) {
	s, b := openMemory(t)
	_, err := s.CreateGroup("/model")
	require.NoError(t, err)

	n, err := s.CreateDataset("/model/image", core.Array(core.TypeFloat64, 4, 5), 16)
	require.NoError(t, err)

	assert.Equal(t, core.KindDataset, n.Kind())
	assert.Equal(t, []uint64{1, 4, 5}, n.ExtensionShape())
	cur, err := s.Cursor("/model/image")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cur)

	ds, ok := b.Dataset("/model/image")
	require.True(t, ok)
	assert.Equal(t, []uint64{16, 4, 5}, ds.Chunk())
	assert.Equal(t, []uint64{0, 4, 5}, ds.Shape())

	_, err = s.CreateDataset("/model/image", core.Scalar(core.TypeInt64), 0)
	require.ErrorIs(t, err, core.ErrExists)

	_, err = s.CreateDataset("/model/image/child", core.Scalar(core.TypeInt64), 0)
	require.ErrorIs(t, err, core.ErrNoChildren)

	_, err = s.CreateGroup("/model/image/child")
	require.ErrorIs(t, err, core.ErrNoChildren)

	_, err = s.CreateDataset("/model/bad", core.Array(core.TypeFloat64, 0), 0)
	require.ErrorIs(t, err, core.ErrShapeMismatch)
	_, err = s.Node("/model/bad")
	require.ErrorIs(t, err, core.ErrNotFound, "rejected datasets are not registered")
}

func TestCreateDataset_DefaultChunk(t *testing.T) {
	s, b := openMemory(t)
	_, err := s.CreateDataset("/t", core.Scalar(core.TypeFloat64), 0)
	require.NoError(t, err)
	ds, _ := b.Dataset("/t")
	assert.Equal(t, []uint64{output.DefaultChunk}, ds.Chunk())
}

func TestPush_AppendsRecords(t *testing.T) {
	s, b := openMemory(t)
	_, err := s.CreateDataset("/vec", core.Array(core.TypeFloat64, 3), 0)
	require.NoError(t, err)

	const n = 5
	var pushed [][]float64
	for k := 0; k < n; k++ {
		buf := []float64{float64(k), float64(k) + 0.5, -float64(k)}
		require.NoError(t, s.Push("/vec", buf, len(buf)))
		pushed = append(pushed, buf)
	}

	cur, err := s.Cursor("/vec")
	require.NoError(t, err)
	assert.Equal(t, uint64(n), cur)

	ds, _ := b.Dataset("/vec")
	assert.Equal(t, []uint64{n, 3}, ds.Shape())
	for k := range pushed {
		row, err := ds.Record(uint64(k))
		require.NoError(t, err)
		assert.Equal(t, pushed[k], row, "row %d", k)
	}
}

func TestPush_MultipleRecordsAndPrefix(t *testing.T) {
	s, b := openMemory(t)
	_, err := s.CreateDataset("/pair", core.Array(core.TypeInt32, 2), 0)
	require.NoError(t, err)

	// two records out of a longer buffer
	require.NoError(t, s.Push("/pair", []int32{1, 2, 3, 4, 99}, 4))
	require.NoError(t, s.Push("/pair", []int32{5, 6}, 2))

	ds, _ := b.Dataset("/pair")
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6}, ds.Data())
	cur, _ := s.Cursor("/pair")
	assert.Equal(t, uint64(3), cur)
}

func TestPush_Rejections(t *testing.T) {
	s, b := openMemory(t)
	_, err := s.CreateGroup("/g")
	require.NoError(t, err)
	_, err = s.CreateDataset("/g/d", core.Array(core.TypeFloat64, 2), 0)
	require.NoError(t, err)

	tests := []struct {
		name    string
		dataset string
		buf     any
		length  int
		target  error
	}{
		{"unknown dataset", "/g/missing", []float64{1, 2}, 2, core.ErrNotFound},
		{"group", "/g", []float64{1, 2}, 2, core.ErrNotDataset},
		{"element type", "/g/d", []float32{1, 2}, 2, core.ErrTypeMismatch},
		{"unsupported buffer", "/g/d", map[string]int{}, 2, core.ErrTypeMismatch},
		{"partial record", "/g/d", []float64{1, 2, 3}, 3, core.ErrShapeMismatch},
		{"length beyond buffer", "/g/d", []float64{1, 2}, 4, core.ErrShapeMismatch},
		{"zero length", "/g/d", []float64{1, 2}, 0, core.ErrShapeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, s.Push(tt.dataset, tt.buf, tt.length), tt.target)
		})
	}

	cur, err := s.Cursor("/g/d")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cur)
	ds, _ := b.Dataset("/g/d")
	assert.Equal(t, []uint64{0, 2}, ds.Shape(), "rejected pushes leave the dataset untouched")
}

func TestAddAttribute(t *testing.T) {
	s, b := openMemory(t)
	_, err := s.CreateDataset("/d", core.Scalar(core.TypeFloat64), 0)
	require.NoError(t, err)

	require.NoError(t, s.AddAttribute("/d", "range", core.Array(core.TypeFloat64, 2), []float64{-1, 1}))
	require.NoError(t, s.AddAttribute("/d", "bins", core.Scalar(core.TypeInt64), 100))
	require.NoError(t, s.AddAttribute("/d", "unit", core.Scalar(core.TypeString), nil))

	v, ok := b.Attribute("/d", "range")
	require.True(t, ok)
	assert.Equal(t, []float64{-1, 1}, v)
	v, _ = b.Attribute("/d", "bins")
	assert.Equal(t, []int64{100}, v)
	v, ok = b.Attribute("/d", "unit")
	assert.True(t, ok)
	assert.Nil(t, v)

	require.ErrorIs(t, s.AddAttribute("/nope", "a", core.Scalar(core.TypeInt64), 1), core.ErrNotFound)
	require.ErrorIs(t, s.AddAttribute("/d", "a", core.Scalar(core.TypeInt64), 1.5), core.ErrTypeMismatch)
	require.ErrorIs(t, s.AddAttribute("/d", "a", core.Array(core.TypeFloat64, 3), []float64{1}), core.ErrShapeMismatch)
}

func TestClose_ChildrenBeforeParentsExactlyOnce(t *testing.T) {
	b := memory.New(nil)
	s, err := output.Open("trace.mem", b)
	require.NoError(t, err)

	_, err = s.CreateGroup("/a")
	require.NoError(t, err)
	_, err = s.CreateGroup("/a/b")
	require.NoError(t, err)
	_, err = s.CreateDataset("/a/b/d1", core.Scalar(core.TypeFloat64), 0)
	require.NoError(t, err)
	_, err = s.CreateDataset("/a/d2", core.Array(core.TypeUint64, 2), 0)
	require.NoError(t, err)
	_, err = s.CreateGroup("/c")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	closes := b.Closes()
	position := map[string]int{}
	for i, id := range closes {
		_, dup := position[id]
		require.False(t, dup, "%s closed twice", id)
		position[id] = i
	}

	for _, name := range []string{"/", "/a", "/a/b", "/a/b/d1", "/a/d2", "/c"} {
		require.Contains(t, position, name)
	}
	for _, ds := range []string{"/a/b/d1", "/a/d2"} {
		assert.Less(t, position[ds+"#space"], position[ds])
		assert.Less(t, position[ds+"#layout"], position[ds])
	}
	edges := [][2]string{
		{"/a/b/d1", "/a/b"}, {"/a/b", "/a"}, {"/a/d2", "/a"}, {"/a", "/"}, {"/c", "/"},
	}
	for _, e := range edges {
		assert.Less(t, position[e[0]], position[e[1]], "%s must close before %s", e[0], e[1])
	}
	assert.Equal(t, "/", closes[len(closes)-1], "root closes last")
}

func TestStore_ClosedRejectsOperations(t *testing.T) {
	s, err := output.Open("x", memory.New(nil))
	require.NoError(t, err)
	_, err = s.CreateDataset("/d", core.Scalar(core.TypeFloat64), 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.CreateGroup("/g")
	require.ErrorIs(t, err, core.ErrNodeClosed)
	require.ErrorIs(t, s.Push("/d", []float64{1}, 1), core.ErrNodeClosed)
	_, err = s.Cursor("/d")
	require.ErrorIs(t, err, core.ErrNodeClosed)
	require.ErrorIs(t, s.AddAttribute("/", "a", core.Scalar(core.TypeInt64), 1), core.ErrNodeClosed)
}

func TestStore_ClosedGroupRejectsChildren(t *testing.T) {
	tests := []struct {
		name    string
		backend func() core.Backend
	}{
		{"memory", func() core.Backend { return memory.New(nil) }},
		{"sqlite", func() core.Backend { return sqlite.New(nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := output.Open(filepath.Join(t.TempDir(), "run."+tt.name), tt.backend())
			require.NoError(t, err)

			g, err := s.CreateGroup("/g")
			require.NoError(t, err)
			_, err = s.CreateGroup("/keep")
			require.NoError(t, err)
			require.NoError(t, g.Close())

			_, err = s.CreateDataset("/g/d", core.Scalar(core.TypeFloat64), 0)
			require.ErrorIs(t, err, core.ErrNodeClosed)
			_, err = s.CreateGroup("/g/x")
			require.ErrorIs(t, err, core.ErrNodeClosed)
			require.ErrorIs(t, s.AddAttribute("/g", "a", core.Scalar(core.TypeInt64), 1), core.ErrNodeClosed)

			var children []string
			for _, c := range s.Root().Children() {
				children = append(children, c.Name())
			}
			assert.Equal(t, []string{"/keep"}, children)

			_, err = s.CreateGroup("/after")
			require.NoError(t, err)
			require.NoError(t, s.Close())
		})
	}
}

type failingDataset struct {
	id       string
	extents  []uint64
	writeErr error
}

func (f *failingDataset) ID() string   { return f.id }
func (f *failingDataset) Close() error { return nil }
func (f *failingDataset) Extend(n uint64) error {
	f.extents = append(f.extents, n)
	return nil
}
func (f *failingDataset) WriteRecords(uint64, uint64, any) error { return f.writeErr }

type stubResource string

func (r stubResource) ID() string   { return string(r) }
func (r stubResource) Close() error { return nil }

type failingBackend struct {
	ds *failingDataset
}

func (b *failingBackend) Name() string      { return "failing" }
func (b *failingBackend) Extension() string { return "fail" }
func (b *failingBackend) OpenContainer(string) (core.Resource, error) {
	return stubResource("/"), nil
}
func (b *failingBackend) CreateGroup(_ core.Resource, name string) (core.Resource, error) {
	return stubResource(name), nil
}
func (b *failingBackend) CreateDataset(_ core.Resource, name string, _ core.DatasetLayout) (core.DatasetResources, error) {
	b.ds.id = name
	return core.DatasetResources{Dataset: b.ds}, nil
}
func (b *failingBackend) SetAttribute(core.Resource, string, core.RecordDescriptor, any) error {
	return nil
}
func (b *failingBackend) Close() error { return nil }

func TestPush_FailedWriteRollsBackExtent(t *testing.T) {
	boom := errors.New("disk full")
	fb := &failingBackend{ds: &failingDataset{writeErr: boom}}
	s, err := output.Open("x", fb)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = s.CreateDataset("/d", core.Scalar(core.TypeFloat64), 0)
	require.NoError(t, err)

	err = s.Push("/d", []float64{1, 2}, 2)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []uint64{2, 0}, fb.ds.extents)

	cur, err := s.Cursor("/d")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cur)
}
