package hls

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s SegmentStore) []string {
	t.Helper()
	seq, err := s.GetInOrder()
	require.NoError(t, err)
	var out []string
	for data, err := range seq {
		require.NoError(t, err)
		out = append(out, string(data))
	}
	return out
}

func storeImplementations(t *testing.T, count int) map[string]SegmentStore {
	return map[string]SegmentStore{
		"dir": NewDirStore(filepath.Join(t.TempDir(), "scratch", "run-1"), count),
		"mem": NewMemStore(count),
	}
}

func TestSegmentStore_GetInOrder_ignores_write_order(t *testing.T) {
	for name, s := range storeImplementations(t, 3) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(2, []byte("CCC")))
			require.NoError(t, s.Put(0, []byte("AAA")))
			require.NoError(t, s.Put(1, []byte("BBB")))
			assert.Equal(t, []string{"AAA", "BBB", "CCC"}, collect(t, s))
			assert.Equal(t, 3, s.Len())
		})
	}
}

func TestSegmentStore_GetInOrder_incomplete(t *testing.T) {
	for name, s := range storeImplementations(t, 4) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(0, []byte("a")))
			require.NoError(t, s.Put(3, []byte("d")))

			seq, err := s.GetInOrder()
			assert.Nil(t, seq)
			require.ErrorIs(t, err, ErrIncompleteStore)
			var ise *IncompleteStoreError
			require.ErrorAs(t, err, &ise)
			assert.Equal(t, []int{1, 2}, ise.Missing)
			assert.Equal(t, 4, ise.Expected)
			assert.Equal(t, KindIncompleteStore, Kind(err))
		})
	}
}

func TestSegmentStore_Clear_then_reuse(t *testing.T) {
	for name, s := range storeImplementations(t, 2) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(0, []byte("x")))
			require.NoError(t, s.Put(1, []byte("y")))
			require.NoError(t, s.Clear())

			_, err := s.GetInOrder()
			require.ErrorIs(t, err, ErrIncompleteStore)

			require.NoError(t, s.Put(1, []byte("y2")))
			require.NoError(t, s.Put(0, []byte("x2")))
			assert.Equal(t, []string{"x2", "y2"}, collect(t, s))
		})
	}
}

func TestSegmentStore_Put_out_of_range(t *testing.T) {
	for name, s := range storeImplementations(t, 2) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Put(-1, []byte("x")))
			assert.Error(t, s.Put(2, []byte("x")))
		})
	}
}

func TestSegmentStore_iteration_stops_early(t *testing.T) {
	for name, s := range storeImplementations(t, 3) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				require.NoError(t, s.Put(i, []byte{byte('a' + i)}))
			}
			seq, err := s.GetInOrder()
			require.NoError(t, err)
			var seen int
			for range seq {
				seen++
				break
			}
			assert.Equal(t, 1, seen)
		})
	}
}

func TestDirStore_layout_and_clear(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ep1")
	s := NewDirStore(dir, 2)
	assert.Equal(t, dir, s.Dir())

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "directory is created lazily")

	require.NoError(t, s.Put(1, []byte("second")))
	data, err := os.ReadFile(filepath.Join(dir, "000001.seg"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	require.NoError(t, s.Clear())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, s.Clear(), "clearing twice is fine")
}

func TestMemStore_Put_copies(t *testing.T) {
	s := NewMemStore(1)
	buf := []byte("abc")
	require.NoError(t, s.Put(0, buf))
	buf[0] = 'X'
	assert.Equal(t, []string{"abc"}, collect(t, s))
}
