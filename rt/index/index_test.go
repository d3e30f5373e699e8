package index

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	recs := []ImageRecord{
		{RegionID: 1, Path: "b.png", Slice: 1, TileX: 0, TileY: 0},
		{RegionID: 1, Path: "a.png", Slice: 0, TileX: 1, TileY: 0},
		{RegionID: 1, Path: "c.png", Slice: 0, TileX: 0, TileY: 1},
		{RegionID: 1, Path: "d.png", Slice: 0, TileX: 0, TileY: 0},
		{RegionID: 2, Path: "other.png"},
	}
	for _, r := range recs {
		require.NoError(t, s.Add(r))
	}
	// Re-adding the same path does not duplicate.
	require.NoError(t, s.Add(recs[0]))

	stack, err := s.Stack(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"d.png", "a.png", "c.png", "b.png"}, Paths(stack))

	require.NoError(t, s.Reset(1))
	stack, err = s.Stack(1)
	require.NoError(t, err)
	assert.Empty(t, stack)

	stack, err = s.Stack(2)
	require.NoError(t, err)
	assert.Len(t, stack, 1)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "index.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Add(ImageRecord{RegionID: 3, Path: "/abs/x.png", Slice: 4, TileX: 5, TileY: 6, Timestep: 7}))
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var slice, x, y, ts int
	row := db.QueryRow(`SELECT slice, tile_x, tile_y, timestep FROM images WHERE region_id=3 AND path='/abs/x.png'`)
	require.NoError(t, row.Scan(&slice, &x, &y, &ts))
	assert.Equal(t, []int{4, 5, 6, 7}, []int{slice, x, y, ts})
}

func TestOpenSQLiteRejectsEmptyPath(t *testing.T) {
	_, err := OpenSQLite("")
	assert.Error(t, err)
}
