package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/routegrid/pkg/bounds"
	"github.com/chazu/routegrid/pkg/geom"
	"github.com/chazu/routegrid/pkg/voxel"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "grids.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testGrid(t *testing.T, opts ...voxel.Option) *voxel.Grid {
	t.Helper()
	v, err := bounds.FromBox(geom.NewBox(geom.P(0, 0, 0), geom.P(10, 10, 4)), 0.3)
	require.NoError(t, err)
	g, err := voxel.Build(v, 4, opts...)
	require.NoError(t, err)
	return g
}

func cellFlags(g *voxel.Grid) map[[3]int][2]bool {
	out := make(map[[3]int][2]bool, g.Len())
	for c := range g.All() {
		out[[3]int{c.I, c.J, c.K}] = [2]bool{c.Obstacle, c.Classified}
	}
	return out
}

func TestOpenTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grids.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Migrations are already applied; reopening is a no-op.
	s, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestSaveLoadClassified(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	g := testGrid(t)
	for i := 0; i < g.Dim(); i++ {
		for j := 0; j < g.Dim(); j++ {
			for k := 0; k < g.Dim(); k++ {
				require.NoError(t, g.SetObstacle(i, j, k, i == 1 && k >= 2))
			}
		}
	}

	id, err := s.Save(ctx, "frame", g)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, g.Dim(), got.Dim())
	assert.InDelta(t, g.Pitch(), got.Pitch(), 1e-12)
	assert.Equal(t, g.Box(), got.Box())
	assert.Equal(t, cellFlags(g), cellFlags(got))
	assert.Equal(t, 8, got.Stats().Obstacles)
}

func TestSaveLoadUnclassified(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	g := testGrid(t, voxel.WithInitialObstacle(true))
	id, err := s.Save(ctx, "blocked", g)
	require.NoError(t, err)

	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.InitialObstacle())
	assert.True(t, got.SuspiciousAllObstructed())
	assert.Equal(t, 0, got.Stats().Classified)
}

func TestGetAndList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	g := testGrid(t)
	require.NoError(t, g.SetObstacle(0, 0, 0, true))
	a, err := s.Save(ctx, "a", g)
	require.NoError(t, err)
	b, err := s.Save(ctx, "b", testGrid(t))
	require.NoError(t, err)

	rec, err := s.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Name)
	assert.Equal(t, 4, rec.Dim)
	assert.Equal(t, 1, rec.Obstacles)
	assert.True(t, rec.Classified)
	assert.Equal(t, g.Volume().Raw, rec.Raw)
	assert.Equal(t, g.Volume().Cube, rec.Cube)
	assert.InDelta(t, 0.3, rec.ExtensionRatio, 0)
	assert.False(t, rec.Created.IsZero())

	list, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := []uuid.UUID{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []uuid.UUID{a, b}, ids)
}

func TestListOrderedByCreation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	saves := []struct {
		name string
		at   time.Time
	}{
		{"whole second", base},
		{"tenth", base.Add(100 * time.Millisecond)},
		{"hundredths", base.Add(120 * time.Millisecond)},
		{"next second", base.Add(time.Second)},
	}
	for _, sv := range saves {
		s.now = func() time.Time { return sv.at }
		_, err := s.Save(ctx, sv.name, testGrid(t))
		require.NoError(t, err)
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, len(saves))
	for i, sv := range saves {
		assert.Equal(t, sv.name, list[i].Name)
		assert.True(t, sv.at.Equal(list[i].Created), "created = %v, want %v", list[i].Created, sv.at)
	}
}

func TestDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	g := testGrid(t)
	require.NoError(t, g.SetObstacle(1, 1, 1, true))
	id, err := s.Save(ctx, "gone", g)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, id))

	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Load(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, id), ErrNotFound)

	var cells int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM cells`).Scan(&cells))
	assert.Zero(t, cells)
}

func TestSaveNilGrid(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.Save(context.Background(), "nil", nil)
	assert.ErrorIs(t, err, geom.ErrInvalidArgument)
}
