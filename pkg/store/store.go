// Package store persists voxel grids in SQLite. Only the parameters needed
// to rebuild a grid and its obstacle cells are stored; Load reconstructs the
// lattice with bounds.FromBox and voxel.Build.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/chazu/routegrid/pkg/bounds"
	"github.com/chazu/routegrid/pkg/geom"
	"github.com/chazu/routegrid/pkg/voxel"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when no grid has the requested id.
var ErrNotFound = errors.New("grid not found")

// Store is a grid database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Record describes a stored grid without its cells.
type Record struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Dim             int       `json:"dim"`
	Pitch           float64   `json:"pitch"`
	Raw             geom.Box  `json:"raw"`
	Cube            geom.Box  `json:"cube"`
	ExtensionRatio  float64   `json:"extension_ratio"`
	InitialObstacle bool      `json:"initial_obstacle"`
	Classified      bool      `json:"classified"`
	Obstacles       int       `json:"obstacles"`
	Created         time.Time `json:"created"`
}

func (r Record) String() string {
	return fmt.Sprintf("%s %q dim=%d pitch=%.4g obstacles=%d created=%s",
		r.ID, r.Name, r.Dim, r.Pitch, r.Obstacles, r.Created.Format(time.RFC3339))
}

// Open opens (creating if needed) the database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One writer at a time; SQLite serialises them anyway.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: migrations source: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("store: failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("store: failed to create migrate instance: %w", err)
	}
	// m is not closed: that would close db.
	m.Log = &migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger on top of log.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores g under name and returns its new id.
func (s *Store) Save(ctx context.Context, name string, g *voxel.Grid) (uuid.UUID, error) {
	if g == nil {
		return uuid.Nil, fmt.Errorf("store: save: nil grid: %w", geom.ErrInvalidArgument)
	}
	id := uuid.New()
	v := g.Volume()
	st := g.Stats()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO grids (
			grid_id, name, dim, pitch,
			raw_min_x, raw_min_y, raw_min_z, raw_max_x, raw_max_y, raw_max_z,
			cube_min_x, cube_min_y, cube_min_z, cube_max_x, cube_max_y, cube_max_z,
			extension_ratio, initial_obstacle, classified, obstacles, created
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), name, g.Dim(), g.Pitch(),
		v.Raw.Min[0], v.Raw.Min[1], v.Raw.Min[2], v.Raw.Max[0], v.Raw.Max[1], v.Raw.Max[2],
		v.Cube.Min[0], v.Cube.Min[1], v.Cube.Min[2], v.Cube.Max[0], v.Cube.Max[1], v.Cube.Max[2],
		v.ExtensionRatio, g.InitialObstacle(), st.Classified > 0, st.Obstacles,
		s.now().UnixNano(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: insert grid: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cells (grid_id, i, j, k, obstacle) VALUES (?, ?, ?, ?, 1)`)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: prepare cells: %w", err)
	}
	defer stmt.Close()
	for c := range g.Obstacles() {
		if _, err := stmt.ExecContext(ctx, id.String(), c.I, c.J, c.K); err != nil {
			return uuid.Nil, fmt.Errorf("store: insert cell (%d,%d,%d): %w", c.I, c.J, c.K, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("store: save: %w", err)
	}
	log.Printf("store: saved grid %s %q (%d obstacle cells)", id, name, st.Obstacles)
	return id, nil
}

const recordColumns = `
	grid_id, name, dim, pitch,
	raw_min_x, raw_min_y, raw_min_z, raw_max_x, raw_max_y, raw_max_z,
	cube_min_x, cube_min_y, cube_min_z, cube_max_x, cube_max_y, cube_max_z,
	extension_ratio, initial_obstacle, classified, obstacles, created`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r       Record
		id      string
		created int64
		raw     [6]float64
		cube    [6]float64
	)
	err := row.Scan(&id, &r.Name, &r.Dim, &r.Pitch,
		&raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &raw[5],
		&cube[0], &cube[1], &cube[2], &cube[3], &cube[4], &cube[5],
		&r.ExtensionRatio, &r.InitialObstacle, &r.Classified, &r.Obstacles, &created)
	if err != nil {
		return Record{}, err
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return Record{}, fmt.Errorf("store: grid id %q: %w", id, err)
	}
	r.Created = time.Unix(0, created).UTC()
	r.Raw = geom.NewBox(geom.P(raw[0], raw[1], raw[2]), geom.P(raw[3], raw[4], raw[5]))
	r.Cube = geom.NewBox(geom.P(cube[0], cube[1], cube[2]), geom.P(cube[3], cube[4], cube[5]))
	return r, nil
}

// Get returns the record of grid id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM grids WHERE grid_id = ?`, id.String())
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("store: grid %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("store: get %s: %w", id, err)
	}
	return r, nil
}

// List returns every stored grid, oldest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM grids ORDER BY created, name`)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return out, nil
}

// Load rebuilds grid id and re-applies its obstacle flags. A grid that went
// through classification comes back with every cell classified.
func (s *Store) Load(ctx context.Context, id uuid.UUID) (*voxel.Grid, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := bounds.FromBox(r.Raw, r.ExtensionRatio)
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", id, err)
	}
	g, err := voxel.Build(v, r.Dim, voxel.WithInitialObstacle(r.InitialObstacle))
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", id, err)
	}

	obstacles, err := s.obstacleSet(ctx, id)
	if err != nil {
		return nil, err
	}
	for idx := range obstacles {
		if idx[0] >= r.Dim || idx[1] >= r.Dim || idx[2] >= r.Dim {
			return nil, fmt.Errorf("store: load %s: cell (%d,%d,%d): %w", id, idx[0], idx[1], idx[2], voxel.ErrIndexOutOfRange)
		}
	}

	switch {
	case r.Classified:
		for i := 0; i < r.Dim; i++ {
			for j := 0; j < r.Dim; j++ {
				for k := 0; k < r.Dim; k++ {
					_, hit := obstacles[[3]int{i, j, k}]
					if err := g.SetObstacle(i, j, k, hit); err != nil {
						return nil, fmt.Errorf("store: load %s: %w", id, err)
					}
				}
			}
		}
	case !r.InitialObstacle:
		for idx := range obstacles {
			if err := g.SetObstacle(idx[0], idx[1], idx[2], true); err != nil {
				return nil, fmt.Errorf("store: load %s: %w", id, err)
			}
		}
	}
	return g, nil
}

func (s *Store) obstacleSet(ctx context.Context, id uuid.UUID) (map[[3]int]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT i, j, k FROM cells WHERE grid_id = ? AND obstacle = 1`, id.String())
	if err != nil {
		return nil, fmt.Errorf("store: cells %s: %w", id, err)
	}
	defer rows.Close()

	set := make(map[[3]int]struct{})
	for rows.Next() {
		var idx [3]int
		if err := rows.Scan(&idx[0], &idx[1], &idx[2]); err != nil {
			return nil, fmt.Errorf("store: cells %s: %w", id, err)
		}
		set[idx] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: cells %s: %w", id, err)
	}
	return set, nil
}

// Delete removes grid id and its cells.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cells WHERE grid_id = ?`, id.String()); err != nil {
		return fmt.Errorf("store: delete cells %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM grids WHERE grid_id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("store: grid %s: %w", id, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	log.Printf("store: deleted grid %s", id)
	return nil
}
