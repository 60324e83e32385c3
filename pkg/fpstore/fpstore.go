// Package fpstore keeps footprint maps in a sqlite file, so they survive
// from one run to the next.
package fpstore

import (
	"bytes"
	"database/sql"
	_ "embed"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"
	_ "modernc.org/sqlite"

	"github.com/abworrall/mango-mosaic/pkg/emath"
	"github.com/abworrall/mango-mosaic/pkg/mosaic"
)

// schema.sql defines the single footprints table.
//
//go:embed schema.sql
var schemaSQL string

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
}

// Store implements mosaic.FootprintStore.
type Store struct {
	*sql.DB
	path string
}

var _ mosaic.FootprintStore = (*Store)(nil)

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("fpstore open '%s': %w", path, err)
	}
	db.SetMaxOpenConns(1) // one writer; concurrent callers queue here rather than get SQLITE_BUSY

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("fpstore '%s': %s: %w", path, p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("fpstore '%s': schema: %w", path, err)
	}

	mosaic.Logf("[fpstore] opened footprint cache %s", path)
	return &Store{DB: db, path: path}, nil
}

func (s *Store) String() string { return fmt.Sprintf("fpstore[%s]", s.path) }

// encodeIndex compresses the footprint indices with gob and gzip.
func encodeIndex(values []float64) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(values); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeIndex(blob []byte) ([]float64, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty index blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var values []float64
	if err := gob.NewDecoder(gz).Decode(&values); err != nil {
		return nil, fmt.Errorf("failed to decode index: %w", err)
	}
	return values, nil
}

// LoadFootprint returns (nil, nil) if there is no entry for key.
func (s *Store) LoadFootprint(key string) (*mosaic.FootprintMap, error) {
	row := s.QueryRow(`
		SELECT site, grid_cols, grid_rows, src_cols, src_rows, index_blob
		FROM footprints WHERE cache_key = ?`, key)

	var fm mosaic.FootprintMap
	var cols, rows int
	var blob []byte
	err := row.Scan(&fm.Site, &cols, &rows, &fm.SrcCols, &fm.SrcRows, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("fpstore load '%s': %w", key, err)
	}

	values, err := decodeIndex(blob)
	if err != nil {
		return nil, fmt.Errorf("fpstore load '%s': %w", key, err)
	}
	if len(values) != cols*rows {
		return nil, fmt.Errorf("fpstore load '%s': %d values for a %dx%d grid", key, len(values), cols, rows)
	}
	if fm.Index, err = emath.NewFloatGridFrom(cols, values); err != nil {
		return nil, fmt.Errorf("fpstore load '%s': %w", key, err)
	}

	return &fm, nil
}

// SaveFootprint writes (or overwrites) the entry for key.
func (s *Store) SaveFootprint(key string, b mosaic.GridBounds, fm *mosaic.FootprintMap) error {
	blob, err := encodeIndex(fm.Index.Values())
	if err != nil {
		return fmt.Errorf("fpstore save '%s': %w", key, err)
	}

	_, err = s.Exec(`
		INSERT OR REPLACE INTO footprints (
			cache_key, site,
			lat_min, lat_max, lat_step, lon_min, lon_max, lon_step,
			grid_cols, grid_rows, src_cols, src_rows, mapped_cells,
			index_blob, written_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key, fm.Site,
		b.LatMin, b.LatMax, b.LatStep, b.LonMin, b.LonMax, b.LonStep,
		fm.Index.Dx(), fm.Index.Dy(), fm.SrcCols, fm.SrcRows, fm.Index.CountFinite(),
		blob, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("fpstore save '%s': %w", key, err)
	}
	return nil
}

// An Entry describes one cached footprint, without its indices.
type Entry struct {
	Key         string
	Site        string
	Bounds      mosaic.GridBounds
	GridCols    int
	GridRows    int
	MappedCells int
	BlobBytes   int
	Written     time.Time
}

func (e Entry) String() string {
	return fmt.Sprintf("%-24s %-8s %s %dx%d, %d mapped, %d bytes, %s",
		e.Key, e.Site, e.Bounds, e.GridCols, e.GridRows, e.MappedCells, e.BlobBytes, e.Written.UTC().Format(time.RFC3339))
}

// Entries lists what's in the cache, ordered by site then key.
func (s *Store) Entries() ([]Entry, error) {
	rows, err := s.Query(`
		SELECT cache_key, site, lat_min, lat_max, lat_step, lon_min, lon_max, lon_step,
		       grid_cols, grid_rows, mapped_cells, length(index_blob), written_unix_nanos
		FROM footprints ORDER BY site, cache_key`)
	if err != nil {
		return nil, fmt.Errorf("fpstore entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var nanos int64
		b := &e.Bounds
		if err := rows.Scan(&e.Key, &e.Site, &b.LatMin, &b.LatMax, &b.LatStep, &b.LonMin, &b.LonMax, &b.LonStep,
			&e.GridCols, &e.GridRows, &e.MappedCells, &e.BlobBytes, &nanos); err != nil {
			return nil, fmt.Errorf("fpstore entries: %w", err)
		}
		e.Written = time.Unix(0, nanos)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteSite drops every entry for a site, e.g. after its camera is recalibrated.
func (s *Store) DeleteSite(site string) (int64, error) {
	res, err := s.Exec(`DELETE FROM footprints WHERE site = ?`, site)
	if err != nil {
		return 0, fmt.Errorf("fpstore delete '%s': %w", site, err)
	}
	return res.RowsAffected()
}
