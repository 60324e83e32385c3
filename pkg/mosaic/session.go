package mosaic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// A Session owns everything that is fixed across a run of mosaics: the
// grid, the site list, the hierarchy and the footprint cache. It is
// safe for concurrent use once built.
type Session struct {
	ID        string
	Config    Config
	Grid      *GeoGrid
	Sites     []Site
	Hierarchy *Hierarchy
	Cache     *FootprintCache

	src  ImageSource
	opts CompositeOptions
}

// NewSession builds the grid and the hierarchy. store may be nil, for
// a footprint cache that only lives as long as the session.
func NewSession(cfg Config, sites []Site, src ImageSource, store FootprintStore) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, &ConfigurationError{"source", "no image source"}
	}

	g, err := BuildGrid(cfg.Grid)
	if err != nil {
		return nil, err
	}

	s := Session{
		ID:        uuid.NewString(),
		Config:    cfg,
		Grid:      g,
		Sites:     sites,
		Hierarchy: BuildHierarchy(g, sites),
		Cache:     NewFootprintCache(store, cfg.CacheEntries),
		src:       src,
		opts:      cfg.CompositeOptions(),
	}

	Logf("[Session %s] %s, %d sites", s.ID, g, len(sites))
	return &s, nil
}

func (s *Session) String() string {
	return fmt.Sprintf("Session[%s, %s, %d sites]", s.ID, s.Grid, len(s.Sites))
}

// Composite builds the mosaic for time t.
func (s *Session) Composite(ctx context.Context, t time.Time) (*Mosaic, error) {
	return Composite(ctx, t, s.Grid, s.Hierarchy, s.Sites, s.src, s.Cache, s.opts)
}

// Footprint returns the cached footprint of a site, computing it from
// an image taken at t if needed.
func (s *Session) Footprint(ctx context.Context, site Site, t time.Time) (*FootprintMap, error) {
	img, err := s.src.Image(ctx, site, t)
	if err != nil {
		return nil, err
	}
	return s.Cache.Get(ctx, site, s.Grid, img)
}

// Series composites each of times in order, handing each mosaic to fn.
// Cancellation is checked between frames; a frame that has started
// runs to completion. An error from fn stops the series.
func (s *Session) Series(ctx context.Context, times []time.Time, fn func(*Mosaic) error) error {
	job := uuid.NewString()
	Logf("[Series %s] %d frames", job, len(times))

	for i, t := range times {
		if err := ctx.Err(); err != nil {
			Logf("[Series %s] cancelled after %d/%d frames", job, i, len(times))
			return err
		}

		m, err := s.Composite(context.WithoutCancel(ctx), t)
		if err != nil {
			return fmt.Errorf("series frame %s: %w", t.UTC().Format(time.RFC3339), err)
		}
		if err := fn(m); err != nil {
			return fmt.Errorf("series frame %s: %w", t.UTC().Format(time.RFC3339), err)
		}

		if s.Config.Verbosity > 0 {
			Logf("[Series %s] frame %d/%d done: %s", job, i+1, len(times), m)
		}
	}

	Logf("[Series %s] done", job)
	return nil
}

// Default schedule for a night of frames, all in UT.
const (
	DefaultSeriesStart = 2 * time.Hour
	DefaultSeriesEnd   = 11 * time.Hour
	DefaultSeriesStep  = 5 * time.Minute
)

// FrameTimes lists times on the given date (its UTC day), from start
// to end inclusive, every step.
func FrameTimes(date time.Time, start, end, step time.Duration) ([]time.Time, error) {
	if step <= 0 {
		return nil, &ConfigurationError{"step", fmt.Sprintf("must be > 0, got %s", step)}
	}
	if end < start {
		return nil, &ConfigurationError{"end", fmt.Sprintf("%s is before start %s", end, start)}
	}
	y, mo, d := date.UTC().Date()
	midnight := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)

	times := []time.Time{}
	for off := start; off <= end; off += step {
		times = append(times, midnight.Add(off))
	}
	return times, nil
}
