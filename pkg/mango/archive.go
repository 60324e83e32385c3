package mango

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/abworrall/mango-mosaic/pkg/emath"
	"github.com/abworrall/mango-mosaic/pkg/mosaic"
)

// ArchiveExt is the file extension of a daily archive.
const ArchiveExt = ".mga"

// DateLayout names a day in archive filenames and URLs, e.g. May2817.
const DateLayout = "Jan0206"

// An Archive holds one night of frames from one site: every image, and
// the per-pixel geodetic position (projected to the emission altitude)
// that all the frames share. On disk it is gob inside gzip.
type Archive struct {
	SiteName string
	SiteCode string
	SiteLat  float64
	SiteLon  float64

	Rows int
	Cols int

	Times     []int64     // unix seconds, ascending
	ImageData [][]float32 // per frame, Rows*Cols, row-major
	Latitude  []float64   // Rows*Cols; NaN where the pixel has no position
	Longitude []float64
}

func (a *Archive) String() string {
	if len(a.Times) == 0 {
		return fmt.Sprintf("Archive[%s %dx%d, no frames]", a.SiteCode, a.Cols, a.Rows)
	}
	return fmt.Sprintf("Archive[%s %dx%d, %d frames %s - %s]", a.SiteCode, a.Cols, a.Rows, len(a.Times),
		time.Unix(a.Times[0], 0).UTC().Format("15:04:05"), time.Unix(a.Times[len(a.Times)-1], 0).UTC().Format("15:04:05"))
}

// ArchiveName is the filename for a site's archive for the (UTC) day of t.
func ArchiveName(site mosaic.Site, t time.Time) string {
	return site.Code + t.UTC().Format(DateLayout) + ArchiveExt
}

// ArchivePath is where ArchiveName lives under the data dir.
func ArchivePath(dataDir string, site mosaic.Site, t time.Time) string {
	return filepath.Join(dataDir, site.Name, ArchiveName(site, t))
}

// Validate checks the arrays agree with Rows and Cols.
func (a *Archive) Validate() error {
	n := a.Rows * a.Cols
	switch {
	case n <= 0:
		return fmt.Errorf("bad shape %dx%d", a.Cols, a.Rows)
	case len(a.Latitude) != n || len(a.Longitude) != n:
		return fmt.Errorf("lat/lon have %d/%d values, want %d", len(a.Latitude), len(a.Longitude), n)
	case len(a.ImageData) != len(a.Times):
		return fmt.Errorf("%d frames but %d times", len(a.ImageData), len(a.Times))
	case !sort.SliceIsSorted(a.Times, func(i, j int) bool { return a.Times[i] < a.Times[j] }):
		return fmt.Errorf("times are not in order")
	}
	for i, frame := range a.ImageData {
		if len(frame) != n {
			return fmt.Errorf("frame %d has %d values, want %d", i, len(frame), n)
		}
	}
	return nil
}

// Nearest finds the frame closest in time to t. Ties go to the earlier frame.
func (a *Archive) Nearest(t time.Time) (int, time.Time, bool) {
	if len(a.Times) == 0 {
		return 0, time.Time{}, false
	}
	t0 := float64(t.UnixNano()) / 1e9

	best, bestGap := 0, -1.0
	for i, ts := range a.Times {
		gap := float64(ts) - t0
		if gap < 0 {
			gap = -gap
		}
		if bestGap < 0 || gap < bestGap {
			best, bestGap = i, gap
		}
	}
	return best, time.Unix(a.Times[best], 0).UTC(), true
}

// Frame turns frame i into a SiteImage. The geodetic arrays are copied,
// so the image can outlive changes to the archive.
func (a *Archive) Frame(i int) (mosaic.SiteImage, error) {
	if i < 0 || i >= len(a.ImageData) {
		return mosaic.SiteImage{}, fmt.Errorf("frame %d out of range [0,%d)", i, len(a.ImageData))
	}

	pix := make([]float64, len(a.ImageData[i]))
	for j, v := range a.ImageData[i] {
		pix[j] = float64(v)
	}

	img := mosaic.SiteImage{Time: time.Unix(a.Times[i], 0).UTC()}
	var err error
	if img.Pixels, err = emath.NewFloatGridFrom(a.Cols, pix); err != nil {
		return img, err
	}
	if img.Lat, err = emath.NewFloatGridFrom(a.Cols, append([]float64{}, a.Latitude...)); err != nil {
		return img, err
	}
	if img.Lon, err = emath.NewFloatGridFrom(a.Cols, append([]float64{}, a.Longitude...)); err != nil {
		return img, err
	}
	return img, nil
}

// AddFrame appends a frame; frames must be added in time order.
func (a *Archive) AddFrame(t time.Time, pixels []float32) error {
	if n := len(a.Times); n > 0 && t.Unix() <= a.Times[n-1] {
		return fmt.Errorf("frame at %s is not after the last frame", t.UTC().Format(time.RFC3339))
	}
	if len(pixels) != a.Rows*a.Cols {
		return fmt.Errorf("frame has %d values, want %d", len(pixels), a.Rows*a.Cols)
	}
	a.Times = append(a.Times, t.Unix())
	a.ImageData = append(a.ImageData, pixels)
	return nil
}

func ReadArchive(filename string) (*Archive, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("ReadArchive '%s': %w", filename, err)
	}
	defer gz.Close()

	var a Archive
	if err := gob.NewDecoder(gz).Decode(&a); err != nil {
		return nil, fmt.Errorf("ReadArchive '%s': %w", filename, err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("ReadArchive '%s': %w", filename, err)
	}
	return &a, nil
}

// WriteArchive writes the archive, creating the directory if needed. The
// file appears atomically, so a reader never sees half an archive.
func WriteArchive(filename string, a *Archive) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("WriteArchive '%s': %w", filename, err)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("WriteArchive '%s': %w", filename, err)
	}

	tmp := filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("WriteArchive '%s': %w", filename, err)
	}

	gz := gzip.NewWriter(f)
	err = gob.NewEncoder(gz).Encode(a)
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("WriteArchive '%s': %w", filename, err)
	}

	return os.Rename(tmp, filename)
}
