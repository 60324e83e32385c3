package mosaic

import (
	"context"
	"fmt"
	"time"

	"github.com/abworrall/mango-mosaic/pkg/emath"
)

// A Site is one camera in the network. Sites are loaded once, and don't change during a session.
type Site struct {
	Name string
	Code string
	Lat  float64 // degrees
	Lon  float64 // degrees, either [-180,180) or [0,360)
}

func (s Site) String() string {
	return fmt.Sprintf("%s(%s) [%.3f,%.3f]", s.Name, s.Code, s.Lat, s.Lon)
}

// Lon360 is the site longitude in [0,360), which is what the grid uses.
func (s Site) Lon360() float64 { return emath.NormalizeLon360(s.Lon) }

// A SiteImage is one frame from one site, with the geodetic position
// of every pixel. Lat/Lon are NaN where the pixel has no valid mapping
// (outside the usable field of view, or below the elevation mask).
type SiteImage struct {
	Pixels emath.FloatGrid
	Lat    emath.FloatGrid
	Lon    emath.FloatGrid
	Time   time.Time // when the frame was actually taken
}

// Validate checks the three arrays line up.
func (si SiteImage) Validate() error {
	if si.Pixels.Len() == 0 {
		return fmt.Errorf("image has no pixels")
	}
	if !si.Pixels.SameShape(&si.Lat) || !si.Pixels.SameShape(&si.Lon) {
		return fmt.Errorf("image %dx%d, lat %dx%d, lon %dx%d: shapes differ",
			si.Pixels.Dx(), si.Pixels.Dy(), si.Lat.Dx(), si.Lat.Dy(), si.Lon.Dx(), si.Lon.Dy())
	}
	return nil
}

// An ImageSource finds the frame from a site that is nearest in time
// to t. It returns errors of kind ErrDataUnavailable when nothing is
// close enough locally, and ErrDownload when a remote fetch failed.
type ImageSource interface {
	Image(ctx context.Context, site Site, t time.Time) (SiteImage, error)
}

// ImageSourceFunc lets an ordinary function be an ImageSource.
type ImageSourceFunc func(ctx context.Context, site Site, t time.Time) (SiteImage, error)

func (f ImageSourceFunc) Image(ctx context.Context, site Site, t time.Time) (SiteImage, error) {
	return f(ctx, site, t)
}
