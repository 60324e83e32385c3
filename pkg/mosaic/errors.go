package mosaic

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds. Use errors.Is against these; the typed errors below carry detail.
var (
	// ErrConfiguration is fatal: the session cannot start.
	ErrConfiguration = errors.New("configuration error")

	// ErrGeometry is isolated to one site, for the whole session.
	ErrGeometry = errors.New("geometry error")

	// ErrDataUnavailable is isolated to one site, for one frame.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrDownload is isolated to one site, for one frame.
	ErrDownload = errors.New("download error")
)

type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// GeometryError means a site's valid pixels can't describe a field of view.
type GeometryError struct {
	Site   string
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("site '%s' footprint: %s", e.Site, e.Reason)
}
func (e *GeometryError) Is(target error) bool { return target == ErrGeometry }

// DataUnavailableError means there is no local image close enough to the requested time.
type DataUnavailableError struct {
	Site   string
	Time   time.Time
	Reason string
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("site '%s' @%s: no data: %s", e.Site, e.Time.Format(time.RFC3339), e.Reason)
}
func (e *DataUnavailableError) Is(target error) bool { return target == ErrDataUnavailable }

// DownloadError means a remote fetch was attempted, and failed.
type DownloadError struct {
	Site string
	URL  string
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("site '%s' download '%s': %v", e.Site, e.URL, e.Err)
}
func (e *DownloadError) Is(target error) bool { return target == ErrDownload }
func (e *DownloadError) Unwrap() error        { return e.Err }
