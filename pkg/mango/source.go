package mango

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/abworrall/mango-mosaic/pkg/mosaic"
)

// DefaultOpenArchives is how many decoded archives a Source keeps around.
const DefaultOpenArchives = 16

// Source implements mosaic.ImageSource over daily archives in a data
// dir. If it has a Fetcher, archives that aren't on disk are
// downloaded first.
type Source struct {
	DataDir   string
	Tolerance time.Duration // 0 means any frame in the day will do
	Fetcher   *Fetcher      // nil means never download

	archives *lru.Cache[string, *Archive]
	group    singleflight.Group
}

var _ mosaic.ImageSource = (*Source)(nil)

func NewSource(dataDir string, tolerance time.Duration, fetcher *Fetcher, openArchives int) *Source {
	if openArchives <= 0 {
		openArchives = DefaultOpenArchives
	}
	archives, err := lru.New[string, *Archive](openArchives)
	if err != nil {
		panic(err)
	}
	return &Source{
		DataDir:   dataDir,
		Tolerance: tolerance,
		Fetcher:   fetcher,
		archives:  archives,
	}
}

// NewSourceFromConfig wires up a Source the way the config says.
func NewSourceFromConfig(cfg mosaic.Config, openArchives int) *Source {
	var f *Fetcher
	if cfg.Download {
		f = NewFetcher(cfg.RemoteURL, cfg.DataDir, cfg.FetchTimeout)
	}
	return NewSource(cfg.DataDir, cfg.Tolerance, f, openArchives)
}

// Image returns the frame from site nearest in time to t.
func (s *Source) Image(ctx context.Context, site mosaic.Site, t time.Time) (mosaic.SiteImage, error) {
	a, err := s.archive(ctx, site, t)
	if err != nil {
		return mosaic.SiteImage{}, err
	}

	i, actual, ok := a.Nearest(t)
	if !ok {
		return mosaic.SiteImage{}, &mosaic.DataUnavailableError{Site: site.Name, Time: t, Reason: "archive has no frames"}
	}
	if gap := actual.Sub(t).Abs(); s.Tolerance > 0 && gap > s.Tolerance {
		return mosaic.SiteImage{}, &mosaic.DataUnavailableError{Site: site.Name, Time: t,
			Reason: fmt.Sprintf("nearest frame is %s, %s away", actual.Format("15:04:05"), gap)}
	}

	return a.Frame(i)
}

func (s *Source) archive(ctx context.Context, site mosaic.Site, t time.Time) (*Archive, error) {
	path := ArchivePath(s.DataDir, site, t)
	if a, ok := s.archives.Get(path); ok {
		return a, nil
	}

	v, err, _ := s.group.Do(path, func() (interface{}, error) {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			if s.Fetcher == nil {
				return nil, &mosaic.DataUnavailableError{Site: site.Name, Time: t, Reason: fmt.Sprintf("no file %s", path)}
			}
			if _, err := s.Fetcher.Fetch(ctx, site, t); err != nil {
				return nil, err
			}
		}

		a, err := ReadArchive(path)
		if err != nil {
			return nil, &mosaic.DataUnavailableError{Site: site.Name, Time: t, Reason: err.Error()}
		}
		if a.SiteCode != "" && a.SiteCode != site.Code {
			return nil, &mosaic.DataUnavailableError{Site: site.Name, Time: t,
				Reason: fmt.Sprintf("%s holds site code '%s', want '%s'", path, a.SiteCode, site.Code)}
		}

		mosaic.Logf("[Source] loaded %s: %s", path, a)
		s.archives.Add(path, a)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Archive), nil
}
