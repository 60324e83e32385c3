package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/abworrall/mango-mosaic/pkg/fpstore"
	"github.com/abworrall/mango-mosaic/pkg/mango"
	"github.com/abworrall/mango-mosaic/pkg/mosaic"
	"github.com/abworrall/mango-mosaic/pkg/render"
)

var (
	fConfigFile string
	fVerbosity  int
	fTime       string
	fDate       string
	fStart      time.Duration
	fEnd        time.Duration
	fStep       time.Duration
	fSites      string
	fOutputDir  string
	fTonemapper string
	fColormap   string
	fHDR        bool
	fDownload   bool
	fFiller     string
	fWorkers    int
)

func init() {
	flag.StringVar(&fConfigFile, "c", "", "YAML config file (MOSAIC_* env vars override it)")
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")

	flag.StringVar(&fTime, "time", "", "make one mosaic for this UT time, e.g. 2017-05-28T06:00:00Z")
	flag.StringVar(&fDate, "date", "", "make all the mosaics for this UT night, e.g. 2017-05-28")
	flag.DurationVar(&fStart, "start", mosaic.DefaultSeriesStart, "with -date, first frame as an offset from midnight UT")
	flag.DurationVar(&fEnd, "end", mosaic.DefaultSeriesEnd, "with -date, last frame as an offset from midnight UT")
	flag.DurationVar(&fStep, "step", mosaic.DefaultSeriesStep, "with -date, time between frames")

	flag.StringVar(&fSites, "sites", "", "comma separated site names (default: all sites in the site file)")
	flag.StringVar(&fOutputDir, "o", "", "output directory")
	flag.StringVar(&fTonemapper, "tonemapper", "", "how to tonemap to PNG: "+strings.Join(render.Tonemappers, ","))
	flag.StringVar(&fColormap, "colormap", "", "PNG colors: "+strings.Join(render.Colormaps, ","))
	flag.BoolVar(&fHDR, "hdr", false, "also write a Radiance .hdr file per mosaic")
	flag.BoolVar(&fDownload, "download", false, "download archives that aren't in the data dir")
	flag.StringVar(&fFiller, "filler", "", "how to merge the sites: "+strings.Join(mosaic.FillerNames, ","))
	flag.IntVar(&fWorkers, "workers", 0, "sites to process at once")
	flag.Parse()

	log.Printf("mango-mosaic starting\n")
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("can't parse time '%s'", s)
}

// Flags override the config file, when they are set.
func applyFlags(cfg *mosaic.Config) {
	if fVerbosity > 0 {
		cfg.Verbosity = fVerbosity
	}
	if fSites != "" {
		cfg.Sites = strings.Split(fSites, ",")
	}
	if fOutputDir != "" {
		cfg.Output.Dir = fOutputDir
	}
	if fTonemapper != "" {
		cfg.Output.Tonemapper = fTonemapper
	}
	if fColormap != "" {
		cfg.Output.Colormap = fColormap
	}
	if fFiller != "" {
		cfg.Filler = fFiller
	}
	if fWorkers > 0 {
		cfg.Workers = fWorkers
	}

	// Just set the bool vars, if they were turned on
	cfg.Output.HDR = cfg.Output.HDR || fHDR
	cfg.Download = cfg.Download || fDownload
}

func frameTimes() ([]time.Time, error) {
	switch {
	case fTime != "" && fDate != "":
		return nil, fmt.Errorf("want one of -time or -date, not both")
	case fTime != "":
		t, err := parseTime(fTime)
		return []time.Time{t}, err
	case fDate != "":
		d, err := time.ParseInLocation("2006-01-02", fDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("-date: %v", err)
		}
		return mosaic.FrameTimes(d, fStart, fEnd, fStep)
	}
	return nil, fmt.Errorf("want one of -time or -date")
}

func run(ctx context.Context) error {
	times, err := frameTimes()
	if err != nil {
		return err
	}

	cfg, err := mosaic.LoadConfig(fConfigFile)
	if err != nil {
		return err
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Verbosity > 0 {
		log.Printf("Final configuration:-\n\n%s\n", cfg.AsYaml())
	}

	reg, err := mango.LoadRegistry(cfg.SiteFile)
	if err != nil {
		return err
	}
	sites, err := reg.Select(cfg.Sites)
	if err != nil {
		return err
	}

	var store mosaic.FootprintStore
	if cfg.CacheFile != "" {
		st, err := fpstore.Open(cfg.CacheFile)
		if err != nil {
			return err
		}
		defer st.Close()
		store = st
	}

	sess, err := mosaic.NewSession(cfg, sites, mango.NewSourceFromConfig(cfg, 0), store)
	if err != nil {
		return err
	}
	log.Printf("%s, %d frames from %s", sess, len(times), times[0].Format(time.RFC3339))

	return sess.Series(ctx, times, func(m *mosaic.Mosaic) error {
		for i, s := range m.Sites {
			if !m.Present(i) && cfg.Verbosity > 0 {
				log.Printf("  %s absent: %v", s.Name, m.SiteErrs[i])
			}
		}
		_, err := render.Export(m, cfg.Output)
		return err
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal(err)
	}
	log.Printf("mango-mosaic done\n")
}
