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

	"golang.org/x/sync/errgroup"

	"github.com/abworrall/mango-mosaic/pkg/fpstore"
	"github.com/abworrall/mango-mosaic/pkg/mango"
	"github.com/abworrall/mango-mosaic/pkg/mosaic"
)

var (
	fConfigFile string
	fDate       string
	fSites      string
	fListCache  bool
	fPurgeSite  string
)

func init() {
	flag.StringVar(&fConfigFile, "c", "", "YAML config file (MOSAIC_* env vars override it)")
	flag.StringVar(&fDate, "date", "", "download every site's archive for this UT day, e.g. 2017-05-28")
	flag.StringVar(&fSites, "sites", "", "comma separated site names (default: all sites in the site file)")
	flag.BoolVar(&fListCache, "listcache", false, "list what's in the footprint cache file")
	flag.StringVar(&fPurgeSite, "purgesite", "", "drop all cached footprints for this site")
	flag.Parse()
}

func fetchAll(ctx context.Context, cfg mosaic.Config, day time.Time) error {
	reg, err := mango.LoadRegistry(cfg.SiteFile)
	if err != nil {
		return err
	}
	sites, err := reg.Select(cfg.Sites)
	if err != nil {
		return err
	}

	f := mango.NewFetcher(cfg.RemoteURL, cfg.DataDir, cfg.FetchTimeout)
	paths := make([]string, len(sites))
	errs := make([]error, len(sites))

	var eg errgroup.Group
	if cfg.Workers > 0 {
		eg.SetLimit(cfg.Workers)
	}
	for i := range sites {
		i := i
		eg.Go(func() error {
			paths[i], errs[i] = f.Fetch(ctx, sites[i], day)
			return nil
		})
	}
	eg.Wait()

	nFailed := 0
	for i, s := range sites {
		if errs[i] != nil {
			log.Printf("  %-30s FAILED: %v", s.Name, errs[i])
			nFailed++
		} else {
			log.Printf("  %-30s %s", s.Name, paths[i])
		}
	}
	if nFailed > 0 {
		return fmt.Errorf("%d of %d sites failed to download (mirror %s)", nFailed, len(sites), f.State())
	}
	return ctx.Err()
}

func cacheOps(cfg mosaic.Config) error {
	if cfg.CacheFile == "" {
		return fmt.Errorf("no cachefile in the config")
	}
	st, err := fpstore.Open(cfg.CacheFile)
	if err != nil {
		return err
	}
	defer st.Close()

	if fPurgeSite != "" {
		n, err := st.DeleteSite(fPurgeSite)
		if err != nil {
			return err
		}
		log.Printf("%s: dropped %d footprints for '%s'", st, n, fPurgeSite)
	}

	if fListCache {
		entries, err := st.Entries()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Println(e)
		}
		log.Printf("%s: %d footprints", st, len(entries))
	}
	return nil
}

func run(ctx context.Context) error {
	cfg, err := mosaic.LoadConfig(fConfigFile)
	if err != nil {
		return err
	}
	if fSites != "" {
		cfg.Sites = strings.Split(fSites, ",")
	}

	if fListCache || fPurgeSite != "" {
		if err := cacheOps(cfg); err != nil {
			return err
		}
	}

	if fDate == "" {
		return nil
	}
	day, err := time.ParseInLocation("2006-01-02", fDate, time.UTC)
	if err != nil {
		return fmt.Errorf("-date: %v", err)
	}
	log.Printf("Fetching %s archives into %s", day.Format("2006-01-02"), cfg.DataDir)
	return fetchAll(ctx, cfg, day)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal(err)
	}
}
