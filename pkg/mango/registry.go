package mango

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/abworrall/mango-mosaic/pkg/mosaic"
)

// A Registry is the list of camera sites, in the order of the site file.
//
// The site file is CSV with a header line, and columns
// name,code,lon,lat (degrees). Extra columns are ignored.
type Registry struct {
	Sites []mosaic.Site
}

func LoadRegistry(filename string) (*Registry, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, &mosaic.ConfigurationError{Field: "sitefile", Reason: err.Error()}
	}
	defer f.Close()

	r, err := ParseRegistry(f)
	if err != nil {
		return nil, &mosaic.ConfigurationError{Field: "sitefile", Reason: fmt.Sprintf("'%s': %v", filename, err)}
	}
	return r, nil
}

func ParseRegistry(in io.Reader) (*Registry, error) {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err == io.EOF {
		return nil, fmt.Errorf("empty site file")
	} else if err != nil {
		return nil, err
	}

	reg := Registry{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) < 4 {
			return nil, fmt.Errorf("line %d: want name,code,lon,lat, got %d fields", line, len(rec))
		}

		s := mosaic.Site{Name: strings.TrimSpace(rec[0]), Code: strings.TrimSpace(rec[1])}
		if s.Lon, err = strconv.ParseFloat(strings.TrimSpace(rec[2]), 64); err != nil {
			return nil, fmt.Errorf("line %d: lon: %v", line, err)
		}
		if s.Lat, err = strconv.ParseFloat(strings.TrimSpace(rec[3]), 64); err != nil {
			return nil, fmt.Errorf("line %d: lat: %v", line, err)
		}
		if s.Lat < -90 || s.Lat > 90 {
			return nil, fmt.Errorf("line %d: lat %g out of range", line, s.Lat)
		}
		if _, dup := reg.Lookup(s.Name); dup {
			return nil, fmt.Errorf("line %d: site '%s' listed twice", line, s.Name)
		}
		reg.Sites = append(reg.Sites, s)
	}

	return &reg, nil
}

func (r *Registry) Lookup(name string) (mosaic.Site, bool) {
	for _, s := range r.Sites {
		if s.Name == name {
			return s, true
		}
	}
	return mosaic.Site{}, false
}

// Select returns the named sites, in registry order. No names means
// all sites. Asking for a site that isn't in the registry is an error.
func (r *Registry) Select(names []string) ([]mosaic.Site, error) {
	if len(names) == 0 {
		return append([]mosaic.Site{}, r.Sites...), nil
	}

	want := map[string]bool{}
	for _, n := range names {
		if _, exists := r.Lookup(n); !exists {
			return nil, &mosaic.ConfigurationError{Field: "sites", Reason: fmt.Sprintf("no site named '%s'", n)}
		}
		want[n] = true
	}

	out := []mosaic.Site{}
	for _, s := range r.Sites {
		if want[s.Name] {
			out = append(out, s)
		}
	}
	return out, nil
}
