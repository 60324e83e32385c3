package mosaic

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is prepended to every environment override, e.g. MOSAIC_GRID_LATSTEP.
const EnvPrefix = "MOSAIC"

type Config struct {
	Verbosity int `yaml:"verbosity"`

	Grid GridBounds `yaml:"grid"`

	DataDir  string   `yaml:"datadir" validate:"required"`
	SiteFile string   `yaml:"sitefile" validate:"required"`
	Sites    []string `yaml:"sites,omitempty"` // restrict to these site names; empty means all

	CacheFile    string `yaml:"cachefile"` // durable footprint cache; empty means memory only
	CacheEntries int    `yaml:"cacheentries" validate:"gte=0"`

	Tolerance    time.Duration `yaml:"tolerance" validate:"gte=0"`
	Download     bool          `yaml:"download"`
	RemoteURL    string        `yaml:"remoteurl" validate:"omitempty,startswith=http"`
	FetchTimeout time.Duration `yaml:"fetchtimeout" validate:"gte=0"`

	Workers int    `yaml:"workers" validate:"gte=0"`
	Filler  string `yaml:"filler" validate:"omitempty,oneof=nearest mean"`

	Output OutputConfig `yaml:"output"`
}

// OutputConfig controls what gets written for each mosaic.
type OutputConfig struct {
	Dir        string `yaml:"dir"`
	Tonemapper string `yaml:"tonemapper" validate:"omitempty,oneof=linear drago03 reinhard05"`
	Colormap   string `yaml:"colormap" validate:"omitempty,oneof=gray heat"`
	HDR        bool   `yaml:"hdr"` // also write a Radiance .hdr file
}

// DefaultRemoteURL is where the per-site daily archives are mirrored.
const DefaultRemoteURL = "https://data.mango.sri.com/MANGOProcessed/{name}/{date}/{code}{date}.mga"

func NewConfig() Config {
	return Config{
		Grid:         DefaultGridBounds(),
		DataDir:      ".",
		SiteFile:     "SiteInformation.csv",
		CacheEntries: DefaultCacheEntries,
		Tolerance:    5 * time.Minute,
		RemoteURL:    DefaultRemoteURL,
		FetchTimeout: 60 * time.Second,
		Workers:      4,
		Filler:       "nearest",
		Output: OutputConfig{
			Dir:        ".",
			Tonemapper: "linear",
			Colormap:   "gray",
		},
	}
}

func NewConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.Unmarshal(b, &c)
	return c, err
}

func (c Config) AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Fatalf("Can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

// LoadConfig builds the config in layers: defaults, then the YAML
// file (if filename isn't empty), then a .env file, then MOSAIC_*
// environment variables. The result is validated.
func LoadConfig(filename string) (Config, error) {
	c := NewConfig()

	if filename != "" {
		b, err := os.ReadFile(filename)
		if err != nil {
			return c, &ConfigurationError{"file", err.Error()}
		}
		if c, err = NewConfigFromYaml(b); err != nil {
			return c, &ConfigurationError{"file", fmt.Sprintf("parse '%s': %v", filename, err)}
		}
	}

	// A missing .env is fine; it never overrides the real environment
	_ = godotenv.Load()

	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return c, &ConfigurationError{"env", err.Error()}
	}

	return c, c.Validate()
}

// Validate checks field constraints, and that the grid is not degenerate.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigurationError{fe.Namespace(), fmt.Sprintf("failed '%s' check (value %v)", fe.Tag(), fe.Value())}
		}
		return &ConfigurationError{"config", err.Error()}
	}
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	if _, err := GetFiller(c.Filler); err != nil {
		return err
	}
	return nil
}

// CompositeOptions is the slice of config that Composite needs.
func (c Config) CompositeOptions() CompositeOptions {
	fill, err := GetFiller(c.Filler)
	if err != nil {
		fill = FillByNearest
	}
	return CompositeOptions{
		Workers:      c.Workers,
		FetchTimeout: c.FetchTimeout,
		Tolerance:    c.Tolerance,
		Fill:         fill,
	}
}
