// Package config holds the configuration of the rebaseline server.
package config

import (
	"go.skia.org/rebaseline/gm/go/results"
	"go.skia.org/rebaseline/go/config"
	"go.skia.org/rebaseline/go/skerr"
)

// ServerConfig is read from one or more JSON5 files.
type ServerConfig struct {
	// StorageRoot is the local directory downloaded images, diff images and
	// diff records are kept in.
	StorageRoot string `json:"storage_root"`

	// ActualsRoot holds <builder>/*.json actual results.
	ActualsRoot string `json:"actuals_root"`

	// ExpectationsRoot holds <builder>/*.json expectations.
	ExpectationsRoot string `json:"expectations_root" optional:"true"`

	// ImageBaseURL is where actual and expected images are fetched from,
	// e.g. "gs://chromium-skia-gm/gm" or an https URL.
	ImageBaseURL string `json:"image_base_url"`

	// Regexes selecting which builders to show. See results.Filter.
	MatchBuilders []string `json:"match_builders" optional:"true"`
	SkipBuilders  []string `json:"skip_builders" optional:"true"`

	// NumWorkers is the number of background diff workers.
	NumWorkers int `json:"num_workers" optional:"true"`

	// DecodedCacheSize is the number of decoded images kept in RAM.
	DecodedCacheSize int `json:"decoded_cache_size" optional:"true"`

	// RefreshInterval is how often results are reloaded. Zero disables
	// reloading.
	RefreshInterval config.Duration `json:"refresh_interval" optional:"true"`

	// PersistRecords keeps diff records on disk across restarts.
	PersistRecords bool `json:"persist_records"`

	Editable bool `json:"editable"`
	Exported bool `json:"exported"`
}

// Load reads and validates the config files in paths, later files overriding
// earlier ones.
func Load(paths ...string) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := config.LoadFromJSON5(&cfg, paths...); err != nil {
		return nil, skerr.Wrap(err)
	}
	if _, err := cfg.Filter(); err != nil {
		return nil, skerr.Wrapf(err, "invalid builder patterns")
	}
	if cfg.RefreshInterval.Duration < 0 {
		return nil, skerr.Fmt("refresh_interval must not be negative, got %s", cfg.RefreshInterval)
	}
	return &cfg, nil
}

// Filter returns the builder filter described by the config.
func (c *ServerConfig) Filter() (*results.Filter, error) {
	return results.NewFilter(c.MatchBuilders, c.SkipBuilders)
}
