// rebaseline_server compares actual GM images against their expectations
// and serves the results as JSON for the rebaseline UI.
package main

import (
	"context"
	"flag"
	"net/http"
	"path"
	"strings"

	"go.skia.org/rebaseline/gm/go/config"
	"go.skia.org/rebaseline/gm/go/imagecache"
	"go.skia.org/rebaseline/gm/go/imagediffdb"
	"go.skia.org/rebaseline/gm/go/imagediffdb/recordstore"
	"go.skia.org/rebaseline/gm/go/results"
	"go.skia.org/rebaseline/go/common"
	"go.skia.org/rebaseline/go/sklog"
)

// Command line flags.
var (
	configPaths = flag.String("config", "", "[required] Comma separated JSON5 config files, later files override earlier ones.")
	port        = flag.String("port", ":8000", "HTTP service address (e.g., ':8000')")
	promPort    = flag.String("prom_port", ":20000", "Metrics service address (e.g., ':10110')")
	debug       = flag.Bool("debug", false, "Log debug messages.")
)

func main() {
	common.InitWithMust(
		"rebaseline_server",
		common.PrometheusOpt(promPort),
		common.DebugLoggingOpt(debug),
	)
	if *configPaths == "" {
		sklog.Fatal("Must specify --config")
	}
	cfg, err := config.Load(strings.Split(*configPaths, ",")...)
	if err != nil {
		sklog.Fatalf("Invalid config: %s", err)
	}
	filter, err := cfg.Filter()
	if err != nil {
		sklog.Fatalf("Invalid builder patterns: %s", err)
	}
	ctx := context.Background()

	var gcsFetcher *imagecache.GCSFetcher
	if strings.HasPrefix(cfg.ImageBaseURL, "gs://") {
		// Auth note: storage.NewClient uses application default credentials.
		gcsFetcher, err = imagecache.NewGCSFetcher(ctx)
		if err != nil {
			sklog.Fatalf("Could not create GCS fetcher: %s", err)
		}
	}
	fetcher := imagecache.NewDefaultMuxFetcher(imagecache.NewHTTPFetcher(nil), gcsFetcher)

	var records *recordstore.Store
	if cfg.PersistRecords {
		records, err = recordstore.Open(cfg.StorageRoot)
		if err != nil {
			sklog.Fatalf("Could not open diff record store: %s", err)
		}
	}
	db, err := imagediffdb.New(imagediffdb.Options{
		StorageRoot:      cfg.StorageRoot,
		Fetcher:          fetcher,
		NumWorkers:       cfg.NumWorkers,
		DecodedCacheSize: cfg.DecodedCacheSize,
		Records:          records,
	})
	if err != nil {
		sklog.Fatalf("Could not create image diff db: %s", err)
	}

	aggCfg := results.Config{
		ActualsRoot:      cfg.ActualsRoot,
		ExpectationsRoot: cfg.ExpectationsRoot,
		ImageBaseURL:     cfg.ImageBaseURL,
		DiffBaseURL:      path.Join(staticPrefix, imagediffdb.DiffsDirName),
		WhiteDiffBaseURL: path.Join(staticPrefix, imagediffdb.WhiteDiffsDirName),
		Filter:           filter,
		IsEditable:       cfg.Editable,
		IsExported:       cfg.Exported,
		RefreshInterval:  cfg.RefreshInterval.Duration,
	}
	srv, err := newServer(cfg.StorageRoot, func() (*results.Aggregator, error) {
		return results.New(db, aggCfg)
	})
	if err != nil {
		sklog.Fatalf("Could not load results: %s", err)
	}
	if cfg.RefreshInterval.Duration > 0 {
		go srv.reloadEvery(ctx, cfg.RefreshInterval.Duration)
	}

	http.Handle("/", srv.routes())
	sklog.Infof("Ready to serve on %s", *port)
	sklog.Fatal(http.ListenAndServe(*port, nil))
}
