// Common tool initialization.
// import only from package main.
package common

import (
	"flag"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.skia.org/rebaseline/go/metrics2"
	"go.skia.org/rebaseline/go/skerr"
	"go.skia.org/rebaseline/go/sklog"
	"go.skia.org/rebaseline/go/sklog/sklogimpl"
	"go.skia.org/rebaseline/go/sklog/stdlogging"
)

// Opt represents the initialization parameters for a single init service.
//
// Opts are run in order(), first every preinit() and then every init().
// Construct the Opts that are desired and pass them to common.InitWith(), i.e.:
//
//	common.InitWith(
//		"rebaseline_server",
//		common.PrometheusOpt(promPort),
//	)
type Opt interface {
	// order is the sort order that Opts are executed in.
	order() int
	preinit(appName string) error
	init(appName string) error
}

// baseInitOpt is an Opt that is always constructed internally, added to any
// Opts passed into InitWith() and always runs first.
type baseInitOpt struct{}

func (b *baseInitOpt) preinit(appName string) error {
	flag.Parse()
	return nil
}

func (b *baseInitOpt) init(appName string) error {
	flag.VisitAll(func(f *flag.Flag) {
		sklog.Infof("Flags: --%s=%v", f.Name, f.Value)
	})
	// Record UID and GID.
	sklog.Infof("%s running as %d:%d", appName, os.Getuid(), os.Getgid())
	return nil
}

func (b *baseInitOpt) order() int {
	return 0
}

// debugLoggingInitOpt lowers the log threshold to include debug lines.
type debugLoggingInitOpt struct {
	enabled *bool
}

// DebugLoggingOpt creates an Opt which, when *enabled is true after flag
// parsing, logs at Debug severity and above. Otherwise Info and above are
// logged.
func DebugLoggingOpt(enabled *bool) Opt {
	return &debugLoggingInitOpt{enabled: enabled}
}

func (o *debugLoggingInitOpt) preinit(appName string) error {
	min := sklogimpl.Info
	if o.enabled != nil && *o.enabled {
		min = sklogimpl.Debug
	}
	sklog.SetLogger(stdlogging.NewWithMinSeverity(os.Stderr, min))
	return nil
}

func (o *debugLoggingInitOpt) init(appName string) error {
	return nil
}

func (o *debugLoggingInitOpt) order() int {
	return 1
}

// promInitOpt implments Opt for Prometheus.
type promInitOpt struct {
	port *string
}

// PrometheusOpt creates an Opt to initialize Prometheus metrics when passed to InitWith().
// Metrics are served at /metrics on the given port.
func PrometheusOpt(port *string) Opt {
	return &promInitOpt{
		port: port,
	}
}

func (o *promInitOpt) preinit(appName string) error {
	if o.port == nil || *o.port == "" {
		return skerr.Fmt("PrometheusOpt needs a port")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		sklog.Fatal(http.ListenAndServe(*o.port, mux))
	}()
	return nil
}

func (o *promInitOpt) init(appName string) error {
	// App uptime.
	uptime := metrics2.GetInt64Metric("uptime_s", map[string]string{"app": appName})
	start := time.Now()
	go func() {
		for range time.Tick(15 * time.Second) {
			uptime.Update(int64(time.Since(start).Seconds()))
		}
	}()
	return nil
}

func (o *promInitOpt) order() int {
	return 3
}

// InitWith takes Opt's and initializes each service.
func InitWith(appName string, opts ...Opt) error {
	// Add baseInitOpt.
	opts = append(opts, &baseInitOpt{})

	// Sort by order().
	sort.Slice(opts, func(i, j int) bool { return opts[i].order() < opts[j].order() })

	// Check for duplicate Opts.
	for i := 0; i < len(opts)-1; i++ {
		if opts[i].order() == opts[i+1].order() {
			return skerr.Fmt("Only one of each type of Opt can be used.")
		}
	}

	// Run all preinit's.
	for _, o := range opts {
		if err := o.preinit(appName); err != nil {
			return err
		}
	}

	// Run all init's.
	for _, o := range opts {
		if err := o.init(appName); err != nil {
			return err
		}
	}
	sklog.Flush()
	return nil
}

// InitWithMust calls InitWith and fails fatally if an error is encountered.
func InitWithMust(appName string, opts ...Opt) {
	if err := InitWith(appName, opts...); err != nil {
		sklog.Fatalf("Failed to initialize: %s", err)
	}
}
