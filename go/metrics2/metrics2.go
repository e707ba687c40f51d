// Package metrics2 exposes named gauges, counters and timers backed by
// Prometheus. Metrics are created on first use and cached by name and tags,
// so callers may look them up on every use.
package metrics2

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.skia.org/rebaseline/go/sklog"
)

var (
	// invalidChar is used to force metric and tag names to conform to Prometheus's restrictions.
	invalidChar = regexp.MustCompile("([^a-zA-Z0-9_:])")

	defaultClient = newPromClient(prometheus.DefaultRegisterer)
)

func clean(s string) string {
	return invalidChar.ReplaceAllLiteralString(s, "_")
}

// Int64Metric is a gauge holding an int64.
type Int64Metric interface {
	Get() int64
	Update(v int64)
}

// Counter is an Int64Metric that is moved by increments.
type Counter interface {
	Int64Metric
	Inc(i int64)
	Dec(i int64)
	Reset()
}

// Float64SummaryMetric records observations into a summary.
type Float64SummaryMetric interface {
	Observe(v float64)
}

type promInt64 struct {
	// i tracks the value of the gauge, because prometheus client lib doesn't
	// support get on Gauge values.
	i     int64
	gauge prometheus.Gauge
}

func (m *promInt64) Get() int64 {
	return atomic.LoadInt64(&m.i)
}

func (m *promInt64) Update(v int64) {
	atomic.StoreInt64(&m.i, v)
	m.gauge.Set(float64(v))
}

type promCounter struct {
	*promInt64
}

func (c *promCounter) Inc(i int64) {
	c.gauge.Set(float64(atomic.AddInt64(&c.i, i)))
}

func (c *promCounter) Dec(i int64) {
	c.gauge.Set(float64(atomic.AddInt64(&c.i, -i)))
}

func (c *promCounter) Reset() {
	c.Update(0)
}

type promSummary struct {
	summary prometheus.Observer
}

func (m *promSummary) Observe(v float64) {
	m.summary.Observe(v)
}

type promClient struct {
	reg prometheus.Registerer

	mtx        sync.Mutex
	gaugeVecs  map[string]*prometheus.GaugeVec
	gauges     map[string]*promInt64
	summaryVec map[string]*prometheus.SummaryVec
	summaries  map[string]*promSummary
}

func newPromClient(reg prometheus.Registerer) *promClient {
	return &promClient{
		reg:        reg,
		gaugeVecs:  map[string]*prometheus.GaugeVec{},
		gauges:     map[string]*promInt64{},
		summaryVec: map[string]*prometheus.SummaryVec{},
		summaries:  map[string]*promSummary{},
	}
}

// commonGet returns the clean measurement name, the clean tags, the sorted
// tag keys, a key identifying the metric and a key identifying its vec.
func commonGet(measurement string, tags ...map[string]string) (string, map[string]string, []string, string, string) {
	measurement = clean(measurement)
	cleanTags := map[string]string{}
	for _, t := range tags {
		for k, v := range t {
			cleanTags[clean(k)] = v
		}
	}
	keys := make([]string, 0, len(cleanTags))
	for k := range cleanTags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	keySrc := []string{measurement}
	for _, k := range keys {
		keySrc = append(keySrc, k, cleanTags[k])
	}
	return measurement, cleanTags, keys, strings.Join(keySrc, "-"), fmt.Sprintf("%s %v", measurement, keys)
}

func (p *promClient) getInt64(name string, tags ...map[string]string) *promInt64 {
	measurement, cleanTags, keys, gaugeKey, gaugeVecKey := commonGet(name, tags...)

	p.mtx.Lock()
	defer p.mtx.Unlock()
	if ret, ok := p.gauges[gaugeKey]; ok {
		return ret
	}
	gaugeVec, ok := p.gaugeVecs[gaugeVecKey]
	if !ok {
		gaugeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: measurement,
			Help: measurement,
		}, keys)
		if err := p.reg.Register(gaugeVec); err != nil {
			sklog.Fatalf("Failed to register %q: %s", measurement, err)
		}
		p.gaugeVecs[gaugeVecKey] = gaugeVec
	}
	gauge, err := gaugeVec.GetMetricWith(prometheus.Labels(cleanTags))
	if err != nil {
		sklog.Fatalf("Failed to get gauge: %s", err)
	}
	ret := &promInt64{gauge: gauge}
	p.gauges[gaugeKey] = ret
	return ret
}

func (p *promClient) getSummary(name string, tags ...map[string]string) *promSummary {
	measurement, cleanTags, keys, key, vecKey := commonGet(name, tags...)

	p.mtx.Lock()
	defer p.mtx.Unlock()
	if ret, ok := p.summaries[key]; ok {
		return ret
	}
	vec, ok := p.summaryVec[vecKey]
	if !ok {
		vec = prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       measurement,
			Help:       measurement,
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, keys)
		if err := p.reg.Register(vec); err != nil {
			sklog.Fatalf("Failed to register %q %v: %s", measurement, cleanTags, err)
		}
		p.summaryVec[vecKey] = vec
	}
	obs, err := vec.GetMetricWith(prometheus.Labels(cleanTags))
	if err != nil {
		sklog.Fatalf("Failed to get summary: %s", err)
	}
	ret := &promSummary{summary: obs}
	p.summaries[key] = ret
	return ret
}

// GetInt64Metric returns the gauge with the given name and tags.
func GetInt64Metric(name string, tags ...map[string]string) Int64Metric {
	return defaultClient.getInt64(name, tags...)
}

// GetCounter returns the counter with the given name and tags. Counters and
// Int64Metrics with the same name and tags share a value.
func GetCounter(name string, tags ...map[string]string) Counter {
	return &promCounter{defaultClient.getInt64(name, tags...)}
}

// GetFloat64SummaryMetric returns the summary with the given name and tags.
func GetFloat64SummaryMetric(name string, tags ...map[string]string) Float64SummaryMetric {
	return defaultClient.getSummary(name, tags...)
}

// Timer measures elapsed time and reports it, in milliseconds, to a summary
// when Stop is called.
type Timer struct {
	begin time.Time
	m     Float64SummaryMetric
}

// NewTimer starts a Timer that reports to the "timer" summary tagged with
// the given name.
func NewTimer(name string, tags ...map[string]string) *Timer {
	t := map[string]string{"name": name}
	for _, tag := range tags {
		for k, v := range tag {
			t[k] = v
		}
	}
	return &Timer{
		begin: time.Now(),
		m:     GetFloat64SummaryMetric("timer", t),
	}
}

// Stop reports the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.begin)
	t.m.Observe(float64(d) / float64(time.Millisecond))
	return d
}
