package stats

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// CounterVec is a family of monotonically increasing counters keyed by the
// value of a single label. An empty label name makes it a plain counter.
type CounterVec struct {
	name  string
	help  string
	label string

	mu     sync.RWMutex
	values map[string]*atomic.Uint64
}

// Inc adds one to the counter for labelValue.
func (c *CounterVec) Inc(labelValue string) {
	c.get(labelValue).Add(1)
}

// Value returns the current count for labelValue.
func (c *CounterVec) Value(labelValue string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[labelValue]; ok {
		return v.Load()
	}
	return 0
}

func (c *CounterVec) get(labelValue string) *atomic.Uint64 {
	c.mu.RLock()
	v, ok := c.values[labelValue]
	c.mu.RUnlock()
	if ok {
		return v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.values[labelValue]; ok {
		return v
	}
	v = new(atomic.Uint64)
	c.values[labelValue] = v
	return v
}

type gaugeFunc struct {
	name string
	help string
	fn   func() float64
}

// Registry owns a set of metrics and renders them together.
type Registry struct {
	mu       sync.Mutex
	counters []*CounterVec
	gauges   []gaugeFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Counter registers and returns a CounterVec. label may be empty.
func (r *Registry) Counter(name, help, label string) *CounterVec {
	c := &CounterVec{name: name, help: help, label: label, values: make(map[string]*atomic.Uint64)}
	r.mu.Lock()
	r.counters = append(r.counters, c)
	r.mu.Unlock()
	return c
}

// GaugeFunc registers a gauge whose value is read from fn at gather time.
func (r *Registry) GaugeFunc(name, help string, fn func() float64) {
	r.mu.Lock()
	r.gauges = append(r.gauges, gaugeFunc{name: name, help: help, fn: fn})
	r.mu.Unlock()
}

// Gather snapshots every registered metric, sorted by family name.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.Lock()
	counters := append([]*CounterVec(nil), r.counters...)
	gauges := append([]gaugeFunc(nil), r.gauges...)
	r.mu.Unlock()

	out := make([]*dto.MetricFamily, 0, len(counters)+len(gauges))
	for _, c := range counters {
		// A labelled vec with no observations yet has nothing to expose.
		if mf := c.family(); len(mf.Metric) > 0 {
			out = append(out, mf)
		}
	}
	for _, g := range gauges {
		out = append(out, &dto.MetricFamily{
			Name:   ptr(g.name),
			Help:   ptr(g.help),
			Type:   dto.MetricType_GAUGE.Enum(),
			Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: ptr(g.fn())}}},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// WriteText renders every metric in the Prometheus text format.
func (r *Registry) WriteText(w io.Writer) error {
	for _, mf := range r.Gather() {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("stats: write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func (c *CounterVec) family() *dto.MetricFamily {
	c.mu.RLock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Strings(keys)

	mf := &dto.MetricFamily{
		Name: ptr(c.name),
		Help: ptr(c.help),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	if c.label == "" {
		mf.Metric = []*dto.Metric{{Counter: &dto.Counter{Value: ptr(float64(c.Value("")))}}}
		return mf
	}
	for _, k := range keys {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{{Name: ptr(c.label), Value: ptr(k)}},
			Counter: &dto.Counter{Value: ptr(float64(c.Value(k)))},
		})
	}
	return mf
}

// Parse decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned.
func Parse(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("stats: parse prometheus text: %w", err)
	}
	return mfs, nil
}

// Sum adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil.
func Sum(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

func ptr[T any](v T) *T { return &v }
