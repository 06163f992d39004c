package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pzhenzhou/respcli/pkg/common"

	"github.com/gin-gonic/gin"
	gometrics "github.com/hashicorp/go-metrics"
	"github.com/hashicorp/go-metrics/prometheus"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ExposeMetricSink string

const (
	InMemorySink    ExposeMetricSink = "in-memory"
	PrometheusSink  ExposeMetricSink = "prometheus"
	AllMetricsSink  ExposeMetricSink = "all"
	ExposeMetricURL                  = "/metrics"
)

var (
	logger = common.InitLogger().WithName("client-metrics")
)

// labelPool is a simple object pool for label slices to reduce allocations
type labelPool struct {
	pool sync.Pool
}

func newLabelPool() *labelPool {
	return &labelPool{
		pool: sync.Pool{
			New: func() interface{} {
				slice := make([]gometrics.Label, 0, 3)
				return &slice
			},
		},
	}
}

func (p *labelPool) get() []gometrics.Label {
	slicePtr := p.pool.Get().(*[]gometrics.Label)
	*slicePtr = (*slicePtr)[:0]
	return *slicePtr
}

func (p *labelPool) put(labels []gometrics.Label) {
	p.pool.Put(&labels)
}

// ClientMetricsCollector defines the interface for collecting client side metrics
type ClientMetricsCollector interface {
	// RecordCommandLatency records the round trip (encode, write, read reply) of one command
	RecordCommandLatency(command string, duration time.Duration)

	// RecordOverallLatency records the round trip without distinguishing between commands
	RecordOverallLatency(duration time.Duration)

	IncrementActiveConnections()
	DecrementActiveConnections()

	IncrementCommandCounter(command string)

	// IncrementErrorCounter counts failures by class (server_error, protocol_error, ...)
	IncrementErrorCounter(errorType string)

	// Samples returns the aggregated latency samples kept by the in-memory sink,
	// nil when the collector has no in-memory sink.
	Samples() []SampleSummary

	Shutdown()

	// Handler returns a Gin handler function for exposing metrics
	Handler() gin.HandlerFunc
}

// Config holds configuration for metrics
type Config struct {
	// Metrics prefix for namespacing
	ServiceName string

	// Time interval for in-memory metrics aggregation
	AggregationInterval time.Duration

	// Retention period for metrics
	RetentionPeriod time.Duration

	// ExposeSink determines which metrics sink to expose
	ExposeSink ExposeMetricSink

	// MetricsEndpoint is the HTTP path for metrics
	MetricsEndpoint string

	EnableRuntimeMetrics bool
}

func NewPrometheusConfig(serviceName string) *Config {
	config := DefaultConfig()
	config.ServiceName = serviceName
	config.ExposeSink = PrometheusSink
	return config
}

func NewInMemoryConfig(serviceName string) *Config {
	config := DefaultConfig()
	config.ServiceName = serviceName
	config.ExposeSink = InMemorySink
	return config
}

// NewConfigFromCli maps the command line metrics flags onto a collector config.
func NewConfigFromCli(serviceName string, cfg *common.MetricsConfig) *Config {
	config := DefaultConfig()
	config.ServiceName = serviceName
	config.ExposeSink = ExposeMetricSink(strings.ToLower(cfg.MetricsSinkType))
	config.MetricsEndpoint = cfg.MetricsPath
	config.EnableRuntimeMetrics = true
	return config
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		ServiceName:         "respcli",
		AggregationInterval: 5 * time.Second,
		RetentionPeriod:     10 * time.Minute,
		MetricsEndpoint:     ExposeMetricURL,
		ExposeSink:          InMemorySink,
	}
}

func newInMemSink(config *Config) *gometrics.InmemSink {
	return gometrics.NewInmemSink(
		config.AggregationInterval,
		config.RetentionPeriod,
	)
}

// newPrometheusSink registers the sink on its own registry so that several
// collectors can live in one process.
func newPrometheusSink() (*prometheus.PrometheusSink, *promclient.Registry, error) {
	registry := promclient.NewRegistry()
	promSink, err := prometheus.NewPrometheusSinkFrom(prometheus.PrometheusOpts{
		Registerer: registry,
	})
	if err != nil {
		return nil, nil, err
	}
	return promSink, registry, nil
}

// NewMetricsCollector creates a new metrics collector based on the provided config
func NewMetricsCollector(config *Config) (ClientMetricsCollector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	metricsConf := gometrics.DefaultConfig(config.ServiceName)
	metricsConf.EnableHostname = false
	metricsConf.EnableRuntimeMetrics = config.EnableRuntimeMetrics

	sink := &fanoutSink{sinks: make([]gometrics.MetricSink, 0)}
	var inm *gometrics.InmemSink
	var promSink *prometheus.PrometheusSink
	var registry *promclient.Registry
	var err error
	switch config.ExposeSink {
	case InMemorySink:
		inm = newInMemSink(config)
		sink.sinks = append(sink.sinks, inm)
	case PrometheusSink:
		promSink, registry, err = newPrometheusSink()
		if err != nil {
			return nil, err
		}
		sink.sinks = append(sink.sinks, promSink)
	case AllMetricsSink:
		inm = newInMemSink(config)
		promSink, registry, err = newPrometheusSink()
		if err != nil {
			return nil, err
		}
		sink.sinks = append(sink.sinks, inm, promSink)
	default:
		inm = newInMemSink(config)
		sink.sinks = append(sink.sinks, inm)
	}

	metricsImpl, err := gometrics.New(metricsConf, sink)
	if err != nil {
		return nil, err
	}
	collector := &hashicorpMetricsCollector{
		metrics:            metricsImpl,
		inm:                inm,
		promSink:           promSink,
		registry:           registry,
		exposeSink:         config.ExposeSink,
		metricsEndpoint:    config.MetricsEndpoint,
		serviceName:        config.ServiceName,
		serviceLabel:       gometrics.Label{Name: "service", Value: config.ServiceName},
		commandLabelPrefix: "command",
		errorLabelPrefix:   "type",
		labelPool:          newLabelPool(),
	}
	logger.Info("Metrics collector initialized",
		"serviceName", config.ServiceName,
		"sink", config.ExposeSink,
		"endpoint", config.MetricsEndpoint)
	return collector, nil
}

// hashicorpMetricsCollector implements ClientMetricsCollector using hashicorp/go-metrics
type hashicorpMetricsCollector struct {
	metrics         *gometrics.Metrics
	inm             *gometrics.InmemSink
	promSink        *prometheus.PrometheusSink
	registry        *promclient.Registry
	exposeSink      ExposeMetricSink
	metricsEndpoint string
	serviceName     string

	serviceLabel       gometrics.Label
	commandLabelPrefix string
	errorLabelPrefix   string

	labelPool *labelPool
}

func (h *hashicorpMetricsCollector) RecordCommandLatency(command string, duration time.Duration) {
	labels := h.labelPool.get()
	labels = append(labels, h.serviceLabel, gometrics.Label{Name: h.commandLabelPrefix, Value: command})

	h.metrics.AddSampleWithLabels([]string{"command", "latency"}, float32(duration.Microseconds()), labels)

	h.labelPool.put(labels)
}

func (h *hashicorpMetricsCollector) RecordOverallLatency(duration time.Duration) {
	labels := h.labelPool.get()
	labels = append(labels, h.serviceLabel)

	h.metrics.AddSampleWithLabels([]string{"overall", "latency"}, float32(duration.Microseconds()), labels)

	h.labelPool.put(labels)
}

func (h *hashicorpMetricsCollector) IncrementActiveConnections() {
	labels := h.labelPool.get()
	labels = append(labels, h.serviceLabel)

	h.metrics.IncrCounterWithLabels([]string{"connections", "active"}, 1, labels)

	h.labelPool.put(labels)
}

func (h *hashicorpMetricsCollector) DecrementActiveConnections() {
	labels := h.labelPool.get()
	labels = append(labels, h.serviceLabel)

	h.metrics.IncrCounterWithLabels([]string{"connections", "active"}, -1, labels)

	h.labelPool.put(labels)
}

func (h *hashicorpMetricsCollector) IncrementCommandCounter(command string) {
	labels := h.labelPool.get()
	labels = append(labels, h.serviceLabel, gometrics.Label{Name: h.commandLabelPrefix, Value: command})

	h.metrics.IncrCounterWithLabels([]string{"command", "count"}, 1, labels)

	h.labelPool.put(labels)
}

func (h *hashicorpMetricsCollector) IncrementErrorCounter(errorType string) {
	labels := h.labelPool.get()
	labels = append(labels, h.serviceLabel, gometrics.Label{Name: h.errorLabelPrefix, Value: errorType})

	h.metrics.IncrCounterWithLabels([]string{"errors"}, 1, labels)

	h.labelPool.put(labels)
}

// SampleSummary aggregates one sample series over every retained interval.
// Latencies are in microseconds.
type SampleSummary struct {
	Key   string
	Count int
	Mean  float64
	Min   float64
	Max   float64
}

func (h *hashicorpMetricsCollector) Samples() []SampleSummary {
	if h.inm == nil {
		return nil
	}
	merged := make(map[string]*SampleSummary)
	var sums = make(map[string]float64)
	for _, interval := range h.inm.Data() {
		interval.RLock()
		for key, sample := range interval.Samples {
			agg := sample.AggregateSample
			if agg == nil || agg.Count == 0 {
				continue
			}
			summary, ok := merged[key]
			if !ok {
				summary = &SampleSummary{Key: key, Min: agg.Min, Max: agg.Max}
				merged[key] = summary
			}
			summary.Count += agg.Count
			sums[key] += agg.Sum
			summary.Min = min(summary.Min, agg.Min)
			summary.Max = max(summary.Max, agg.Max)
		}
		interval.RUnlock()
	}
	out := make([]SampleSummary, 0, len(merged))
	for key, summary := range merged {
		summary.Mean = sums[key] / float64(summary.Count)
		out = append(out, *summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// CollectorHandler returns an HTTP handler for metrics based on the configured sink
func (h *hashicorpMetricsCollector) CollectorHandler() http.Handler {
	switch h.exposeSink {
	case PrometheusSink, AllMetricsSink:
		return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
	case InMemorySink:
		return h.InMemoryHandler()
	default:
		return http.NotFoundHandler()
	}
}

// InMemoryHandler returns an HTTP handler for in-memory metrics
func (h *hashicorpMetricsCollector) InMemoryHandler() http.Handler {
	if h.inm == nil {
		logger.Error(nil, "In-memory sink is nil, cannot serve metrics")
		return http.NotFoundHandler()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		// DisplayMetrics returns the summary instead of writing it.
		data, err := h.inm.DisplayMetrics(w, r)
		if err != nil {
			logger.Error(err, "Failed to display metrics")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if data == nil {
			_, _ = w.Write([]byte("{}"))
			return
		}
		jsonData, err := json.Marshal(data)
		if err != nil {
			logger.Error(err, "Failed to marshal metrics data to JSON")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(jsonData)
	})
}

// fanoutSink implements a sink that forwards to multiple sinks
type fanoutSink struct {
	sinks []gometrics.MetricSink
}

func (f *fanoutSink) SetGauge(key []string, val float32) {
	for _, s := range f.sinks {
		s.SetGauge(key, val)
	}
}

func (f *fanoutSink) SetGaugeWithLabels(key []string, val float32, labels []gometrics.Label) {
	for _, s := range f.sinks {
		s.SetGaugeWithLabels(key, val, labels)
	}
}

func (f *fanoutSink) EmitKey(key []string, val float32) {
	for _, s := range f.sinks {
		s.EmitKey(key, val)
	}
}

func (f *fanoutSink) IncrCounter(key []string, val float32) {
	for _, s := range f.sinks {
		s.IncrCounter(key, val)
	}
}

func (f *fanoutSink) IncrCounterWithLabels(key []string, val float32, labels []gometrics.Label) {
	for _, s := range f.sinks {
		s.IncrCounterWithLabels(key, val, labels)
	}
}

func (f *fanoutSink) AddSample(key []string, val float32) {
	for _, s := range f.sinks {
		s.AddSample(key, val)
	}
}

func (f *fanoutSink) AddSampleWithLabels(key []string, val float32, labels []gometrics.Label) {
	for _, s := range f.sinks {
		s.AddSampleWithLabels(key, val, labels)
	}
}

// Shutdown stops the runtime metrics loop and every sink that supports it.
func (h *hashicorpMetricsCollector) Shutdown() {
	h.metrics.Shutdown()
}

// Handler returns a Gin handler function for exposing metrics
func (h *hashicorpMetricsCollector) Handler() gin.HandlerFunc {
	handler := h.CollectorHandler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
