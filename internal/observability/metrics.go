package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PlannerCollector bundles the Prometheus metrics for the planner
// service: HTTP surface counters, planner invocation outcomes, cable
// commit/conflict totals, and inventory entity gauges. It implements
// both core.PlannerMetrics and inventory.MetricsRecorder.
type PlannerCollector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	Invocations     *prometheus.CounterVec
	PlanDurations   prometheus.Histogram
	CablesCommitted prometheus.Counter
	Conflicts       prometheus.Counter

	InventoryRacks      prometheus.Gauge
	InventoryDevices    prometheus.Gauge
	InventoryInterfaces prometheus.Gauge
	InventoryCables     prometheus.Gauge
}

// NewPlannerCollector registers the planner metrics against the
// provided registerer, defaulting to the global Prometheus registry
// when nil. Re-registration of identical collectors is tolerated so
// tests can construct collectors repeatedly.
func NewPlannerCollector(reg prometheus.Registerer) (*PlannerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	httpRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_http_requests_total",
		Help: "Total handled HTTP requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"}), "planner_http_requests_total")
	if err != nil {
		return nil, err
	}

	httpDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planner_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route", "method"}), "planner_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	invocations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_invocations_total",
		Help: "Planner invocations by outcome (ok, partial, noop, failed, error).",
	}, []string{"outcome"}), "planner_invocations_total")
	if err != nil {
		return nil, err
	}

	planDurations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_plan_duration_seconds",
		Help:    "End-to-end planning latency per invocation in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}), "planner_plan_duration_seconds")
	if err != nil {
		return nil, err
	}

	cables, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_cables_committed_total",
		Help: "Cables successfully committed to the inventory store.",
	}), "planner_cables_committed_total")
	if err != nil {
		return nil, err
	}

	conflicts, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_materialization_conflicts_total",
		Help: "Cable creates rejected by the store because a concurrent invocation won the endpoint.",
	}), "planner_materialization_conflicts_total")
	if err != nil {
		return nil, err
	}

	racks, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inventory_racks",
		Help: "Current number of racks in the inventory store.",
	}), "inventory_racks")
	if err != nil {
		return nil, err
	}
	devices, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inventory_devices",
		Help: "Current number of devices in the inventory store.",
	}), "inventory_devices")
	if err != nil {
		return nil, err
	}
	interfaces, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inventory_interfaces",
		Help: "Current number of interfaces in the inventory store.",
	}), "inventory_interfaces")
	if err != nil {
		return nil, err
	}
	cableGauge, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inventory_cables",
		Help: "Current number of committed cables in the inventory store.",
	}), "inventory_cables")
	if err != nil {
		return nil, err
	}

	return &PlannerCollector{
		gatherer:            gatherer,
		HTTPRequests:        httpRequests,
		HTTPDurations:       httpDurations,
		Invocations:         invocations,
		PlanDurations:       planDurations,
		CablesCommitted:     cables,
		Conflicts:           conflicts,
		InventoryRacks:      racks,
		InventoryDevices:    devices,
		InventoryInterfaces: interfaces,
		InventoryCables:     cableGauge,
	}, nil
}

// ObserveInvocation satisfies core.PlannerMetrics.
func (c *PlannerCollector) ObserveInvocation(outcome string, seconds float64) {
	if c == nil {
		return
	}
	if c.Invocations != nil {
		c.Invocations.WithLabelValues(outcome).Inc()
	}
	if c.PlanDurations != nil {
		c.PlanDurations.Observe(seconds)
	}
}

// AddCablesCommitted satisfies core.PlannerMetrics.
func (c *PlannerCollector) AddCablesCommitted(n int) {
	if c == nil || c.CablesCommitted == nil || n <= 0 {
		return
	}
	c.CablesCommitted.Add(float64(n))
}

// AddConflicts satisfies core.PlannerMetrics.
func (c *PlannerCollector) AddConflicts(n int) {
	if c == nil || c.Conflicts == nil || n <= 0 {
		return
	}
	c.Conflicts.Add(float64(n))
}

// SetInventoryCounts satisfies inventory.MetricsRecorder so stores can
// drive gauge values directly from their mutators.
func (c *PlannerCollector) SetInventoryCounts(racks, devices, interfaces, cables int) {
	if c == nil {
		return
	}
	if c.InventoryRacks != nil {
		c.InventoryRacks.Set(float64(racks))
	}
	if c.InventoryDevices != nil {
		c.InventoryDevices.Set(float64(devices))
	}
	if c.InventoryInterfaces != nil {
		c.InventoryInterfaces.Set(float64(interfaces))
	}
	if c.InventoryCables != nil {
		c.InventoryCables.Set(float64(cables))
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PlannerCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Middleware instruments an HTTP handler with request counts and
// latencies under the given route label.
func (c *PlannerCollector) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(sw.code)).Inc()
		}
		if c.HTTPDurations != nil {
			c.HTTPDurations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	code    int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.code = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
