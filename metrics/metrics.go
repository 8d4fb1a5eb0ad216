package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector 水面网格服务的 Prometheus 指标
// 所有方法都允许 nil 接收者，未启用指标时直接传 nil。
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	MeshBuilds        *prometheus.CounterVec
	MeshBuildDuration prometheus.Histogram
	MeshTriangles     prometheus.Histogram

	CacheLookups *prometheus.CounterVec
	CacheEntries prometheus.Gauge

	LevelsBuilt *prometheus.CounterVec
}

// NewCollector 注册指标，reg 为空时使用全局注册表
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hydromesh_http_requests_total",
		Help: "Handled HTTP requests, labeled by method, route and status code.",
	}, []string{"method", "route", "code"}), "hydromesh_http_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hydromesh_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"method", "route"}), "hydromesh_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	builds, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hydromesh_mesh_builds_total",
		Help: "Water mesh builds, labeled by result (ok, empty, error).",
	}, []string{"result"}), "hydromesh_mesh_builds_total")
	if err != nil {
		return nil, err
	}
	buildDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hydromesh_mesh_build_duration_seconds",
		Help:    "Time spent building one water mesh.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}), "hydromesh_mesh_build_duration_seconds")
	if err != nil {
		return nil, err
	}
	triangles, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hydromesh_mesh_triangles",
		Help:    "Triangle count of built water meshes.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}), "hydromesh_mesh_triangles")
	if err != nil {
		return nil, err
	}

	lookups, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hydromesh_mesh_cache_lookups_total",
		Help: "Mesh cache lookups, labeled by result (hit, miss).",
	}, []string{"result"}), "hydromesh_mesh_cache_lookups_total")
	if err != nil {
		return nil, err
	}
	entries, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hydromesh_mesh_cache_entries",
		Help: "Current number of cached meshes.",
	}), "hydromesh_mesh_cache_entries")
	if err != nil {
		return nil, err
	}

	levels, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hydromesh_levels_built_total",
		Help: "Water levels precomputed per site.",
	}, []string{"site"}), "hydromesh_levels_built_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		HTTPRequests:      requests,
		HTTPDurations:     durations,
		MeshBuilds:        builds,
		MeshBuildDuration: buildDuration,
		MeshTriangles:     triangles,
		CacheLookups:      lookups,
		CacheEntries:      entries,
		LevelsBuilt:       levels,
	}, nil
}

// ObserveMeshBuild 记录一次构网结果
func (c *Collector) ObserveMeshBuild(d time.Duration, triangles int, err error) {
	if c == nil {
		return
	}
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case triangles == 0:
		result = "empty"
	}
	c.MeshBuilds.WithLabelValues(result).Inc()
	if err == nil {
		c.MeshBuildDuration.Observe(d.Seconds())
		c.MeshTriangles.Observe(float64(triangles))
	}
}

func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.CacheLookups.WithLabelValues("hit").Inc()
}

func (c *Collector) CacheMiss() {
	if c == nil {
		return
	}
	c.CacheLookups.WithLabelValues("miss").Inc()
}

func (c *Collector) SetCacheEntries(n int) {
	if c == nil {
		return
	}
	c.CacheEntries.Set(float64(n))
}

func (c *Collector) LevelBuilt(site string) {
	if c == nil {
		return
	}
	c.LevelsBuilt.WithLabelValues(site).Inc()
}

// Middleware gin 中间件，按路由模板统计请求数和耗时
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		if c == nil {
			return
		}
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method
		c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.HTTPDurations.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler /metrics 输出
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
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
