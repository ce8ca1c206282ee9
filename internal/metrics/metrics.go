package metrics

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "sentinel"

// Sink 为进程内指标出口：计数器与仪表按名称懒注册，
// 并通过 Prometheus 文本格式对外暴露。
type Sink struct {
	mu       sync.Mutex
	registry *prometheus.Registry
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	logger   *zap.Logger
}

// NewSink 创建指标出口。
func NewSink(logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		registry: prometheus.NewRegistry(),
		counters: make(map[string]prometheus.Counter),
		gauges:   make(map[string]prometheus.Gauge),
		logger:   logger,
	}
}

// Increment 对命名计数器累加 delta，首次使用时自动注册。
// delta 非正时忽略，计数器只增不减。
func (s *Sink) Increment(name string, delta float64) {
	if s == nil || delta <= 0 {
		return
	}

	key := sanitizeName(name)

	s.mu.Lock()
	counter, ok := s.counters[key]
	if !ok {
		counter = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      key,
		})
		if err := s.registry.Register(counter); err != nil {
			s.mu.Unlock()
			s.logger.Warn("注册计数器失败", zap.String("name", key), zap.Error(err))
			return
		}
		s.counters[key] = counter
	}
	s.mu.Unlock()

	counter.Add(delta)
}

// Gauge 设置命名仪表的当前值，首次使用时自动注册。
func (s *Sink) Gauge(name string, value float64) {
	if s == nil {
		return
	}

	key := sanitizeName(name)

	s.mu.Lock()
	gauge, ok := s.gauges[key]
	if !ok {
		gauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      key,
		})
		if err := s.registry.Register(gauge); err != nil {
			s.mu.Unlock()
			s.logger.Warn("注册仪表失败", zap.String("name", key), zap.Error(err))
			return
		}
		s.gauges[key] = gauge
	}
	s.mu.Unlock()

	gauge.Set(value)
}

// Handler 返回 /metrics 的 HTTP 处理器。
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// sanitizeName 将任意名称转为合法的指标名：非法字符替换为下划线。
func sanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
