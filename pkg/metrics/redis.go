package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RedisMetrics counts Redis commands by name and outcome.
type RedisMetrics struct {
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewRedisMetrics(reg prometheus.Registerer) *RedisMetrics {
	if reg == nil {
		return &RedisMetrics{}
	}
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "redis_commands_total",
		Help:      "Redis commands by command name and result.",
	}, []string{"command", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "redis_command_duration_seconds",
		Help:      "Redis command latency in seconds.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"command"})
	reg.MustRegister(commands, duration)
	return &RedisMetrics{commands: commands, duration: duration}
}

// ObserveCommand records one command. A miss (redis nil) should be passed as
// a nil error by the caller.
func (m *RedisMetrics) ObserveCommand(name string, elapsed time.Duration, err error) {
	if m == nil || m.commands == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(name, result).Inc()
	m.duration.WithLabelValues(name).Observe(elapsed.Seconds())
}
