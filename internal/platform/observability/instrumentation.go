package observability

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Enabled reports whether span and metric records are logged.
func Enabled() bool {
	_, cfg := currentLogger()
	return cfg.Enabled
}

// Outcome labels an operation result for metrics.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// StartSpan times an operation and logs its start and end at debug level, or
// at error level when it fails.
func StartSpan(ctx context.Context, component, operation string) (context.Context, func(error)) {
	logger, cfg := currentLogger()
	if logger == nil || !cfg.Enabled {
		return ctx, func(error) {}
	}

	start := time.Now()
	logger.LogAttrs(ctx, slog.LevelDebug, "obs span start",
		slog.String("component", component),
		slog.String("operation", operation),
	)

	return ctx, func(err error) {
		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelError
		}

		attrs := []slog.Attr{
			slog.String("component", component),
			slog.String("operation", operation),
			slog.Duration("duration", time.Since(start)),
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
		}

		logger.LogAttrs(ctx, level, "obs span end", attrs...)
	}
}

// Counter is one accumulated metric series.
type Counter struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

var (
	countersMu sync.Mutex
	counters   = map[string]*Counter{}
)

func seriesKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

// RecordMetric adds value to the series named by name and labels, feeds the
// matching Prometheus collector, and logs the datapoint when records are
// enabled.
func RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	key := seriesKey(name, labels)
	countersMu.Lock()
	c, ok := counters[key]
	if !ok {
		copied := make(map[string]string, len(labels))
		for k, v := range labels {
			copied[k] = v
		}
		c = &Counter{Name: name, Labels: copied}
		counters[key] = c
	}
	c.Value += value
	countersMu.Unlock()
	export(name, value, labels)

	logger, cfg := currentLogger()
	if logger == nil || !cfg.Enabled {
		return
	}

	attrs := []slog.Attr{
		slog.String("metric", name),
		slog.Float64("value", value),
	}
	for k, v := range labels {
		attrs = append(attrs, slog.String(k, v))
	}

	logger.LogAttrs(ctx, slog.LevelDebug, "obs metric", attrs...)
}

// Counters returns every series sorted by name and labels.
func Counters() []Counter {
	countersMu.Lock()
	defer countersMu.Unlock()

	keys := make([]string, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Counter, 0, len(keys))
	for _, k := range keys {
		c := *counters[k]
		labels := make(map[string]string, len(c.Labels))
		for lk, lv := range c.Labels {
			labels[lk] = lv
		}
		c.Labels = labels
		out = append(out, c)
	}
	return out
}

// ResetCounters drops every series.
func ResetCounters() {
	countersMu.Lock()
	counters = map[string]*Counter{}
	countersMu.Unlock()
	resetExported()
}
