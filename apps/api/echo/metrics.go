package echoapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var requestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "rapor",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latencies, by route.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "code"},
)

func init() {
	prometheus.MustRegister(requestDuration)
}

// metricsMiddleware observes the latency of every request, labelled with the matched route template.
// Errors are handled here so that the status code sent is the one recorded.
func metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		if err := next(ctx); err != nil {
			ctx.Error(err)
		}
		requestDuration.
			WithLabelValues(ctx.Request().Method, ctx.Path(), strconv.Itoa(ctx.Response().Status)).
			Observe(time.Since(start).Seconds())
		return nil
	}
}
