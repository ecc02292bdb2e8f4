// Package telemetry provides Prometheus metrics, OpenTelemetry tracing setup,
// and correlation-id aware context helpers.
package telemetry

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	TicksTotal             prometheus.Counter
	ClipsDetected          prometheus.Counter
	NotificationsSent      prometheus.Counter
	NotificationsForbidden prometheus.Counter
	SubscriptionsCleaned   *prometheus.CounterVec
	TokenRefreshes         prometheus.Counter
	TokenRefreshFailures   prometheus.Counter

	// Gauges
	WatchedSubscriptions prometheus.Gauge
)

// Cleanup reasons used as the label of SubscriptionsCleaned.
const (
	CleanupGuildGone   = "guild_gone"
	CleanupChannelGone = "channel_gone"
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		TicksTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "cliplink_ticks_total", Help: "Number of reconcile ticks executed"})
		ClipsDetected = promauto.NewCounter(prometheus.CounterOpts{Name: "cliplink_clips_detected_total", Help: "Number of novel clips detected"})
		NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "cliplink_notifications_sent_total", Help: "Number of clip notifications delivered"})
		NotificationsForbidden = promauto.NewCounter(prometheus.CounterOpts{Name: "cliplink_notifications_forbidden_total", Help: "Number of clip notifications dropped for missing send permission"})
		SubscriptionsCleaned = promauto.NewCounterVec(prometheus.CounterOpts{Name: "cliplink_subscriptions_cleaned_total", Help: "Number of subscriptions removed by self-healing"}, []string{"reason"})
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "cliplink_token_refreshes_total", Help: "Number of successful Twitch access token refreshes"})
		TokenRefreshFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "cliplink_token_refresh_failures_total", Help: "Number of failed Twitch access token refreshes"})
		WatchedSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{Name: "cliplink_watched_subscriptions", Help: "Current number of stored subscriptions"})
	})
}

// SetWatched records the current subscription count.
func SetWatched(n int) {
	if WatchedSubscriptions != nil {
		WatchedSubscriptions.Set(float64(n))
	}
}

// Increment helpers are nil-safe so code paths exercised before Init (or in
// tests that never register metrics) do not panic.

func IncTicks() {
	if TicksTotal != nil {
		TicksTotal.Inc()
	}
}

func IncClipsDetected() {
	if ClipsDetected != nil {
		ClipsDetected.Inc()
	}
}

func IncNotificationsSent() {
	if NotificationsSent != nil {
		NotificationsSent.Inc()
	}
}

func IncNotificationsForbidden() {
	if NotificationsForbidden != nil {
		NotificationsForbidden.Inc()
	}
}

func IncSubscriptionsCleaned(reason string) {
	if SubscriptionsCleaned != nil {
		SubscriptionsCleaned.WithLabelValues(reason).Inc()
	}
}

func IncTokenRefreshes() {
	if TokenRefreshes != nil {
		TokenRefreshes.Inc()
	}
}

func IncTokenRefreshFailures() {
	if TokenRefreshFailures != nil {
		TokenRefreshFailures.Inc()
	}
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}
