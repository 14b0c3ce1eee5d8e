package obs

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	domainOnce sync.Once

	// CheckoutSubmissions counts checkout submissions by outcome kind.
	CheckoutSubmissions *prometheus.CounterVec
	// CatalogCacheLookups counts catalog cache hits and misses.
	CatalogCacheLookups *prometheus.CounterVec
	// ShippingQuotes counts shipping quotes by result (free or flat).
	ShippingQuotes *prometheus.CounterVec
	// OrderRefreshes counts background order status refreshes by outcome.
	OrderRefreshes *prometheus.CounterVec
	// DomainEvents counts published domain events by topic and outcome.
	DomainEvents *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutSubmissions = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_submissions_total",
			Help:      "Checkout submissions by outcome.",
		}, []string{"result"}))
		CatalogCacheLookups = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_lookups_total",
			Help:      "Catalog cache lookups by result.",
		}, []string{"result"}))
		ShippingQuotes = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_quotes_total",
			Help:      "Shipping quotes by result.",
		}, []string{"result"}))
		OrderRefreshes = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_refresh_total",
			Help:      "Background order status refreshes by outcome.",
		}, []string{"result"}))
		DomainEvents = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_events_total",
			Help:      "Published domain events by topic and outcome.",
		}, []string{"topic", "result"}))
	})
}

// Inc increments vec when domain metrics are registered. Packages call it so
// tests may skip registration.
func Inc(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

var (
	checkoutDurationOnce sync.Once
	checkoutDuration     metric.Float64Histogram
)

// RecordCheckoutDuration records the end-to-end checkout submission latency
// through the global OpenTelemetry meter provider.
func RecordCheckoutDuration(ctx context.Context, d time.Duration, result string) {
	checkoutDurationOnce.Do(func() {
		h, err := otel.Meter("storefront/checkout").Float64Histogram(
			"checkout.submit.duration",
			metric.WithUnit("ms"),
			metric.WithDescription("Checkout submission latency."),
		)
		if err == nil {
			checkoutDuration = h
		}
	})
	if checkoutDuration == nil {
		return
	}
	checkoutDuration.Record(ctx, DurationMillis(d), metric.WithAttributes(attribute.String("result", result)))
}
