// Package metrics exposes Prometheus collectors for the propagation core.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "statesync").
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
	// Registry defaults to a private registry so importing the module never
	// touches prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

type Option func(*Config)

func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Metrics holds the collectors. All fields are safe to use concurrently.
type Metrics struct {
	// Notifications counts dispatched callbacks by kind
	// (value, property, peer, read).
	Notifications *prometheus.CounterVec
	// Dangling counts notifications aimed at identities missing from the registry.
	Dangling prometheus.Counter
	// Subscribers tracks the number of live registry entries.
	Subscribers prometheus.Gauge
	// Mutations counts observed wrapper writes by wrapper kind and operation.
	Mutations *prometheus.CounterVec
	// StoreWrites counts backing store writes by adapter and result.
	StoreWrites *prometheus.CounterVec
}

func New(opts ...Option) *Metrics {
	cfg := Config{Namespace: "statesync"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "notifications_total",
			Help:        "Subscriber callbacks dispatched, by notification kind",
			ConstLabels: cfg.ConstLabels,
		}, []string{"kind"}),

		Dangling: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "dangling_subscribers_total",
			Help:        "Notifications skipped because the subscriber id was not registered",
			ConstLabels: cfg.ConstLabels,
		}),

		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "registered_subscribers",
			Help:        "Live entries in the subscriber registry",
			ConstLabels: cfg.ConstLabels,
		}),

		Mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "observed_mutations_total",
			Help:        "Changes applied through observed wrappers",
			ConstLabels: cfg.ConstLabels,
		}, []string{"wrapper", "op"}),

		StoreWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "store_writes_total",
			Help:        "Writes to external backing stores",
			ConstLabels: cfg.ConstLabels,
		}, []string{"adapter", "result"}),
	}
}

var current atomic.Pointer[Metrics]

func init() {
	current.Store(New())
}

// Default returns the collectors the core reports to.
func Default() *Metrics {
	return current.Load()
}

// SetDefault swaps the collectors the core reports to, e.g. to register them
// with prometheus.DefaultRegisterer.
func SetDefault(m *Metrics) {
	if m != nil {
		current.Store(m)
	}
}
