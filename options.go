package patternstore

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/LostLegendarySoftware/patternstore/config"
	"github.com/LostLegendarySoftware/patternstore/policy"
)

// Option configures a Store.
type Option func(*storeOptions)

// storeOptions holds configuration for a Store instance.
type storeOptions struct {
	cfg           *config.Config
	configPath    string
	logger        *slog.Logger
	tracer        trace.Tracer
	meterProvider metric.MeterProvider
	admission     *policy.Policy
	seed          int64
	seedSet       bool
}

// WithConfig sets the store configuration directly. Unset fields are filled
// with defaults. Takes precedence over WithConfigFile.
func WithConfig(cfg config.Config) Option {
	return func(o *storeOptions) {
		o.cfg = &cfg
	}
}

// WithConfigFile loads the store configuration from a store.yaml file.
func WithConfigFile(path string) Option {
	return func(o *storeOptions) {
		o.configPath = path
	}
}

// WithLogger sets a custom logger for the store.
// If not provided, a default JSON logger will be created.
func WithLogger(logger *slog.Logger) Option {
	return func(o *storeOptions) {
		o.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer for the store's operations.
// This enables observability and performance monitoring of placement,
// retrieval and maintenance.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *storeOptions) {
		o.tracer = tracer
	}
}

// WithMeterProvider enables OpenTelemetry metrics for the store: operation
// counters, retrieval score distribution and maintenance durations.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *storeOptions) {
		o.meterProvider = mp
	}
}

// WithAdmissionPolicy installs a compiled CEL admission policy applied to
// retrieval candidates. Takes precedence over the policy expression in the
// configuration file.
func WithAdmissionPolicy(p *policy.Policy) Option {
	return func(o *storeOptions) {
		o.admission = p
	}
}

// WithSeed fixes the seed of the store's random source, which generates
// baseline cell embeddings. Useful for reproducible tests; without it, the
// store seeds from the wall clock.
func WithSeed(seed int64) Option {
	return func(o *storeOptions) {
		o.seed = seed
		o.seedSet = true
	}
}

// resolveConfig produces the effective configuration from the options.
func (o *storeOptions) resolveConfig() (config.Config, error) {
	if o.cfg != nil {
		cfg := *o.cfg
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
		return cfg, nil
	}
	if o.configPath != "" {
		return config.Load(o.configPath)
	}
	return config.Default(), nil
}
