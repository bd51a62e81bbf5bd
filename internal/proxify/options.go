package proxify

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/monitoring"
)

const defaultRequestTimeout = 10 * time.Second

type options struct {
	logger         *zap.Logger
	metrics        *monitoring.Metrics
	requestTimeout time.Duration
}

// Option configures the origin and destination factories
type Option func(*options)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logging.OrNop(logger) }
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithRequestTimeout bounds how long script code waits on a blocking
// forward. Zero waits until the realm closes.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:         zap.NewNop(),
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
