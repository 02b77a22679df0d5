package signalr

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// defaultServerTimeout is the window of inbound silence the watchdog
// tolerates before aborting the transport. It has no value mandated by
// the spec; 30s matches the long-standing default of the protocol this
// core reimplements.
const defaultServerTimeout = 30 * time.Second

type options struct {
	serverTimeout  time.Duration
	loggers        []Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	idSource       idSource
}

// Option configures a HubConnection built by New.
type Option func(*options)

// WithServerTimeout sets the server-idle watchdog window. It may also be
// changed later via HubConnection.SetServerTimeout; either way the change
// takes effect at the watchdog's next rearm, not immediately.
func WithServerTimeout(d time.Duration) Option {
	return func(o *options) { o.serverTimeout = d }
}

// WithLogger attaches a Logger. May be called more than once; every
// attached Logger observes every traffic event.
func WithLogger(l Logger) Option {
	return func(o *options) { o.loggers = append(o.loggers, l) }
}

// WithTracerProvider sets the OpenTelemetry TracerProvider used to open
// spans around invocations and inbound dispatch. Defaults to the global
// provider (a no-op until one is registered) when unset.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the OpenTelemetry MeterProvider used to record
// byte and RPC-count metrics. Defaults to the global provider when unset.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// withIDSource overrides the invocation id generator. Unexported: it
// exists only as a test seam for forcing id collisions (spec scenario 6),
// never as public API.
func withIDSource(s idSource) Option {
	return func(o *options) { o.idSource = s }
}

func newOptions(opts ...Option) *options {
	o := &options{serverTimeout: defaultServerTimeout}
	for _, apply := range opts {
		apply(o)
	}
	if o.idSource == nil {
		o.idSource = &idGenerator{}
	}
	return o
}
