package core

import (
	"context"
	"time"

	"cylindercore/pkg/domain"
)

// Logger is the structured logging surface used by the service. Arguments are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder observes the outcome and latency of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

// ActivityStatus is the outcome of a recorded operation.
type ActivityStatus string

// Activity outcomes.
const (
	ActivityStatusSuccess ActivityStatus = "success"
	ActivityStatusError   ActivityStatus = "error"
)

// ActivityEntry is one line of the operator activity trail.
type ActivityEntry struct {
	Operation string
	Entity    domain.EntityType
	Action    domain.Action
	EntityID  string
	ActorID   string
	Status    ActivityStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// ActivityRecorder persists or forwards activity entries.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopActivityRecorder struct{}

func (noopActivityRecorder) Record(context.Context, ActivityEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger     Logger
	clock      Clock
	metrics    MetricsRecorder
	tracer     Tracer
	activity   ActivityRecorder
	authorizer Authorizer
	catalog    domain.CompatibilityChecker
	archive    ReportArchive
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:     noopLogger{},
		clock:      ClockFunc(func() time.Time { return time.Now().UTC() }),
		metrics:    noopMetricsRecorder{},
		tracer:     noopTracer{},
		activity:   noopActivityRecorder{},
		authorizer: AllowAll{},
		catalog:    domain.CompatibilityRules(nil),
	}
}

// WithLogger sets the service logger. Nil keeps the no-op logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the service clock. The store clock follows it when the
// store supports SetNowFunc.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMetricsRecorder installs an operation metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer installs an operation tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithActivityRecorder installs the activity trail sink.
func WithActivityRecorder(recorder ActivityRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.activity = recorder
		}
	}
}

// WithAuthorizer installs the policy consulted before every mutation.
func WithAuthorizer(authorizer Authorizer) ServiceOption {
	return func(o *serviceOptions) {
		if authorizer != nil {
			o.authorizer = authorizer
		}
	}
}

// WithCatalog installs the gas compatibility checker used when filling.
func WithCatalog(checker domain.CompatibilityChecker) ServiceOption {
	return func(o *serviceOptions) {
		if checker != nil {
			o.catalog = checker
		}
	}
}

// WithArchive installs the audit report archive.
func WithArchive(archive ReportArchive) ServiceOption {
	return func(o *serviceOptions) {
		o.archive = archive
	}
}
