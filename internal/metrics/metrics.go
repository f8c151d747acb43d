package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	studentsCreated    metric.Int64Counter
	studentsExtended   metric.Int64Counter
	studentsUpdated    metric.Int64Counter
	extensionsUpdated  metric.Int64Counter
	studentsDeleted    metric.Int64Counter
	studentsViewed     metric.Int64Counter
	studentsListViewed metric.Int64Counter
	validationFailures metric.Int64Counter
	queryDuration      metric.Float64Histogram
	queryErrors        metric.Int64Counter
	eventsPublished    metric.Int64Counter
	eventErrors        metric.Int64Counter
	publishDuration    metric.Float64Histogram
	dependencyCheck    metric.Float64Histogram
	serviceInfo        metric.Int64ObservableGauge
}

func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
		unit        string
	}{
		{&m.studentsCreated, "student_records.students.created", "Master records created (phase one)", "{student}"},
		{&m.studentsExtended, "student_records.students.extended", "Extension data attached (phase two)", "{student}"},
		{&m.studentsUpdated, "student_records.students.updated", "Master record updates", "{update}"},
		{&m.extensionsUpdated, "student_records.extensions.updated", "Extension data updates", "{update}"},
		{&m.studentsDeleted, "student_records.students.deleted", "Master records deleted", "{student}"},
		{&m.studentsViewed, "student_records.students.viewed", "Single student views", "{view}"},
		{&m.studentsListViewed, "student_records.students.list_viewed", "Student list views", "{view}"},
		{&m.validationFailures, "student_records.validation.failures", "Rejected submissions by error kind", "{failure}"},
		{&m.queryErrors, "db.query.errors", "Database query errors", "{error}"},
		{&m.eventsPublished, "messaging.messages.published", "Lifecycle events published", "{message}"},
		{&m.eventErrors, "messaging.errors", "Lifecycle events that failed to publish", "{error}"},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.description), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}

	// Buckets: 1ms, 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s
	var err error
	m.queryDuration, err = meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return nil, err
	}

	// Buckets: 100µs, 500µs, 1ms, 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s
	m.publishDuration, err = meter.Float64Histogram(
		"messaging.message.publish_duration",
		metric.WithDescription("Time spent publishing a message"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)
	if err != nil {
		return nil, err
	}

	m.dependencyCheck, err = meter.Float64Histogram(
		"dependency.response_time",
		metric.WithDescription("Dependency health check response time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, err
	}

	m.serviceInfo, err = meter.Int64ObservableGauge(
		"service.info",
		metric.WithDescription("Service metadata information"),
		metric.WithUnit("{info}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RegisterServiceInfo exports a constant gauge carrying build metadata as attributes.
func (m *Metrics) RegisterServiceInfo(meter metric.Meter, serviceName, version, env string) error {
	if m == nil || m.serviceInfo == nil {
		return nil
	}
	attrs := metric.WithAttributes(
		attribute.String("service_name", serviceName),
		attribute.String("version", version),
		attribute.String("environment", env),
	)
	_, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		observer.ObserveInt64(m.serviceInfo, 1, attrs)
		return nil
	}, m.serviceInfo)
	return err
}

func add(ctx context.Context, c metric.Int64Counter, opts ...metric.AddOption) {
	if c != nil {
		c.Add(ctx, 1, opts...)
	}
}

func (m *Metrics) RecordStudentCreated(ctx context.Context) {
	if m != nil {
		add(ctx, m.studentsCreated)
	}
}

func (m *Metrics) RecordStudentExtended(ctx context.Context) {
	if m != nil {
		add(ctx, m.studentsExtended)
	}
}

func (m *Metrics) RecordStudentUpdated(ctx context.Context) {
	if m != nil {
		add(ctx, m.studentsUpdated)
	}
}

func (m *Metrics) RecordExtensionUpdated(ctx context.Context) {
	if m != nil {
		add(ctx, m.extensionsUpdated)
	}
}

func (m *Metrics) RecordStudentDeleted(ctx context.Context) {
	if m != nil {
		add(ctx, m.studentsDeleted)
	}
}

func (m *Metrics) RecordStudentViewed(ctx context.Context) {
	if m != nil {
		add(ctx, m.studentsViewed)
	}
}

func (m *Metrics) RecordStudentsListViewed(ctx context.Context) {
	if m != nil {
		add(ctx, m.studentsListViewed)
	}
}

func (m *Metrics) RecordValidationFailure(ctx context.Context, kind string) {
	if m != nil {
		add(ctx, m.validationFailures, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func (m *Metrics) RecordQuery(ctx context.Context, operation string, table string, duration time.Duration, err error) {
	if m == nil || m.queryDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("table", table),
	}
	m.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if err != nil {
		add(ctx, m.queryErrors, metric.WithAttributes(attrs...))
	}
}

// NewMock creates a no-op Metrics instance for testing
// The returned Metrics will safely ignore all Record* calls
func NewMock() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordPublish(ctx context.Context, eventType string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("event_type", eventType))
	if m.publishDuration != nil {
		m.publishDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if err != nil {
		add(ctx, m.eventErrors, attrs)
		return
	}
	add(ctx, m.eventsPublished, attrs)
}

func (m *Metrics) RecordDependencyCheck(ctx context.Context, dependency string, duration time.Duration, err error) {
	if m == nil || m.dependencyCheck == nil {
		return
	}
	m.dependencyCheck.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("dependency", dependency),
		attribute.Bool("up", err == nil),
	))
}
