package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "schedule-board/api"
	commandSpanName     = "board.command"
	commandEventName    = "board.command.completed"
	commandEventDomain  = "schedule-board"
	observabilityEvent  = "observability.event"
)

// commandMetrics records one add or delete command as a span plus a single
// observability.event log line.
type commandMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	command        string
	route          string
	taskID         string
	rev            uint64
	existed        *bool
	decodeDuration time.Duration
	applyDuration  time.Duration
	errorStage     string
}

func newCommandMetrics(ctx context.Context, logger *log.Logger, command, route string) (*commandMetrics, context.Context) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, commandSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &commandMetrics{
		logger:  logger,
		span:    span,
		start:   time.Now(),
		command: command,
		route:   route,
	}, ctx
}

func (m *commandMetrics) ObserveDecode(d time.Duration) {
	if d > 0 {
		m.decodeDuration = d
	}
}

func (m *commandMetrics) ObserveApply(d time.Duration) {
	if d > 0 {
		m.applyDuration = d
	}
}

func (m *commandMetrics) SetTaskID(id string) { m.taskID = id }

func (m *commandMetrics) SetRev(rev uint64) { m.rev = rev }

func (m *commandMetrics) SetExisted(existed bool) { m.existed = &existed }

func (m *commandMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *commandMetrics) attributes(status int, err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.String("board.command", m.command),
		attribute.Float64("board.command.total_ms", durationToMillis(time.Since(m.start))),
	}
	if m.taskID != "" {
		attrs = append(attrs, attribute.String("board.task_id", m.taskID))
	}
	if m.rev > 0 {
		attrs = append(attrs, attribute.Int64("board.rev", int64(m.rev)))
	}
	if m.existed != nil {
		attrs = append(attrs, attribute.Bool("board.task.existed", *m.existed))
	}
	if m.decodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.command.decode_ms", durationToMillis(m.decodeDuration)))
	}
	if m.applyDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.command.apply_ms", durationToMillis(m.applyDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("board.command.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}
	return attrs
}

// Log ends the span and writes the observability event.
func (m *commandMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	attrs := m.attributes(status, err)
	sevText, sevNumber := severityForStatus(status, err)

	m.span.SetAttributes(attrs...)
	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", commandEventName),
		attribute.String("event.domain", commandEventDomain),
		attribute.String("severity_text", sevText),
		attribute.Int("severity_number", sevNumber),
	}, attrs...)
	m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
	switch {
	case err != nil:
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	case status >= http.StatusInternalServerError:
		m.span.SetStatus(codes.Error, http.StatusText(status))
	default:
		m.span.SetStatus(codes.Ok, "")
	}
	sc := m.span.SpanContext()
	m.span.End()

	if m.logger == nil {
		return
	}
	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      commandEventName,
		"event.domain":    commandEventDomain,
		"attributes":      attrMap,
		"severity_text":   sevText,
		"severity_number": sevNumber,
	}
	if sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	if sc.HasSpanID() {
		fields["span_id"] = sc.SpanID().String()
	}
	entry := m.logger.WithFields(fields)
	switch sevText {
	case "ERROR":
		entry.Error(observabilityEvent)
	case "WARN":
		entry.Warn(observabilityEvent)
	default:
		entry.Info(observabilityEvent)
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
