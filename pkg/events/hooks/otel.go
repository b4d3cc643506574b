package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/auditkit/auditkit/pkg/defaults"
	"github.com/auditkit/auditkit/pkg/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// OTelHook exports audit telemetry to an OpenTelemetry collector: one
// root span per scan, with page-fetch, page-audit, and issue events
// recorded as span events carrying their own attributes.
//
// Grounded on the teacher's pkg/output/hooks/otel.go (root-span
// lifecycle tied to scan start/complete, OTLP/gRPC exporter setup).
type OTelHook struct {
	opts           OTelOptions
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	mu      sync.Mutex
	spans   map[string]trace.Span
	scanCtx map[string]context.Context
}

// OTelOptions configures OTelHook.
type OTelOptions struct {
	Endpoint    string // default "localhost:4317"
	ServiceName string // default defaults.Product
	Insecure    bool
}

// NewOTelHook builds an exporter and tracer provider and returns a hook
// ready to receive events.
func NewOTelHook(opts OTelOptions) (*OTelHook, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = defaults.Product
	}
	if opts.Endpoint == "" {
		opts.Endpoint = "localhost:4317"
	}

	var dialOpts []grpc.DialOption
	if opts.Insecure {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithDialOption(dialOpts...),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(defaults.Version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	return &OTelHook{
		opts:           opts,
		tracerProvider: tp,
		tracer:         tp.Tracer(opts.ServiceName),
		spans:          make(map[string]trace.Span),
		scanCtx:        make(map[string]context.Context),
	}, nil
}

func (h *OTelHook) OnEvent(e events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	scanID := e.ScanID()
	switch ev := e.(type) {
	case events.PhaseEvent:
		if ev.To == "crawling" && h.spans[scanID] == nil {
			ctx, span := h.tracer.Start(context.Background(), "audit.scan", trace.WithAttributes(attribute.String("scan.id", scanID)))
			h.spans[scanID] = span
			h.scanCtx[scanID] = ctx
		}
	case events.PageFetchedEvent:
		h.addEvent(scanID, "page.fetched", attribute.String("url", ev.URL), attribute.Int("status", ev.Status))
	case events.PageAuditedEvent:
		h.addEvent(scanID, "page.audited", attribute.String("url", ev.URL), attribute.Int("issues", ev.IssuesFound))
	case events.IssueEvent:
		h.addEvent(scanID, "issue.found", attribute.String("page", ev.Issue.Page), attribute.String("module", ev.Issue.Module), attribute.String("severity", string(ev.Issue.Severity)))
	case events.CompleteEvent:
		if span := h.spans[scanID]; span != nil {
			span.SetStatus(codes.Ok, "")
			span.End()
			delete(h.spans, scanID)
			delete(h.scanCtx, scanID)
		}
	}
	return nil
}

func (h *OTelHook) addEvent(scanID, name string, attrs ...attribute.KeyValue) {
	span := h.spans[scanID]
	if span == nil {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// EventTypes returns nil: OTelHook wants every event.
func (h *OTelHook) EventTypes() []events.EventType { return nil }

// Close flushes and shuts down the tracer provider.
func (h *OTelHook) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.tracerProvider.Shutdown(ctx)
}
