package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/tjfontaine/hipnotes/internal/pipeline"

// Outcome summarizes how a phase ended.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeDenied Outcome = "denied"
	OutcomeError  Outcome = "error"
)

// PhaseEvent is reported to observers after every phase that ran.
type PhaseEvent struct {
	Handler  string
	Phase    Phase
	Duration time.Duration
	Outcome  Outcome
	Err      error
}

// Option configures a Handler.
type Option func(*options)

type options struct {
	tracer   trace.Tracer
	logger   *slog.Logger
	observer func(PhaseEvent)
}

// WithTracer sets the tracer used for per-request spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithLogger sets the logger used for phase transitions.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver registers a callback invoked after each phase.
func WithObserver(fn func(PhaseEvent)) Option {
	return func(o *options) { o.observer = fn }
}

// Runner is the type-erased view of a Handler used by the transport.
type Runner interface {
	Name() string
	Phases() []Phase
	Run(ctx context.Context, req *Request) (*Response, error)
}

// Handler executes a composed fragment as a request lifecycle.
// It is safe for concurrent use; every Run gets its own context records.
type Handler[I, D, W any] struct {
	name string
	f    Fragment[I, D, W]
	opts options
}

var _ Runner = (*Handler[struct{}, struct{}, struct{}])(nil)

// NewHandler validates f and returns a runnable handler. A fragment that
// provides no authorization gate at all is rejected with ErrNoAuthorization.
func NewHandler[I, D, W any](name string, f Fragment[I, D, W], opts ...Option) (*Handler[I, D, W], error) {
	if len(f.preAuthorize) == 0 && len(f.finalAuthorize) == 0 {
		return nil, fmt.Errorf("handler %s: %w", name, ErrNoAuthorization)
	}
	h := &Handler[I, D, W]{name: name, f: f}
	for _, opt := range opts {
		opt(&h.opts)
	}
	if h.opts.tracer == nil {
		h.opts.tracer = otel.Tracer(instrumentationName)
	}
	if h.opts.logger == nil {
		h.opts.logger = slog.Default()
	}
	return h, nil
}

// Name returns the handler name.
func (h *Handler[I, D, W]) Name() string {
	return h.name
}

// Phases returns the populated phases in execution order.
func (h *Handler[I, D, W]) Phases() []Phase {
	var out []Phase
	for _, p := range Phases {
		if h.f.Provides(p) {
			out = append(out, p)
		}
	}
	return out
}

// Run executes the lifecycle for one request. It returns either a response
// or a *Error describing the first phase that failed.
func (h *Handler[I, D, W]) Run(ctx context.Context, req *Request) (resp *Response, err error) {
	ctx, span := h.opts.tracer.Start(ctx, "pipeline "+h.name,
		trace.WithAttributes(attribute.String("pipeline.handler", h.name)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(KindOf(err)))
		}
		span.End()
	}()

	r := run[I, D, W]{h: h, span: span, req: req}
	if err := r.sanitize(ctx); err != nil {
		return nil, err
	}
	if err := r.authorizeAndLoad(ctx); err != nil {
		return nil, err
	}
	if err := r.step(ctx, PhaseExecute, h.f.execute.set, func(ctx context.Context) error {
		return h.f.execute.fn(ctx, r.loaded(), &r.work)
	}); err != nil {
		return nil, err
	}
	return r.respond(ctx)
}

// run carries the records of a single execution.
type run[I, D, W any] struct {
	h    *Handler[I, D, W]
	span trace.Span
	req  *Request

	pre  Pre
	in   I
	data D
	work W
}

func (r *run[I, D, W]) inputs() Inputs[I] {
	return Inputs[I]{Pre: r.pre, In: r.in}
}

func (r *run[I, D, W]) loaded() Loaded[I, D] {
	return Loaded[I, D]{Pre: r.pre, In: r.in, Data: r.data}
}

func (r *run[I, D, W]) result() Result[I, D, W] {
	return Result[I, D, W]{Pre: r.pre, In: r.in, Data: r.data, Work: r.work}
}

func (r *run[I, D, W]) sanitize(ctx context.Context) error {
	f := r.h.f
	if err := r.step(ctx, PhaseInitContext, f.init.set, func(ctx context.Context) error {
		pre, err := f.init.fn(ctx, r.req)
		if err != nil {
			return err
		}
		r.pre = pre
		return nil
	}); err != nil {
		return err
	}
	if err := r.step(ctx, PhaseSanitizeParams, f.sanitizeParams.set, func(ctx context.Context) error {
		return f.sanitizeParams.fn(ctx, r.req.Params, &r.in)
	}); err != nil {
		return err
	}
	if err := r.step(ctx, PhaseSanitizeQuery, f.sanitizeQuery.set, func(ctx context.Context) error {
		return f.sanitizeQuery.fn(ctx, r.req.Query, &r.in)
	}); err != nil {
		return err
	}
	return r.step(ctx, PhaseSanitizeBody, f.sanitizeBody.set, func(ctx context.Context) error {
		return f.sanitizeBody.fn(ctx, r.req.Body, &r.in)
	})
}

func (r *run[I, D, W]) authorizeAndLoad(ctx context.Context) error {
	f := r.h.f
	if err := r.step(ctx, PhasePreAuthorize, true, func(ctx context.Context) error {
		return gate(ctx, f.preAuthorize, r.inputs())
	}); err != nil {
		return err
	}
	if err := r.step(ctx, PhaseAttachData, len(f.attachData) > 0, func(ctx context.Context) error {
		for _, a := range f.attachData {
			if err := a.fn(ctx, r.inputs(), &r.data); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	return r.step(ctx, PhaseFinalAuthorize, true, func(ctx context.Context) error {
		return gate(ctx, f.finalAuthorize, r.loaded())
	})
}

func (r *run[I, D, W]) respond(ctx context.Context) (*Response, error) {
	f := r.h.f
	resp := Response{StatusCode: http.StatusNoContent}
	if err := r.step(ctx, PhaseRespond, f.respond.set, func(ctx context.Context) error {
		out, err := f.respond.fn(ctx, r.result())
		if err != nil {
			return err
		}
		resp = out
		return nil
	}); err != nil {
		return nil, err
	}
	if err := r.step(ctx, PhaseSanitizeResponse, f.sanitizeResponse.set, func(ctx context.Context) error {
		body, err := f.sanitizeResponse.fn(ctx, r.result(), resp.Body)
		if err != nil {
			return err
		}
		resp.Body = body
		return nil
	}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// gate evaluates gates in order and stops at the first refusal. No gates
// at all is a refusal.
func gate[V any](ctx context.Context, gates []slot[GateFunc[V]], view V) error {
	if len(gates) == 0 {
		return ErrForbidden("No authorization rule allows this request")
	}
	for _, g := range gates {
		ok, err := g.fn(ctx, view)
		if err != nil {
			return err
		}
		if !ok {
			return ErrForbidden(defaultMessage(KindForbidden))
		}
	}
	return nil
}

// step runs one phase when present, classifies its failure and reports it.
func (r *run[I, D, W]) step(ctx context.Context, phase Phase, present bool, fn func(context.Context) error) error {
	if !present {
		return nil
	}
	start := time.Now()
	panicked, raw := invoke(ctx, fn)

	var err *Error
	switch {
	case raw == nil:
	case panicked:
		err = &Error{Kind: KindInternal, Message: defaultMessage(KindInternal), Phase: phase, Err: raw}
	default:
		err = classifyPhase(phase, raw)
	}

	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
		if IsDenied(err) {
			outcome = OutcomeDenied
		}
	}
	elapsed := time.Since(start)

	r.span.AddEvent(string(phase), trace.WithAttributes(
		attribute.String("pipeline.outcome", string(outcome)),
		attribute.Int64("pipeline.duration_us", elapsed.Microseconds()),
	))
	attrs := []any{
		"handler", r.h.name,
		"phase", phase,
		"outcome", outcome,
		"duration", elapsed,
	}
	if err != nil {
		attrs = append(attrs, "error_kind", err.Kind, "error", err.Error())
	}
	r.h.opts.logger.DebugContext(ctx, "pipeline phase", attrs...)
	if r.h.opts.observer != nil {
		ev := PhaseEvent{Handler: r.h.name, Phase: phase, Duration: elapsed, Outcome: outcome}
		if err != nil {
			ev.Err = err
		}
		r.h.opts.observer(ev)
	}

	if err != nil {
		return err
	}
	return nil
}

func invoke(ctx context.Context, fn func(context.Context) error) (panicked bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			panicked = true
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return false, fn(ctx)
}

func classifyPhase(phase Phase, err error) *Error {
	switch phase {
	case PhaseSanitizeParams, PhaseSanitizeQuery, PhaseSanitizeBody:
		return classify(phase, err, KindValidation)
	case PhasePreAuthorize:
		return classify(phase, err, KindForbidden, KindForbidden, KindUnauthenticated)
	case PhaseFinalAuthorize:
		return classify(phase, err, KindForbidden)
	case PhaseSanitizeResponse:
		return classify(phase, err, KindValidation, KindValidation)
	default:
		return classify(phase, err, KindInternal)
	}
}

// IsDenied reports whether err is an authorization refusal.
func IsDenied(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == KindForbidden || pe.Kind == KindUnauthenticated
}
