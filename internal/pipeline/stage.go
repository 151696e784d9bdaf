package pipeline

import (
	"context"
	"net/http"
	"net/url"
)

// Phase names a lifecycle slot.
type Phase string

const (
	PhaseInitContext      Phase = "initContext"
	PhaseSanitizeParams   Phase = "sanitizeParams"
	PhaseSanitizeQuery    Phase = "sanitizeQuery"
	PhaseSanitizeBody     Phase = "sanitizeBody"
	PhasePreAuthorize     Phase = "preAuthorize"
	PhaseAttachData       Phase = "attachData"
	PhaseFinalAuthorize   Phase = "finalAuthorize"
	PhaseExecute          Phase = "execute"
	PhaseRespond          Phase = "respond"
	PhaseSanitizeResponse Phase = "sanitizeResponse"
)

// Phases lists every lifecycle slot in execution order.
var Phases = []Phase{
	PhaseInitContext,
	PhaseSanitizeParams,
	PhaseSanitizeQuery,
	PhaseSanitizeBody,
	PhasePreAuthorize,
	PhaseAttachData,
	PhaseFinalAuthorize,
	PhaseExecute,
	PhaseRespond,
	PhaseSanitizeResponse,
}

// Request is the normalized description of an inbound transport request.
type Request struct {
	Method string
	Path   string
	Params map[string]string
	Query  url.Values
	// Body is the decoded JSON object, or nil when the request had no body.
	Body   map[string]any
	Header http.Header
	// Identity is the caller identity resolved upstream; empty when none.
	Identity string
}

// Response is the descriptor produced by the respond phase.
type Response struct {
	StatusCode int
	Body       any
}

// Pre holds the fields seeded by initContext.
type Pre struct {
	// UserID is the opaque caller identity.
	UserID string
	// Attrs carries any other request-derived values.
	Attrs map[string]string
}

// Inputs is the view available once the sanitize phases have run.
type Inputs[I any] struct {
	Pre Pre
	In  I
}

// Loaded is the view available once attachData phases have run.
type Loaded[I, D any] struct {
	Pre  Pre
	In   I
	Data D
}

// Result is the view available once execute has run.
type Result[I, D, W any] struct {
	Pre  Pre
	In   I
	Data D
	Work W
}

// Phase function signatures, one per slot.
type (
	InitFunc                  func(ctx context.Context, req *Request) (Pre, error)
	ParamsFunc[I any]         func(ctx context.Context, raw map[string]string, in *I) error
	QueryFunc[I any]          func(ctx context.Context, raw url.Values, in *I) error
	BodyFunc[I any]           func(ctx context.Context, raw map[string]any, in *I) error
	GateFunc[V any]           func(ctx context.Context, view V) (bool, error)
	AttachFunc[I, D any]      func(ctx context.Context, view Inputs[I], data *D) error
	ExecuteFunc[I, D, W any]  func(ctx context.Context, view Loaded[I, D], work *W) error
	RespondFunc[I, D, W any]  func(ctx context.Context, view Result[I, D, W]) (Response, error)
	ResponseFunc[I, D, W any] func(ctx context.Context, view Result[I, D, W], body any) (any, error)
)

// slot is one provided phase implementation and the fragment it came from.
type slot[F any] struct {
	fn   F
	from string
	set  bool
}

// Fragment is an immutable bag of phase implementations. The zero value
// provides nothing and is a valid composition input.
type Fragment[I, D, W any] struct {
	name string

	init             slot[InitFunc]
	sanitizeParams   slot[ParamsFunc[I]]
	sanitizeQuery    slot[QueryFunc[I]]
	sanitizeBody     slot[BodyFunc[I]]
	preAuthorize     []slot[GateFunc[Inputs[I]]]
	attachData       []slot[AttachFunc[I, D]]
	finalAuthorize   []slot[GateFunc[Loaded[I, D]]]
	execute          slot[ExecuteFunc[I, D, W]]
	respond          slot[RespondFunc[I, D, W]]
	sanitizeResponse slot[ResponseFunc[I, D, W]]
}

// Name returns the fragment name, or "" when unnamed.
func (f Fragment[I, D, W]) Name() string {
	return f.name
}

// Provides reports whether the fragment populates phase.
func (f Fragment[I, D, W]) Provides(phase Phase) bool {
	switch phase {
	case PhaseInitContext:
		return f.init.set
	case PhaseSanitizeParams:
		return f.sanitizeParams.set
	case PhaseSanitizeQuery:
		return f.sanitizeQuery.set
	case PhaseSanitizeBody:
		return f.sanitizeBody.set
	case PhasePreAuthorize:
		return len(f.preAuthorize) > 0
	case PhaseAttachData:
		return len(f.attachData) > 0
	case PhaseFinalAuthorize:
		return len(f.finalAuthorize) > 0
	case PhaseExecute:
		return f.execute.set
	case PhaseRespond:
		return f.respond.set
	case PhaseSanitizeResponse:
		return f.sanitizeResponse.set
	}
	return false
}

// Named labels f and attributes its unattributed slots to name, so
// composition errors and traces can say where a phase came from.
func Named[I, D, W any](name string, f Fragment[I, D, W]) Fragment[I, D, W] {
	f.name = name
	f.init = claim(f.init, name)
	f.sanitizeParams = claim(f.sanitizeParams, name)
	f.sanitizeQuery = claim(f.sanitizeQuery, name)
	f.sanitizeBody = claim(f.sanitizeBody, name)
	f.preAuthorize = claimAll(f.preAuthorize, name)
	f.attachData = claimAll(f.attachData, name)
	f.finalAuthorize = claimAll(f.finalAuthorize, name)
	f.execute = claim(f.execute, name)
	f.respond = claim(f.respond, name)
	f.sanitizeResponse = claim(f.sanitizeResponse, name)
	return f
}

func claim[F any](s slot[F], name string) slot[F] {
	if s.set && s.from == "" {
		s.from = name
	}
	return s
}

func claimAll[F any](ss []slot[F], name string) []slot[F] {
	if len(ss) == 0 {
		return nil
	}
	out := make([]slot[F], len(ss))
	for i, s := range ss {
		out[i] = claim(s, name)
	}
	return out
}

// InitContext provides the initContext slot.
func InitContext[I, D, W any](fn InitFunc) Fragment[I, D, W] {
	return Fragment[I, D, W]{init: slot[InitFunc]{fn: fn, set: true}}
}

// SanitizeParams provides the sanitizeParams slot.
func SanitizeParams[I, D, W any](fn ParamsFunc[I]) Fragment[I, D, W] {
	return Fragment[I, D, W]{sanitizeParams: slot[ParamsFunc[I]]{fn: fn, set: true}}
}

// SanitizeQuery provides the sanitizeQuery slot.
func SanitizeQuery[I, D, W any](fn QueryFunc[I]) Fragment[I, D, W] {
	return Fragment[I, D, W]{sanitizeQuery: slot[QueryFunc[I]]{fn: fn, set: true}}
}

// SanitizeBody provides the sanitizeBody slot.
func SanitizeBody[I, D, W any](fn BodyFunc[I]) Fragment[I, D, W] {
	return Fragment[I, D, W]{sanitizeBody: slot[BodyFunc[I]]{fn: fn, set: true}}
}

// PreAuthorize provides a pre-data authorization gate.
func PreAuthorize[I, D, W any](fn GateFunc[Inputs[I]]) Fragment[I, D, W] {
	return Fragment[I, D, W]{preAuthorize: []slot[GateFunc[Inputs[I]]]{{fn: fn, set: true}}}
}

// AttachData provides a data attachment phase.
func AttachData[I, D, W any](fn AttachFunc[I, D]) Fragment[I, D, W] {
	return Fragment[I, D, W]{attachData: []slot[AttachFunc[I, D]]{{fn: fn, set: true}}}
}

// FinalAuthorize provides a post-data authorization gate.
func FinalAuthorize[I, D, W any](fn GateFunc[Loaded[I, D]]) Fragment[I, D, W] {
	return Fragment[I, D, W]{finalAuthorize: []slot[GateFunc[Loaded[I, D]]]{{fn: fn, set: true}}}
}

// Execute provides the execute slot.
func Execute[I, D, W any](fn ExecuteFunc[I, D, W]) Fragment[I, D, W] {
	return Fragment[I, D, W]{execute: slot[ExecuteFunc[I, D, W]]{fn: fn, set: true}}
}

// Respond provides the respond slot.
func Respond[I, D, W any](fn RespondFunc[I, D, W]) Fragment[I, D, W] {
	return Fragment[I, D, W]{respond: slot[RespondFunc[I, D, W]]{fn: fn, set: true}}
}

// SanitizeResponse provides the sanitizeResponse slot.
func SanitizeResponse[I, D, W any](fn ResponseFunc[I, D, W]) Fragment[I, D, W] {
	return Fragment[I, D, W]{sanitizeResponse: slot[ResponseFunc[I, D, W]]{fn: fn, set: true}}
}

// AllowAll is a gate that always passes. Handlers use it to state that a
// gate was considered and intentionally left open.
func AllowAll[V any](context.Context, V) (bool, error) {
	return true, nil
}
