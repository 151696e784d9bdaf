// Package pipeline provides the staged request-lifecycle engine every notes
// handler is built from.
//
// A handler is a composition of fragments. Each fragment supplies zero or more
// named phase implementations, and the executor runs the populated phases in a
// fixed order:
//
//	initContext → sanitizeParams → sanitizeQuery → sanitizeBody →
//	preAuthorize → attachData → finalAuthorize → execute → respond →
//	sanitizeResponse
//
// # Typed context
//
// The per-request context is split into records owned by the phases that fill
// them. A handler declares three record types:
//
//   - I, the sanitized inputs (written by the sanitize phases)
//   - D, the attached data (written by attachData phases, in order)
//   - W, the work result (written by execute)
//
// Every phase receives a read-only view of what earlier phases produced plus,
// when it has one, a pointer to the record it owns. An authorization gate
// cannot mutate anything; an attachData phase cannot rewrite sanitized inputs.
//
// # Composition
//
// Fragments are merged with Compose. Single-occurrence slots may be provided
// by at most one fragment; a collision is reported as a *CompositionError.
// Authorization gates combine by conjunction and attachData phases run in the
// order their fragments were listed. Composed fragments compose again with the
// same semantics.
//
// # Failures
//
// Phases report failures as *Error values carrying a Kind (validation,
// not_found, forbidden, unauthenticated, internal). The executor stops at the
// first failure and returns it; mapping kinds to transport status codes is
// left to the caller via (*Error).HTTPStatusCode.
package pipeline
