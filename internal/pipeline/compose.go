package pipeline

// Compose merges fragments left to right into one fragment.
//
// Gates and attachData phases are concatenated in argument order. Every
// other slot may be provided by at most one fragment; a second provider
// yields a *CompositionError naming both. The merged fragment is unnamed
// and can itself be composed again.
func Compose[I, D, W any](fragments ...Fragment[I, D, W]) (Fragment[I, D, W], error) {
	var out Fragment[I, D, W]
	for _, f := range fragments {
		var err error
		if out.init, err = mergeSlot(PhaseInitContext, out.init, f.init); err != nil {
			return Fragment[I, D, W]{}, err
		}
		if out.sanitizeParams, err = mergeSlot(PhaseSanitizeParams, out.sanitizeParams, f.sanitizeParams); err != nil {
			return Fragment[I, D, W]{}, err
		}
		if out.sanitizeQuery, err = mergeSlot(PhaseSanitizeQuery, out.sanitizeQuery, f.sanitizeQuery); err != nil {
			return Fragment[I, D, W]{}, err
		}
		if out.sanitizeBody, err = mergeSlot(PhaseSanitizeBody, out.sanitizeBody, f.sanitizeBody); err != nil {
			return Fragment[I, D, W]{}, err
		}
		if out.execute, err = mergeSlot(PhaseExecute, out.execute, f.execute); err != nil {
			return Fragment[I, D, W]{}, err
		}
		if out.respond, err = mergeSlot(PhaseRespond, out.respond, f.respond); err != nil {
			return Fragment[I, D, W]{}, err
		}
		if out.sanitizeResponse, err = mergeSlot(PhaseSanitizeResponse, out.sanitizeResponse, f.sanitizeResponse); err != nil {
			return Fragment[I, D, W]{}, err
		}
		out.preAuthorize = appendSlots(out.preAuthorize, f.preAuthorize)
		out.attachData = appendSlots(out.attachData, f.attachData)
		out.finalAuthorize = appendSlots(out.finalAuthorize, f.finalAuthorize)
	}
	return out, nil
}

// MustCompose is like Compose but panics on a collision. It is meant for
// package-level mixins whose composition is fixed at compile time.
func MustCompose[I, D, W any](fragments ...Fragment[I, D, W]) Fragment[I, D, W] {
	f, err := Compose(fragments...)
	if err != nil {
		panic(err)
	}
	return f
}

func mergeSlot[F any](phase Phase, have, next slot[F]) (slot[F], error) {
	if !next.set {
		return have, nil
	}
	if have.set {
		return have, &CompositionError{Slot: phase, First: sourceName(have.from), Second: sourceName(next.from)}
	}
	return next, nil
}

// appendSlots never aliases either input so composed fragments stay
// independent of their parts.
func appendSlots[F any](a, b []slot[F]) []slot[F] {
	if len(a)+len(b) == 0 {
		return nil
	}
	out := make([]slot[F], 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func sourceName(from string) string {
	if from == "" {
		return "<unnamed>"
	}
	return from
}
