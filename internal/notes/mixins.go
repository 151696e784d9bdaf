package notes

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/tjfontaine/hipnotes/internal/pipeline"
	"github.com/tjfontaine/hipnotes/internal/storage"
	"github.com/tjfontaine/hipnotes/internal/validation"
)

// extractUserID seeds the caller identity resolved by the transport.
func extractUserID[B any]() stage[B] {
	return pipeline.Named("extractUserID", pipeline.InitContext[input[B], data, work](
		func(ctx context.Context, req *pipeline.Request) (pipeline.Pre, error) {
			return pipeline.Pre{UserID: req.Identity}, nil
		}))
}

func requireAuthenticated[B any]() stage[B] {
	return pipeline.Named("requireAuthenticated", pipeline.PreAuthorize[input[B], data, work](
		func(ctx context.Context, v pipeline.Inputs[input[B]]) (bool, error) {
			if v.Pre.UserID == "" {
				return false, pipeline.ErrUnauthenticated("Authentication required")
			}
			return true, nil
		}))
}

// requireOwnership passes only when the loaded note belongs to the caller.
func requireOwnership[B any]() stage[B] {
	return pipeline.Named("requireOwnership", pipeline.FinalAuthorize[input[B], data, work](
		func(ctx context.Context, v pipeline.Loaded[input[B], data]) (bool, error) {
			note := v.Data.Note
			if note == nil || note.OwnerID == "" {
				return false, nil
			}
			return note.OwnerID == v.Pre.UserID, nil
		}))
}

// allowAuthenticated is the final gate of handlers that have no
// resource-level rule beyond authentication.
func allowAuthenticated[B any]() stage[B] {
	return pipeline.Named("allowAuthenticated", pipeline.FinalAuthorize[input[B], data, work](
		pipeline.AllowAll[pipeline.Loaded[input[B], data]]))
}

func sanitizeParams[B any](a validation.Adapter) stage[B] {
	return pipeline.Named("sanitizeParams", pipeline.SanitizeParams[input[B], data, work](
		func(ctx context.Context, raw map[string]string, in *input[B]) error {
			values := make(map[string]any, len(raw))
			for k, v := range raw {
				values[k] = v
			}
			clean, err := a.Sanitize(ParamsSchema, values)
			if err != nil {
				return err
			}
			return validation.Decode(clean, &in.Params)
		}))
}

func sanitizeQuery[B any](a validation.Adapter) stage[B] {
	return pipeline.Named("sanitizeQuery", pipeline.SanitizeQuery[input[B], data, work](
		func(ctx context.Context, raw url.Values, in *input[B]) error {
			values := make(map[string]any, len(raw))
			for k := range raw {
				values[k] = raw.Get(k)
			}
			clean, err := a.Sanitize(ListQuerySchema, values)
			if err != nil {
				return err
			}
			return validation.Decode(clean, &in.Query)
		}))
}

func sanitizeBody[B any](a validation.Adapter, s *validation.Schema) stage[B] {
	return pipeline.Named("sanitizeBody", pipeline.SanitizeBody[input[B], data, work](
		func(ctx context.Context, raw map[string]any, in *input[B]) error {
			if raw == nil {
				raw = map[string]any{}
			}
			clean, err := a.Sanitize(s, raw)
			if err != nil {
				return err
			}
			return validation.Decode(clean, &in.Body)
		}))
}

// paramIDToNote validates the id route parameter and loads the note it
// names, failing with not_found when it does not exist.
func paramIDToNote[B any](a validation.Adapter, store storage.NoteStore) stage[B] {
	findNote := validation.FindByIDRequired(a, "Note", store.FindByID)
	return pipeline.Named("paramIdToNote", pipeline.MustCompose(
		sanitizeParams[B](a),
		pipeline.AttachData[input[B], data, work](
			func(ctx context.Context, v pipeline.Inputs[input[B]], d *data) error {
				d.NoteID = v.In.Params.ID
				return nil
			}),
		pipeline.AttachData[input[B], data, work](
			func(ctx context.Context, v pipeline.Inputs[input[B]], d *data) error {
				note, err := findNote(ctx, d.NoteID)
				if err != nil {
					return err
				}
				d.Note = note
				return nil
			}),
	))
}

// sanitizeResponse validates the outgoing body against s.
func sanitizeResponse[B any](a validation.Adapter, s *validation.Schema) stage[B] {
	return pipeline.Named("sanitizeResponse", pipeline.SanitizeResponse[input[B], data, work](
		func(ctx context.Context, v pipeline.Result[input[B], data, work], body any) (any, error) {
			m, ok := body.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("response body is %T, want object", body)
			}
			return a.Sanitize(s, m)
		}))
}

// persistenceError maps a store failure during execute.
func persistenceError(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return pipeline.ErrNotFound("Note not found").WithCause(err)
	}
	return fmt.Errorf("%s note: %w", op, err)
}
