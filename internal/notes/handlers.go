// Package notes implements the notes CRUD handlers as pipeline compositions.
package notes

import (
	"context"
	"net/http"

	"github.com/tjfontaine/hipnotes/internal/domain"
	"github.com/tjfontaine/hipnotes/internal/pipeline"
	"github.com/tjfontaine/hipnotes/internal/storage"
	"github.com/tjfontaine/hipnotes/internal/validation"
)

// Handlers holds the five note operations.
type Handlers struct {
	Create pipeline.Runner
	Get    pipeline.Runner
	List   pipeline.Runner
	Update pipeline.Runner
	Delete pipeline.Runner

	adapter validation.Adapter
}

// NewHandlers builds every notes handler against adapter and store.
func NewHandlers(adapter validation.Adapter, store storage.NoteStore, opts ...pipeline.Option) (*Handlers, error) {
	h := &Handlers{adapter: adapter}

	var err error
	if h.Create, err = pipeline.NewHandler("createNote", createNote(adapter, store), opts...); err != nil {
		return nil, err
	}
	if h.Get, err = pipeline.NewHandler("getNote", getNote(adapter, store), opts...); err != nil {
		return nil, err
	}
	if h.List, err = pipeline.NewHandler("listNotes", listNotes(adapter, store), opts...); err != nil {
		return nil, err
	}
	if h.Update, err = pipeline.NewHandler("updateNote", updateNote(adapter, store), opts...); err != nil {
		return nil, err
	}
	if h.Delete, err = pipeline.NewHandler("deleteNote", deleteNote(adapter, store), opts...); err != nil {
		return nil, err
	}
	return h, nil
}

// Adapter returns the name of the validation adapter in use.
func (h *Handlers) Adapter() string {
	return h.adapter.Name()
}

// All returns every handler in route order.
func (h *Handlers) All() []pipeline.Runner {
	return []pipeline.Runner{h.Create, h.List, h.Get, h.Update, h.Delete}
}

func createNote(a validation.Adapter, store storage.NoteStore) stage[createBody] {
	return pipeline.MustCompose(
		extractUserID[createBody](),
		sanitizeBody[createBody](a, CreateNoteSchema),
		requireAuthenticated[createBody](),
		allowAuthenticated[createBody](),
		pipeline.Execute[input[createBody], data, work](
			func(ctx context.Context, v pipeline.Loaded[input[createBody], data], w *work) error {
				note := &domain.Note{
					Title:   v.In.Body.Title,
					Content: v.In.Body.Content,
					Secret:  v.In.Body.Secret,
					OwnerID: v.Pre.UserID,
				}
				if err := store.Create(ctx, note); err != nil {
					return persistenceError("create", err)
				}
				w.Note = note
				return nil
			}),
		respondNote[createBody](http.StatusCreated),
		sanitizeResponse[createBody](a, NoteResponseSchema),
	)
}

// getNote is assembled from three sub-pipes: identity, loading and
// presentation.
func getNote(a validation.Adapter, store storage.NoteStore) stage[noBody] {
	authenticated := pipeline.Named("authenticated", pipeline.MustCompose(
		extractUserID[noBody](),
		requireAuthenticated[noBody](),
	))
	load := paramIDToNote[noBody](a, store)
	present := pipeline.Named("ownerView", pipeline.MustCompose(
		requireOwnership[noBody](),
		pipeline.Respond[input[noBody], data, work](
			func(ctx context.Context, v pipeline.Result[input[noBody], data, work]) (pipeline.Response, error) {
				return pipeline.Response{
					StatusCode: http.StatusOK,
					Body:       noteDocument(v.Data.Note, v.Pre.UserID),
				}, nil
			}),
		sanitizeResponse[noBody](a, NoteResponseSchema),
	))
	return pipeline.MustCompose(authenticated, load, present)
}

func listNotes(a validation.Adapter, store storage.NoteStore) stage[noBody] {
	return pipeline.MustCompose(
		extractUserID[noBody](),
		sanitizeQuery[noBody](a),
		requireAuthenticated[noBody](),
		allowAuthenticated[noBody](),
		pipeline.Execute[input[noBody], data, work](
			func(ctx context.Context, v pipeline.Loaded[input[noBody], data], w *work) error {
				q := v.In.Query
				filter := storage.Filter{OwnerID: v.Pre.UserID, Search: q.Search}
				notes, err := store.Find(ctx, filter, storage.ParseSort(q.Sort), (q.Page-1)*q.Limit, q.Limit)
				if err != nil {
					return persistenceError("list", err)
				}
				total, err := store.Count(ctx, filter)
				if err != nil {
					return persistenceError("count", err)
				}
				w.Notes, w.Total = notes, total
				return nil
			}),
		pipeline.Respond[input[noBody], data, work](
			func(ctx context.Context, v pipeline.Result[input[noBody], data, work]) (pipeline.Response, error) {
				q := v.In.Query
				return pipeline.Response{
					StatusCode: http.StatusOK,
					Body: map[string]any{
						"data": listDocuments(v.Work.Notes),
						"pagination": map[string]any{
							"page":       q.Page,
							"limit":      q.Limit,
							"total":      v.Work.Total,
							"totalPages": totalPages(v.Work.Total, q.Limit),
						},
					},
				}, nil
			}),
		sanitizeResponse[noBody](a, ListResponseSchema),
	)
}

func updateNote(a validation.Adapter, store storage.NoteStore) stage[updateBody] {
	return pipeline.MustCompose(
		extractUserID[updateBody](),
		paramIDToNote[updateBody](a, store),
		sanitizeBody[updateBody](a, UpdateNoteSchema),
		requireAuthenticated[updateBody](),
		requireOwnership[updateBody](),
		pipeline.Execute[input[updateBody], data, work](
			func(ctx context.Context, v pipeline.Loaded[input[updateBody], data], w *work) error {
				note := v.Data.Note.Clone()
				body := v.In.Body
				if body.Title != nil {
					note.Title = *body.Title
				}
				if body.Content != nil {
					note.Content = *body.Content
				}
				if body.Secret != nil {
					secret := *body.Secret
					note.Secret = &secret
				}
				if err := store.Save(ctx, note); err != nil {
					return persistenceError("save", err)
				}
				w.Note = note
				return nil
			}),
		respondNote[updateBody](http.StatusOK),
		sanitizeResponse[updateBody](a, NoteResponseSchema),
	)
}

func deleteNote(a validation.Adapter, store storage.NoteStore) stage[noBody] {
	return pipeline.MustCompose(
		extractUserID[noBody](),
		paramIDToNote[noBody](a, store),
		requireAuthenticated[noBody](),
		requireOwnership[noBody](),
		pipeline.Execute[input[noBody], data, work](
			func(ctx context.Context, v pipeline.Loaded[input[noBody], data], w *work) error {
				if err := store.Delete(ctx, v.Data.Note); err != nil {
					return persistenceError("delete", err)
				}
				return nil
			}),
		pipeline.Respond[input[noBody], data, work](
			func(ctx context.Context, v pipeline.Result[input[noBody], data, work]) (pipeline.Response, error) {
				return pipeline.Response{StatusCode: http.StatusNoContent, Body: map[string]any{}}, nil
			}),
		sanitizeResponse[noBody](a, EmptyResponseSchema),
	)
}

// respondNote renders the note produced by execute for the caller.
func respondNote[B any](status int) stage[B] {
	return pipeline.Named("respondNote", pipeline.Respond[input[B], data, work](
		func(ctx context.Context, v pipeline.Result[input[B], data, work]) (pipeline.Response, error) {
			return pipeline.Response{StatusCode: status, Body: noteDocument(v.Work.Note, v.Pre.UserID)}, nil
		}))
}
