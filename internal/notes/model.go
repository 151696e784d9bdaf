package notes

import (
	"github.com/tjfontaine/hipnotes/internal/domain"
	"github.com/tjfontaine/hipnotes/internal/pipeline"
)

type idParams struct {
	ID string `json:"id"`
}

type listQuery struct {
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
	Search string `json:"search"`
	Sort   string `json:"sort"`
}

type createBody struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Secret  *string `json:"secret"`
}

// updateBody fields are nil when the caller left them out.
type updateBody struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Secret  *string `json:"secret"`
}

// input is the sanitized request. B is the handler's body type.
type input[B any] struct {
	Params idParams
	Query  listQuery
	Body   B
}

// data holds what attachData phases load.
type data struct {
	NoteID string
	Note   *domain.Note
}

// work holds what execute produces.
type work struct {
	Note  *domain.Note
	Notes []*domain.Note
	Total int
}

type noBody = struct{}

// stage is a fragment of a notes handler whose body decodes into B.
type stage[B any] = pipeline.Fragment[input[B], data, work]

// noteDocument renders n for viewer. The secret is included only when
// viewer owns the note.
func noteDocument(n *domain.Note, viewer string) map[string]any {
	doc := map[string]any{
		"id":        n.ID,
		"title":     n.Title,
		"content":   n.Content,
		"ownerId":   n.OwnerID,
		"createdAt": n.CreatedAt,
		"updatedAt": n.UpdatedAt,
	}
	if n.Secret != nil && viewer != "" && viewer == n.OwnerID {
		doc["secret"] = *n.Secret
	}
	return doc
}

// listDocuments renders notes for a list view, which never shows secrets.
func listDocuments(notes []*domain.Note) []map[string]any {
	out := make([]map[string]any, len(notes))
	for i, n := range notes {
		out[i] = noteDocument(n, "")
	}
	return out
}

// totalPages is the number of pages of size limit needed for total items.
func totalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
