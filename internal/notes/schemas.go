package notes

import (
	"github.com/tjfontaine/hipnotes/internal/validation"
)

// Sort keys accepted by the list endpoint.
var sortKeys = []string{"createdAt", "-createdAt", "title", "-title", "updatedAt", "-updatedAt"}

var (
	ParamsSchema = validation.Object("Params",
		validation.String("id",
			validation.Required(),
			validation.Pattern(validation.ObjectIDPattern),
			validation.Message(validation.RulePattern, "Invalid ObjectId format")),
	)

	CreateNoteSchema = validation.Object("CreateNote",
		validation.String("title", validation.Required(), validation.Min(1),
			validation.Message(validation.RuleMin, "Title is required")),
		validation.String("content", validation.Required(), validation.Min(1),
			validation.Message(validation.RuleMin, "Content is required")),
		validation.String("secret"),
	)

	UpdateNoteSchema = validation.Object("UpdateNote",
		validation.String("title", validation.Min(1),
			validation.Message(validation.RuleMin, "Title cannot be empty")),
		validation.String("content", validation.Min(1),
			validation.Message(validation.RuleMin, "Content cannot be empty")),
		validation.String("secret"),
	).AtLeastOne("At least one field must be provided for update")

	ListQuerySchema = validation.Object("ListQuery",
		validation.Int("page", validation.Min(1), validation.Default(1)),
		validation.Int("limit", validation.Min(1), validation.Max(100), validation.Default(10)),
		validation.String("search"),
		validation.String("sort", validation.OneOf(sortKeys...), validation.Default("-createdAt")),
	)

	NoteResponseSchema = validation.Object("NoteResponse",
		validation.String("id", validation.Required(), validation.Pattern(validation.ObjectIDPattern)),
		validation.String("title", validation.Required()),
		validation.String("content", validation.Required()),
		validation.String("ownerId", validation.Required()),
		validation.String("secret"),
		validation.Time("createdAt"),
		validation.Time("updatedAt"),
	)

	ListResponseSchema = validation.Object("ListResponse",
		validation.Array("data", NoteResponseSchema, validation.Required()),
		validation.Nested("pagination", validation.Object("Pagination",
			validation.Int("page", validation.Required()),
			validation.Int("limit", validation.Required()),
			validation.Int("total", validation.Required()),
			validation.Int("totalPages", validation.Required()),
		), validation.Required()),
	)

	EmptyResponseSchema = validation.Object("EmptyResponse")
)
