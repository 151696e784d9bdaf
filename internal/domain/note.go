package domain

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Note is a persisted note.
type Note struct {
	ID      string `json:"id" db:"id"`
	Title   string `json:"title" db:"title"`
	Content string `json:"content" db:"content"`
	OwnerID string `json:"ownerId" db:"owner_id"`
	// Secret is visible only to the owner. Nil means the note has none.
	Secret    *string   `json:"secret,omitempty" db:"secret"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Clone returns a deep copy of n.
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := *n
	if n.Secret != nil {
		s := *n.Secret
		c.Secret = &s
	}
	return &c
}

// IDLength is the length of a note identifier in hex characters.
const IDLength = 24

// NewID returns a 24 character lowercase hex identifier: four bytes of
// big-endian unix seconds followed by eight random bytes.
func NewID() string {
	return newIDAt(time.Now())
}

func newIDAt(t time.Time) string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[:4], uint32(t.Unix()))
	u := uuid.New()
	copy(b[4:], u[8:])
	return hex.EncodeToString(b[:])
}
