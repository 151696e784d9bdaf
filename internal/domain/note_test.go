package domain

import (
	"encoding/hex"
	"regexp"
	"testing"
	"time"
)

var idPattern = regexp.MustCompile(`^[0-9a-f]{24}$`)

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if !idPattern.MatchString(id) {
			t.Fatalf("id %q does not match %s", id, idPattern)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewID_TimestampPrefix(t *testing.T) {
	ts := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)
	id := newIDAt(ts)

	raw, err := hex.DecodeString(id[:8])
	if err != nil {
		t.Fatalf("decode prefix: %v", err)
	}
	got := int64(raw[0])<<24 | int64(raw[1])<<16 | int64(raw[2])<<8 | int64(raw[3])
	if got != ts.Unix() {
		t.Errorf("prefix = %d, want %d", got, ts.Unix())
	}
}

func TestNote_Clone(t *testing.T) {
	secret := "s3cret"
	n := &Note{ID: "a", Title: "t", Secret: &secret}

	c := n.Clone()
	*c.Secret = "changed"
	c.Title = "other"

	if *n.Secret != "s3cret" || n.Title != "t" {
		t.Errorf("clone shares state with original: %+v", n)
	}
	if (*Note)(nil).Clone() != nil {
		t.Error("expected nil clone of nil note")
	}
}
