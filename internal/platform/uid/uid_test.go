package uid

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestNewFormat(t *testing.T) {
	id, err := New()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}

	timestampPart, suffixPart, found := strings.Cut(id, "-")
	if !found {
		t.Fatalf("expected timestamp-suffix id, got %q", id)
	}
	if len(suffixPart) != suffixLength {
		t.Fatalf("expected %d-character suffix, got %d", suffixLength, len(suffixPart))
	}
	for _, r := range id {
		if r == '-' {
			continue
		}
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			t.Fatalf("unexpected character %q in id", r)
		}
	}

	millis, err := strconv.ParseInt(timestampPart, 36, 64)
	if err != nil {
		t.Fatalf("decode timestamp part: %v", err)
	}
	created := time.UnixMilli(millis)
	if age := time.Since(created); age < 0 || age > time.Minute {
		t.Fatalf("timestamp part %v is not near now", created)
	}
}

func TestNewSortsByCreationTime(t *testing.T) {
	first, err := New()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	time.Sleep(3 * time.Millisecond)
	second, err := New()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if first >= second {
		t.Fatalf("expected %q < %q", first, second)
	}
}
