package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := New(CodeInvalidHandle, "handle taken")
	target := New(CodeInvalidHandle, "different text")

	if !stderrors.Is(err, target) {
		t.Fatal("expected errors with the same code to match")
	}
	if stderrors.Is(err, New(CodeInvalidRecipient, "handle taken")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(CodeUnknown, "wrapped", cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable")
	}
}

func TestUserTextEnumerated(t *testing.T) {
	err := New(CodeMessageTooLarge, "message too large to trim")
	if got := UserText(err, "An error occurred"); got != "message too large to trim" {
		t.Fatalf("user text = %q, want literal message", got)
	}
}

func TestUserTextWrappedEnumerated(t *testing.T) {
	err := fmt.Errorf("dispatch frame: %w", New(CodeInvalidCommand, "Chatbot is not active"))
	if got := UserText(err, "An error occurred"); got != "Chatbot is not active" {
		t.Fatalf("user text = %q, want enumerated message through wrap", got)
	}
}

func TestUserTextFallsBackForUnknown(t *testing.T) {
	if got := UserText(New(CodeUnknown, "internal detail"), "An error occurred"); got != "An error occurred" {
		t.Fatalf("user text = %q, want fallback", got)
	}
	if got := UserText(stderrors.New("plain"), "An error occurred"); got != "An error occurred" {
		t.Fatalf("user text = %q, want fallback for plain error", got)
	}
}
