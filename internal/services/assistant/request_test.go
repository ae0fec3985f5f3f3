package assistant

import (
	"errors"
	"strings"
	"testing"

	relayerrors "github.com/perriault/chatrelay/internal/platform/errors"
)

func TestEstimateTokensCountsWordsAcrossMessages(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "one two three"},
	}
	// "system: one two three" is four words, scaled by 1.5.
	if got := estimateTokens(messages); got != 6 {
		t.Fatalf("expected 6 tokens, got %d", got)
	}
}

func TestEstimateTokensSplitsOnPunctuation(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "well-known,words.here"},
	}
	// "user:" plus three words split on the hyphen, comma, and period.
	// "well-known" itself splits in two.
	if got := estimateTokens(messages); got != 8 {
		t.Fatalf("expected 8 tokens, got %d", got)
	}
}

func TestSetMessagesKeepsConversationWithinBudget(t *testing.T) {
	request := newRequest("m", 100, 1)
	messages := []Message{
		{Role: RoleSystem, Content: "prompt"},
		{Role: RoleUser, Content: "hello"},
	}
	if err := request.setMessages(messages); err != nil {
		t.Fatalf("set messages: %v", err)
	}
	if len(request.Messages()) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(request.Messages()))
	}
}

func TestSetMessagesTrimsOldestPairFirst(t *testing.T) {
	// Four single-word messages estimate to 12 tokens; a limit of 11
	// forces one trim pass, which removes indexes 1 and 2.
	request := newRequest("m", 11, 1)
	messages := []Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "b"},
		{Role: RoleAssistant, Content: "c"},
		{Role: RoleUser, Content: "d"},
	}
	if err := request.setMessages(messages); err != nil {
		t.Fatalf("set messages: %v", err)
	}
	trimmed := request.Messages()
	if len(trimmed) != 2 {
		t.Fatalf("expected 2 messages after trim, got %d", len(trimmed))
	}
	if trimmed[0].Content != "a" {
		t.Fatalf("expected system prompt preserved, got %q", trimmed[0].Content)
	}
	if trimmed[1].Content != "d" {
		t.Fatalf("expected newest user turn preserved, got %q", trimmed[1].Content)
	}
}

func TestSetMessagesDoesNotAliasInput(t *testing.T) {
	request := newRequest("m", 100, 1)
	messages := []Message{
		{Role: RoleSystem, Content: "prompt"},
		{Role: RoleUser, Content: "hello"},
	}
	if err := request.setMessages(messages); err != nil {
		t.Fatalf("set messages: %v", err)
	}
	messages[1].Content = "mutated"
	if request.Messages()[1].Content != "hello" {
		t.Fatalf("expected snapshot to be independent of caller slice")
	}
}

func TestSetMessagesRejectsOversizedUserTurn(t *testing.T) {
	request := newRequest("m", 4, 1)
	messages := []Message{
		{Role: RoleSystem, Content: "prompt"},
		{Role: RoleUser, Content: "too many words to ever fit"},
	}
	err := request.setMessages(messages)
	if err == nil {
		t.Fatalf("expected error for oversized message")
	}
	var relayErr *relayerrors.Error
	if !errors.As(err, &relayErr) || relayErr.Code != relayerrors.CodeMessageTooLarge {
		t.Fatalf("expected message-too-large error, got %v", err)
	}
}

func TestMaxTokensLeavesRemainderOfBudget(t *testing.T) {
	request := newRequest("m", 200, 1)
	request.messages = []Message{
		{Role: RoleUser, Content: strings.Repeat("word ", 100)},
	}
	// "user:" plus 100 words estimates to 152 tokens.
	if got := request.maxTokens(); got != 48 {
		t.Fatalf("expected 48 max tokens, got %d", got)
	}
}

func TestMaxTokensWrapsWhenPromptExceedsLimit(t *testing.T) {
	request := newRequest("m", 150, 1)
	request.messages = []Message{
		{Role: RoleUser, Content: strings.Repeat("word ", 100)},
	}
	// Estimate 152 against a limit of 150 wraps to 150 + (150 - 152).
	if got := request.maxTokens(); got != 148 {
		t.Fatalf("expected 148 max tokens, got %d", got)
	}
}

func TestMaxTokensFloorsAtMinimum(t *testing.T) {
	request := newRequest("m", 10, 1)
	request.messages = []Message{
		{Role: RoleUser, Content: strings.Repeat("word ", 100)},
	}
	if got := request.maxTokens(); got != minCompletionTokens {
		t.Fatalf("expected floor of %d, got %d", minCompletionTokens, got)
	}
}

func TestCancelIsMonotonic(t *testing.T) {
	request := newRequest("m", 100, 1)
	if request.Cancelled() {
		t.Fatalf("new request should not be cancelled")
	}
	request.Cancel()
	request.Cancel()
	if !request.Cancelled() {
		t.Fatalf("expected request to stay cancelled")
	}
}
