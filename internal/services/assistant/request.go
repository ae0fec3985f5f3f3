package assistant

import (
	"math"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/google/uuid"

	relayerrors "github.com/perriault/chatrelay/internal/platform/errors"
)

// tokenMultiplier scales the whitespace word count into a token estimate.
// The estimate is a heuristic upper bound, not an exact tokenizer count; the
// only property relied on is that it over-estimates rather than under.
const tokenMultiplier = 1.5

// minCompletionTokens floors the max_tokens value handed to the completion
// service so a near-full prompt never requests a zero or negative budget.
const minCompletionTokens = 16

// Request is a single in-flight call to the completion service. It owns a
// trimmed snapshot of the conversation, the immutable call parameters, and a
// monotonic cancellation flag.
//
// A Request is enqueued in the pending tracker before its messages are set,
// so the pending gate and the enqueue share one critical section ahead of the
// first blocking call.
type Request struct {
	id          string
	messages    []Message
	model       string
	tokenLimit  int
	temperature float64
	cancelled   atomic.Bool
}

func newRequest(model string, tokenLimit int, temperature float64) *Request {
	return &Request{
		id:          uuid.NewString(),
		model:       model,
		tokenLimit:  tokenLimit,
		temperature: temperature,
	}
}

// setMessages trims the conversation snapshot to the token budget and stores
// it. Trimming drops the oldest surviving (user, assistant) pair, indexes 1
// and 2, until the estimate fits or fewer than three messages remain. The
// system prompt and the new user turn are never sacrificed: when the budget
// still cannot be met the request fails instead.
func (r *Request) setMessages(messages []Message) error {
	trimmed := make([]Message, len(messages))
	copy(trimmed, messages)

	for estimateTokens(trimmed) > r.tokenLimit && len(trimmed) >= 3 {
		trimmed = append(trimmed[:1], trimmed[3:]...)
	}
	if estimateTokens(trimmed) > r.tokenLimit {
		return relayerrors.New(relayerrors.CodeMessageTooLarge,
			"Your message is too long for me to read. Please shorten it and try again.")
	}
	r.messages = trimmed
	return nil
}

// Messages returns the trimmed conversation snapshot.
func (r *Request) Messages() []Message {
	return r.messages
}

// Cancel marks the request cancelled. The flag is monotonic and advisory: it
// does not abort a network call already in flight, it only suppresses the
// eventual result.
func (r *Request) Cancel() {
	r.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (r *Request) Cancelled() bool {
	return r.cancelled.Load()
}

// maxTokens computes the output budget for the completion call. When the
// prompt estimate exceeds the limit the difference wraps back around the full
// limit rather than going to zero or negative.
func (r *Request) maxTokens() int {
	difference := r.tokenLimit - estimateTokens(r.messages)
	if difference <= 0 {
		difference = r.tokenLimit + difference
	}
	if difference < minCompletionTokens {
		difference = minCompletionTokens
	}
	return difference
}

// estimateTokens approximates the token cost of a message list by counting
// words across "role: content" renderings and scaling by tokenMultiplier,
// rounded up.
func estimateTokens(messages []Message) int {
	var text strings.Builder
	for i, message := range messages {
		if i > 0 {
			text.WriteByte(' ')
		}
		text.WriteString(string(message.Role))
		text.WriteString(": ")
		text.WriteString(message.Content)
	}
	words := strings.FieldsFunc(text.String(), func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '.' || r == '-'
	})
	return int(math.Ceil(float64(len(words)) * tokenMultiplier))
}
