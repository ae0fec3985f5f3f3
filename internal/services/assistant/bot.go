package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	relayerrors "github.com/perriault/chatrelay/internal/platform/errors"
	"github.com/perriault/chatrelay/internal/platform/timeouts"
)

var tracer = otel.Tracer("github.com/perriault/chatrelay/internal/services/assistant")

// ErrServiceUnavailable classifies a transient server-side completion
// failure. The bot answers with a canned apology instead of surfacing it.
var ErrServiceUnavailable = errors.New("completion service unavailable")

// defaultTokenLimit is three quarters of the 4097-token context window,
// rounded, leaving headroom for the response.
const defaultTokenLimit = 3073

const (
	defaultModel       = "gpt-3.5-turbo-0301"
	defaultTemperature = 0.95
)

// defaultPolicedCategories are the moderation categories that block a turn.
var defaultPolicedCategories = []string{
	"hate",
	"hate/threatening",
	"sexual/minors",
}

const (
	waitingMessage     = "Please wait while I finish responding to your previous message."
	unavailableMessage = "My apologies, but I can't talk right now. Please come back later."
	fallbackMessage    = "Sorry, I'm having trouble understanding you. Please try again."
)

// CompletionClient calls the external completion service.
type CompletionClient interface {
	ChatCompletion(ctx context.Context, model string, messages []Message, maxTokens int, temperature float64) (string, error)
}

// ModerationClient classifies text into content-safety category flags.
type ModerationClient interface {
	Moderation(ctx context.Context, input string) (map[string]bool, error)
}

// Config carries bot identity, call parameters, and service clients.
type Config struct {
	Name              string
	Wakeword          string
	Model             string
	TokenLimit        int
	Temperature       float64
	PublicWakeEnabled bool
	PolicedCategories []string
	Completions       CompletionClient
	Moderations       ModerationClient
}

// Turn is one conversational exchange request from a connected user.
type Turn struct {
	Text     string
	Hostname string
	UserID   string
	Handle   string
	Public   bool
}

type lastInteraction struct {
	public bool
	userID string
}

// Bot is the per-process assistant shared by every room. Conversations and
// pending requests are keyed by hostname so rooms never observe each other.
type Bot struct {
	name              string
	wakeword          string
	model             string
	tokenLimit        int
	temperature       float64
	publicWakeEnabled bool
	policed           []string
	completions       CompletionClient
	moderations       ModerationClient
	conversations     *conversationStore
	pending           *pendingTracker

	mu   sync.Mutex
	last map[string]lastInteraction
}

// New builds a Bot, applying the stock parameters for any zero-valued
// call configuration.
func New(cfg Config) (*Bot, error) {
	if cfg.Completions == nil {
		return nil, errors.New("completion client is required")
	}
	if cfg.Moderations == nil {
		return nil, errors.New("moderation client is required")
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "ChatBot"
	}
	wakeword := strings.TrimSpace(cfg.Wakeword)
	if wakeword == "" {
		wakeword = name
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	tokenLimit := cfg.TokenLimit
	if tokenLimit <= 0 {
		tokenLimit = defaultTokenLimit
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	policed := cfg.PolicedCategories
	if policed == nil {
		policed = defaultPolicedCategories
	}

	return &Bot{
		name:              name,
		wakeword:          wakeword,
		model:             model,
		tokenLimit:        tokenLimit,
		temperature:       temperature,
		publicWakeEnabled: cfg.PublicWakeEnabled,
		policed:           policed,
		completions:       cfg.Completions,
		moderations:       cfg.Moderations,
		conversations:     newConversationStore(),
		pending:           newPendingTracker(),
		last:              make(map[string]lastInteraction),
	}, nil
}

// Name returns the bot's display name.
func (b *Bot) Name() string {
	return b.name
}

// Wakeword returns the public addressing wake word.
func (b *Bot) Wakeword() string {
	return b.wakeword
}

// Greeting is the private welcome sent to every user that joins a room with
// an active bot.
func (b *Bot) Greeting() string {
	return fmt.Sprintf("Hello, my name is %s and I am a chatbot. \n"+
		"To speak to me, type a message that contains my wake-word, %q. I will respond to you as soon as I can. "+
		"To continue our conversation, each message you send must contain the wake-word. \n"+
		"Our conversation is private; messages containing the wake-word will not be broadcast to other users, nor will my responses to you. \n"+
		"(WARNING: All messages that do NOT contain the wake-word WILL be broadcast to all other users. I will NOT respond to messages that do not contain the wake-word.)",
		b.name, b.wakeword)
}

// IsAlias reports whether handle addresses the bot, case-insensitively.
func (b *Bot) IsAlias(handle string) bool {
	handle = strings.ToLower(strings.TrimSpace(handle))
	return handle == "bot" || handle == strings.ToLower(b.name) || handle == strings.ToLower(b.wakeword)
}

// ReservedHandles lists names no user may register.
func (b *Bot) ReservedHandles() []string {
	return []string{"server", "bot", b.name, b.wakeword}
}

// ShouldWake reports whether a broadcast-bound message also addresses the
// bot publicly: public waking must be enabled and the message must contain
// the wake word, case-insensitively.
func (b *Bot) ShouldWake(message string) bool {
	if !b.publicWakeEnabled {
		return false
	}
	return strings.Contains(strings.ToLower(message), strings.ToLower(b.wakeword))
}

// Converse runs one conversational turn. The returned reply is meant for the
// requester (or the room, for public turns); respond is false when the turn
// was cancelled and nothing should be sent at all.
//
// The pending gate and the enqueue happen in one critical section before the
// first blocking call, so a user's second turn is rejected with the waiting
// message rather than racing the first.
func (b *Bot) Converse(ctx context.Context, turn Turn) (reply string, respond bool) {
	request := newRequest(b.model, b.tokenLimit, b.temperature)
	if !b.pending.begin(turn.Hostname, turn.UserID, request) {
		return waitingMessage, true
	}
	defer b.pending.done(turn.Hostname, turn.UserID, request)

	reply, cancelled, err := b.converse(ctx, turn, request)
	if cancelled {
		return "", false
	}
	if err != nil {
		if errors.Is(err, ErrServiceUnavailable) {
			return unavailableMessage, true
		}
		log.Printf("assistant: converse failed for %s/%s: %v", turn.Hostname, turn.UserID, err)
		return relayerrors.UserText(err, fallbackMessage), true
	}
	return reply, true
}

func (b *Bot) converse(ctx context.Context, turn Turn, request *Request) (reply string, cancelled bool, err error) {
	category, err := b.failsModeration(ctx, turn.Text)
	if err != nil {
		return "", false, fmt.Errorf("moderate message: %w", err)
	}
	if category != "" {
		return fmt.Sprintf("Sorry, your message was flagged as %s. Please reformulate and try again.", category), false, nil
	}

	identity := turn.UserID
	if turn.Public {
		identity = PublicIdentity
	}
	history := b.conversations.history(turn.Hostname, identity)
	if history == nil {
		history = []Message{b.systemPrompt(turn.Hostname, turn.Public)}
	}

	content := turn.Text
	if turn.Public {
		content = fmt.Sprintf("(%s) %s", turn.Handle, turn.Text)
	}
	if err := request.setMessages(append(history, Message{Role: RoleUser, Content: content})); err != nil {
		return "", false, err
	}

	reply, err = b.complete(ctx, request)
	if request.Cancelled() {
		// The result arrived after a cancel; discard it without touching
		// the stored conversation.
		return "", true, nil
	}
	if err != nil {
		return "", false, err
	}

	b.conversations.set(turn.Hostname, identity, append(request.Messages(), Message{Role: RoleAssistant, Content: reply}))
	b.recordLastInteraction(turn.Hostname, turn.UserID, turn.Public)
	return reply, false, nil
}

func (b *Bot) complete(ctx context.Context, request *Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Completion)
	defer cancel()

	ctx, span := tracer.Start(ctx, "assistant.completion", trace.WithAttributes(
		attribute.String("completion.model", request.model),
		attribute.Int("completion.max_tokens", request.maxTokens()),
	))
	defer span.End()

	reply, err := b.completions.ChatCompletion(ctx, request.model, request.Messages(), request.maxTokens(), request.temperature)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return reply, nil
}

// failsModeration returns the first policed category the input violates, or
// the empty string when the input passes.
func (b *Bot) failsModeration(ctx context.Context, input string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Moderation)
	defer cancel()

	categories, err := b.moderations.Moderation(ctx, input)
	if err != nil {
		return "", err
	}
	for _, category := range b.policed {
		if categories[category] {
			return category, nil
		}
	}
	return "", nil
}

func (b *Bot) recordLastInteraction(hostname, userID string, public bool) {
	b.mu.Lock()
	b.last[hostname] = lastInteraction{public: public, userID: userID}
	b.mu.Unlock()
}

// Undo removes the newest (user, assistant) pair from the relevant
// conversation: the public one when the last bot interaction in the room was
// public and came from this user, otherwise the user's private one. The
// returned reply describes what happened.
func (b *Bot) Undo(hostname, userID string) string {
	b.mu.Lock()
	last := b.last[hostname]
	b.mu.Unlock()

	if last.public {
		if last.userID != userID {
			return fmt.Sprintf("You can't undo the last public message to %s because it did not come from you.", b.name)
		}
		if b.conversations.undo(hostname, PublicIdentity) {
			return fmt.Sprintf("Somehow, you manage to unsay the last thing you said to %s in public.", b.name)
		}
		return fmt.Sprintf("You haven't said anything to %s yet.", b.name)
	}
	if b.conversations.undo(hostname, userID) {
		return fmt.Sprintf("Somehow, you manage to unsay the last thing you said to %s in private.", b.name)
	}
	return fmt.Sprintf("You haven't said anything privately to %s yet.", b.name)
}

// CancelPending cancels the user's oldest outstanding request. The reply
// tells the user whether anything was pending.
func (b *Bot) CancelPending(hostname, userID string) string {
	if b.pending.cancelOldest(hostname, userID) {
		return fmt.Sprintf("Your pending request to %s has been cancelled.", b.name)
	}
	return fmt.Sprintf("You don't have any pending requests to %s.", b.name)
}

// Forget truncates the user's private conversation to the system prompt.
func (b *Bot) Forget(hostname, userID string) string {
	if b.conversations.forget(hostname, userID) {
		return fmt.Sprintf("%s forgets your private conversation.", b.name)
	}
	return fmt.Sprintf("You haven't said anything privately to %s yet.", b.name)
}

// systemPrompt is fixed at a conversation's first use and never regenerated,
// so later configuration changes do not rewrite history.
func (b *Bot) systemPrompt(hostname string, public bool) Message {
	audience := "It can speak privately with each chatroom participant, but cannot speak to the chatroom as a whole."
	if public {
		audience = "It speaks with the chatroom as a whole, and every participant can read its replies."
	}
	return Message{
		Role: RoleSystem,
		Content: fmt.Sprintf("The following is a conversation with an AI assistant named %s. "+
			"The assistant is helpful, but somewhat depressed. The assistant is depressed because no one is smart enough to understand it. "+
			"The assistant is also a bit sarcastic. The assistant lives in a chatroom on the website %s. %s It periodically sighs.",
			b.name, hostname, audience),
	}
}
