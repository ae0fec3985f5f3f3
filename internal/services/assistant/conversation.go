package assistant

import "sync"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of an assistant conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// PublicIdentity keys the room-wide shared conversation. Private
// conversations are keyed by the user's connection id instead.
const PublicIdentity = "public"

// conversationStore keeps per-hostname, per-identity ordered histories.
// The first entry of every history is the system prompt; trimming, undo and
// forget never remove it. Histories live for the process lifetime.
type conversationStore struct {
	mu      sync.Mutex
	entries map[string]map[string][]Message
}

func newConversationStore() *conversationStore {
	return &conversationStore{entries: make(map[string]map[string][]Message)}
}

// history returns a copy of the stored conversation, or nil if the identity
// has not spoken yet.
func (s *conversationStore) history(hostname, identity string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.entries[hostname][identity]
	if stored == nil {
		return nil
	}
	history := make([]Message, len(stored))
	copy(history, stored)
	return history
}

// set replaces the stored conversation for an identity.
func (s *conversationStore) set(hostname, identity string, messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[hostname] == nil {
		s.entries[hostname] = make(map[string][]Message)
	}
	stored := make([]Message, len(messages))
	copy(stored, messages)
	s.entries[hostname][identity] = stored
}

// undo removes the most recent (user, assistant) pair. It reports false when
// the conversation holds nothing beyond the system prompt.
func (s *conversationStore) undo(hostname, identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.entries[hostname][identity]
	if len(stored) < 3 {
		return false
	}
	s.entries[hostname][identity] = stored[:len(stored)-2]
	return true
}

// forget truncates the conversation to just the system prompt. It reports
// false when there was nothing to forget.
func (s *conversationStore) forget(hostname, identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.entries[hostname][identity]
	if len(stored) < 2 {
		return false
	}
	s.entries[hostname][identity] = stored[:1]
	return true
}
