package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"

	relayerrors "github.com/perriault/chatrelay/internal/platform/errors"
	"github.com/perriault/chatrelay/internal/services/assistant"
)

const (
	maxFramePayloadBytes = 16 * 1024
	maxFramesPerSecond   = 40
	maxMessageRunes      = 2000
)

// relayHandler owns the injectable shared state for one relay process: the
// room registry and the (possibly inactive) assistant. Bot aliases stay
// reserved even while the assistant is inactive so handles never shadow it.
type relayHandler struct {
	registry    *roomRegistry
	bot         *assistant.Bot
	botName     string
	botWakeword string
}

// NewHandler creates relay routes without an assistant, for tests and
// offline paths.
func NewHandler() http.Handler {
	return newHandler(nil, "", "")
}

// NewHandlerWithBot creates relay routes with an active assistant.
func NewHandlerWithBot(bot *assistant.Bot) http.Handler {
	return newHandler(bot, bot.Name(), bot.Wakeword())
}

func newHandler(bot *assistant.Bot, botName, botWakeword string) http.Handler {
	if strings.TrimSpace(botName) == "" {
		botName = "ChatBot"
	}
	if strings.TrimSpace(botWakeword) == "" {
		botWakeword = botName
	}
	h := &relayHandler{
		registry:    newRoomRegistry([]string{"server", "bot", botName, botWakeword}),
		bot:         bot,
		botName:     botName,
		botWakeword: botWakeword,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(h.handleConn)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	return mux
}

// handleConn drives one connection through Joining -> Active -> Closed.
func (h *relayHandler) handleConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	request := conn.Request()
	hostname := normalizeHostname(request.Header.Get("Origin"))
	if hostname == "" {
		hostname = normalizeHostname(request.Host)
	}
	handle := strings.TrimSpace(request.URL.Query().Get("handle"))
	peer := newWSPeer(json.NewEncoder(conn))

	user, err := h.registry.register(hostname, peer, handle)
	if err != nil {
		// Registration failures abort the connection: one server-origin
		// error frame, then close.
		log.Printf("relay: registration failed for %s: %v", hostname, err)
		_ = peer.writeMessage(newWireMessage(serverUser, relayerrors.UserText(err, "A server error occurred")))
		return
	}
	log.Printf("relay: new connection from %s assigned id %s", hostname, user.id)

	defer func() {
		log.Printf("relay: connection to %s (%s) closed, removing from room", user.handle, user.id)
		h.registry.remove(hostname, user.id)
		h.registry.broadcast(hostname, newWireMessage(serverUser, fmt.Sprintf("%s left", user.handle)))
	}()

	h.registry.broadcast(hostname, newWireMessage(serverUser, fmt.Sprintf("%s has joined the room.", user.handle)))
	h.sendServer(user, h.userListMessage(hostname))
	if h.bot != nil {
		_ = user.peer.writeMessage(newWireMessage(h.botName+" (bot)", h.bot.Greeting()))
	}

	limiter := rate.NewLimiter(maxFramesPerSecond, maxFramesPerSecond)
	for {
		var raw string
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			return
		}
		if !limiter.Allow() {
			h.sendServer(user, "rate limit exceeded")
			return
		}
		if len(raw) > maxFramePayloadBytes {
			h.sendServer(user, "message too large")
			continue
		}

		text := decodeFrameText(raw)
		if utf8.RuneCountInString(text) > maxMessageRunes {
			h.sendServer(user, fmt.Sprintf("message must be at most %d characters", maxMessageRunes))
			continue
		}

		if err := h.dispatch(user, text); err != nil {
			log.Printf("relay: dispatch from %s (%s) failed: %v", user.handle, user.id, err)
			h.sendServer(user, relayerrors.UserText(err, "An error occurred"))
		}
	}
}

// dispatch classifies one inbound frame in order: addressed message,
// command, public assistant wake, plain broadcast.
func (h *relayHandler) dispatch(user *connectedUser, text string) error {
	if strings.HasPrefix(text, "/") {
		if recipient, remainder, ok := splitAddressed(text); ok {
			return h.dispatchAddressed(user, recipient, remainder)
		}
		h.executeCommand(user, strings.TrimPrefix(text, "/"))
		return nil
	}

	if h.bot != nil && h.bot.ShouldWake(text) {
		// Public assistant turns are broadcast like any other message
		// before the bot sees them.
		h.registry.broadcast(user.hostname, newWireMessage(user.handle, text))
		h.chatWithBot(user, text, true)
		return nil
	}

	h.registry.broadcast(user.hostname, newWireMessage(user.handle, text))
	return nil
}

func (h *relayHandler) dispatchAddressed(user *connectedUser, recipient, message string) error {
	if h.isBotAlias(recipient) {
		if h.bot == nil {
			return relayerrors.New(relayerrors.CodeInvalidCommand, "Chatbot is not active")
		}
		_ = user.peer.writeMessage(newWireMessage(fmt.Sprintf("%s (to %s)", user.handle, h.botName), message))
		h.chatWithBot(user, message, false)
		return nil
	}

	// Echo the message back to the sender, then deliver it annotated with
	// the sender's handle.
	_ = user.peer.writeMessage(newWireMessage(fmt.Sprintf("%s (to %s)", user.handle, recipient), message))
	return h.registry.sendToHandle(user.hostname, recipient, newWireMessage(fmt.Sprintf("%s (private)", user.handle), message))
}

// chatWithBot runs the conversational turn off the read loop so commands
// (notably cancel) stay responsive while the completion call is in flight.
func (h *relayHandler) chatWithBot(user *connectedUser, message string, public bool) {
	go func() {
		reply, respond := h.bot.Converse(context.Background(), assistant.Turn{
			Text:     message,
			Hostname: user.hostname,
			UserID:   user.id,
			Handle:   user.handle,
			Public:   public,
		})
		if !respond {
			return
		}
		if public {
			h.registry.broadcast(user.hostname, newWireMessage(h.botName+" [bot]", reply))
			return
		}
		if err := h.registry.unicast(user.hostname, user.id, newWireMessage(h.botName+" [bot] (private)", reply)); err != nil {
			// The user left while the call was in flight; the reply is
			// dropped rather than re-targeted.
			log.Printf("relay: dropping bot reply for %s: %v", user.id, err)
		}
	}()
}

func (h *relayHandler) isBotAlias(handle string) bool {
	handle = strings.ToLower(strings.TrimSpace(handle))
	return handle == "bot" || handle == strings.ToLower(h.botName) || handle == strings.ToLower(h.botWakeword)
}

func (h *relayHandler) sendServer(user *connectedUser, text string) {
	if err := user.peer.writeMessage(newWireMessage(serverUser, text)); err != nil {
		log.Printf("relay: send to %s failed: %v", user.id, err)
	}
}

// splitAddressed parses "/{recipient}/remainder" frames. The closing brace
// must sit immediately before the second slash.
func splitAddressed(text string) (recipient, remainder string, ok bool) {
	if !strings.HasPrefix(text, "/{") {
		return "", "", false
	}
	end := strings.Index(text, "}")
	if end < 0 || end+1 >= len(text) || text[end+1] != '/' {
		return "", "", false
	}
	recipient = text[2:end]
	if recipient == "" {
		return "", "", false
	}
	return recipient, text[end+2:], true
}

// decodeFrameText percent-decodes inbound frame text, falling back to the
// raw frame when it is not valid percent-encoding.
func decodeFrameText(raw string) string {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// normalizeHostname reduces an Origin header or host value to a bare
// hostname: scheme, leading www, port, and path are stripped.
func normalizeHostname(origin string) string {
	s := strings.TrimSpace(origin)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "https://"):
		s = s[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		s = s[len("http://"):]
	}
	if strings.HasPrefix(strings.ToLower(s), "www.") {
		s = s[len("www."):]
	}
	if i := strings.IndexAny(s, "/:"); i >= 0 {
		s = s[:i]
	}
	return s
}
