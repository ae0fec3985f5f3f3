package server

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	relayerrors "github.com/perriault/chatrelay/internal/platform/errors"
	"github.com/perriault/chatrelay/internal/platform/uid"
)

// serverUser labels frames originating from the relay itself.
const serverUser = "server"

// wireMessage is the single outbound frame shape. Error replies use it too,
// attributed to "server", so clients never need to special-case failures
// structurally.
type wireMessage struct {
	User      string `json:"user"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

func newWireMessage(user, message string) wireMessage {
	return wireMessage{
		User:      user,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeMessage(msg wireMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(msg)
}

// connectedUser binds a websocket peer to a room-scoped identity. The peer
// is owned exclusively by this user for its lifetime.
type connectedUser struct {
	id       string
	hostname string
	handle   string
	peer     *wsPeer
}

// roomRegistry tracks connected users per hostname in join order. One mutex
// covers every mutating operation so membership checks and insertions are
// never decomposed into separately locked steps.
type roomRegistry struct {
	mu       sync.Mutex
	rooms    map[string][]*connectedUser
	reserved []string
}

// newRoomRegistry builds a registry. The reserved names (matched
// case-insensitively) can never be registered as handles.
func newRoomRegistry(reserved []string) *roomRegistry {
	lowered := make([]string, 0, len(reserved))
	for _, name := range reserved {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(name)))
	}
	return &roomRegistry{
		rooms:    make(map[string][]*connectedUser),
		reserved: lowered,
	}
}

// register adds a user to the hostname's room. An empty handle defaults to
// the allocated id. Handles colliding case-insensitively with a member or a
// reserved name fail with an invalid-handle error and leave the room
// untouched.
func (r *roomRegistry) register(hostname string, peer *wsPeer, handle string) (*connectedUser, error) {
	handle = strings.TrimSpace(handle)

	r.mu.Lock()
	defer r.mu.Unlock()

	if handle != "" {
		folded := strings.ToLower(handle)
		for _, member := range r.rooms[hostname] {
			if strings.ToLower(member.handle) == folded {
				return nil, relayerrors.New(relayerrors.CodeInvalidHandle,
					fmt.Sprintf("handle %s already used", handle))
			}
		}
		for _, name := range r.reserved {
			if folded == name {
				return nil, relayerrors.New(relayerrors.CodeInvalidHandle,
					fmt.Sprintf("%s is a reserved name", handle))
			}
		}
	}

	id, err := r.allocateID(hostname)
	if err != nil {
		return nil, fmt.Errorf("allocate user id: %w", err)
	}
	if handle == "" {
		handle = id
	}

	user := &connectedUser{
		id:       id,
		hostname: hostname,
		handle:   handle,
		peer:     peer,
	}
	r.rooms[hostname] = append(r.rooms[hostname], user)
	return user, nil
}

// allocateID must run with the registry lock held.
func (r *roomRegistry) allocateID(hostname string) (string, error) {
	for {
		id, err := uid.New()
		if err != nil {
			return "", err
		}
		taken := false
		for _, member := range r.rooms[hostname] {
			if member.id == id {
				taken = true
				break
			}
		}
		if !taken {
			return id, nil
		}
	}
}

// remove deletes a user from the room. It is idempotent.
func (r *roomRegistry) remove(hostname, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[hostname]
	for i, member := range members {
		if member.id == id {
			r.rooms[hostname] = append(members[:i], members[i+1:]...)
			return
		}
	}
}

// unicast delivers one frame to the member with the given id.
func (r *roomRegistry) unicast(hostname, id string, msg wireMessage) error {
	r.mu.Lock()
	var target *wsPeer
	for _, member := range r.rooms[hostname] {
		if member.id == id {
			target = member.peer
			break
		}
	}
	r.mu.Unlock()

	if target == nil {
		return relayerrors.New(relayerrors.CodeConnectionNotFound,
			fmt.Sprintf("connection %s not found", id))
	}
	return target.writeMessage(msg)
}

// sendToHandle delivers one frame to the member with the given handle. The
// match is case-sensitive.
func (r *roomRegistry) sendToHandle(hostname, handle string, msg wireMessage) error {
	r.mu.Lock()
	var target *wsPeer
	for _, member := range r.rooms[hostname] {
		if member.handle == handle {
			target = member.peer
			break
		}
	}
	r.mu.Unlock()

	if target == nil {
		return relayerrors.New(relayerrors.CodeInvalidRecipient,
			fmt.Sprintf("recipient %s not found", handle))
	}
	return target.writeMessage(msg)
}

// broadcast delivers the same frame to every current room member. Delivery
// is best-effort: a failed send is logged and the remaining members still
// receive the frame.
func (r *roomRegistry) broadcast(hostname string, msg wireMessage) {
	r.mu.Lock()
	members := make([]*connectedUser, len(r.rooms[hostname]))
	copy(members, r.rooms[hostname])
	r.mu.Unlock()

	for _, member := range members {
		if err := member.peer.writeMessage(msg); err != nil {
			log.Printf("relay: broadcast to %s in %s failed: %v", member.id, hostname, err)
		}
	}
}

// listHandles returns the room's handles in join order.
func (r *roomRegistry) listHandles(hostname string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := make([]string, 0, len(r.rooms[hostname]))
	for _, member := range r.rooms[hostname] {
		handles = append(handles, member.handle)
	}
	return handles
}
