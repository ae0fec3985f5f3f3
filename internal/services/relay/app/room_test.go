package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	relayerrors "github.com/perriault/chatrelay/internal/platform/errors"
)

type peerBuffer struct {
	buf  bytes.Buffer
	peer *wsPeer
}

func newPeerBuffer() *peerBuffer {
	pb := &peerBuffer{}
	pb.peer = newWSPeer(json.NewEncoder(&pb.buf))
	return pb
}

func (pb *peerBuffer) messages(t *testing.T) []wireMessage {
	t.Helper()
	var out []wireMessage
	decoder := json.NewDecoder(&pb.buf)
	for decoder.More() {
		var msg wireMessage
		if err := decoder.Decode(&msg); err != nil {
			t.Fatalf("decode buffered frame: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

func testRegistry() *roomRegistry {
	return newRoomRegistry([]string{"server", "bot"})
}

func TestRegisterDefaultsHandleToID(t *testing.T) {
	registry := testRegistry()
	user, err := registry.register("example.com", newPeerBuffer().peer, "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.handle == "" || user.handle != user.id {
		t.Fatalf("expected handle to default to id, got handle=%q id=%q", user.handle, user.id)
	}
}

func TestRegisterRejectsDuplicateHandleCaseInsensitively(t *testing.T) {
	registry := testRegistry()
	if _, err := registry.register("example.com", newPeerBuffer().peer, "Ana"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := registry.register("example.com", newPeerBuffer().peer, "ANA")
	var relayErr *relayerrors.Error
	if !errors.As(err, &relayErr) || relayErr.Code != relayerrors.CodeInvalidHandle {
		t.Fatalf("expected invalid-handle error, got %v", err)
	}
}

func TestRegisterAllowsSameHandleAcrossRooms(t *testing.T) {
	registry := testRegistry()
	if _, err := registry.register("example.com", newPeerBuffer().peer, "ana"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := registry.register("other.org", newPeerBuffer().peer, "ana"); err != nil {
		t.Fatalf("expected handle to be free in another room, got %v", err)
	}
}

func TestRegisterRejectsReservedNames(t *testing.T) {
	registry := testRegistry()
	for _, handle := range []string{"server", "BOT"} {
		_, err := registry.register("example.com", newPeerBuffer().peer, handle)
		var relayErr *relayerrors.Error
		if !errors.As(err, &relayErr) || relayErr.Code != relayerrors.CodeInvalidHandle {
			t.Fatalf("expected reserved name %q rejected, got %v", handle, err)
		}
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	registry := testRegistry()
	user, err := registry.register("example.com", newPeerBuffer().peer, "ana")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	registry.remove("example.com", user.id)
	registry.remove("example.com", user.id)
	if handles := registry.listHandles("example.com"); len(handles) != 0 {
		t.Fatalf("expected empty room, got %v", handles)
	}
}

func TestUnicastUnknownConnection(t *testing.T) {
	registry := testRegistry()
	err := registry.unicast("example.com", "nope", newWireMessage(serverUser, "hi"))
	var relayErr *relayerrors.Error
	if !errors.As(err, &relayErr) || relayErr.Code != relayerrors.CodeConnectionNotFound {
		t.Fatalf("expected connection-not-found error, got %v", err)
	}
}

func TestSendToHandleIsCaseSensitive(t *testing.T) {
	registry := testRegistry()
	pb := newPeerBuffer()
	if _, err := registry.register("example.com", pb.peer, "Ana"); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := registry.sendToHandle("example.com", "ana", newWireMessage("bo (private)", "psst"))
	var relayErr *relayerrors.Error
	if !errors.As(err, &relayErr) || relayErr.Code != relayerrors.CodeInvalidRecipient {
		t.Fatalf("expected invalid-recipient error for case mismatch, got %v", err)
	}

	if err := registry.sendToHandle("example.com", "Ana", newWireMessage("bo (private)", "psst")); err != nil {
		t.Fatalf("send to handle: %v", err)
	}
	got := pb.messages(t)
	if len(got) != 1 || got[0].Message != "psst" {
		t.Fatalf("expected delivered frame, got %v", got)
	}
}

func TestBroadcastReachesEveryMemberWithSamePayload(t *testing.T) {
	registry := testRegistry()
	ana := newPeerBuffer()
	bo := newPeerBuffer()
	if _, err := registry.register("example.com", ana.peer, "ana"); err != nil {
		t.Fatalf("register ana: %v", err)
	}
	if _, err := registry.register("example.com", bo.peer, "bo"); err != nil {
		t.Fatalf("register bo: %v", err)
	}

	registry.broadcast("example.com", newWireMessage("ana", "hello"))

	anaGot := ana.messages(t)
	boGot := bo.messages(t)
	if len(anaGot) != 1 || len(boGot) != 1 {
		t.Fatalf("expected one frame per member, got %d and %d", len(anaGot), len(boGot))
	}
	if anaGot[0] != boGot[0] {
		t.Fatalf("expected identical payloads, got %v and %v", anaGot[0], boGot[0])
	}
	if anaGot[0].Timestamp == 0 {
		t.Fatalf("expected timestamp to be set")
	}
}

func TestListHandlesInJoinOrder(t *testing.T) {
	registry := testRegistry()
	for _, handle := range []string{"ana", "bo", "cy"} {
		if _, err := registry.register("example.com", newPeerBuffer().peer, handle); err != nil {
			t.Fatalf("register %s: %v", handle, err)
		}
	}
	handles := registry.listHandles("example.com")
	if len(handles) != 3 || handles[0] != "ana" || handles[1] != "bo" || handles[2] != "cy" {
		t.Fatalf("expected join order, got %v", handles)
	}
}
