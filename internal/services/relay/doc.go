// Package relay implements the real-time chat surface: rooms keyed by the
// connecting hostname, broadcast and private message dispatch, and the
// assistant conversation path.
//
// It keeps WebSocket lifecycle and fan-out isolated from the assistant's
// conversation logic so the bot stays testable without a transport.
package relay
