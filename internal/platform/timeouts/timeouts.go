// Package timeouts defines shared timeout constants used across the relay.
// Centralizing these values prevents drift between process boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Moderation caps a single content-safety classification call.
const Moderation = 15 * time.Second

// Completion caps a single chat completion call. Completions are slow for
// long prompts, so this is deliberately generous; cancellation stays
// advisory either way.
const Completion = 90 * time.Second
