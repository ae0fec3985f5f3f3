// Package assistant implements the relay's resident conversational bot.
//
// It keeps per-room conversation history, enforces the token budget through
// trimming at request construction, tracks pending completion calls so a user
// cannot interleave requests with themselves, and orchestrates the
// moderation-then-completion flow. The external completion and moderation
// services are consumed through narrow interfaces so the package stays
// testable without network access.
package assistant
