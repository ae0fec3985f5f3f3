// Package errors provides structured errors whose enumerated kinds carry
// user-presentable message text.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unclassified error. Its message text is
	// never shown to users.
	CodeUnknown Code = "UNKNOWN"

	// CodeInvalidHandle marks a duplicate or reserved handle at registration.
	CodeInvalidHandle Code = "INVALID_HANDLE"
	// CodeInvalidRecipient marks an addressed message whose recipient handle
	// does not exist in the room.
	CodeInvalidRecipient Code = "INVALID_RECIPIENT"
	// CodeConnectionNotFound marks a unicast whose target id is not registered.
	CodeConnectionNotFound Code = "CONNECTION_NOT_FOUND"
	// CodeInvalidCommand marks an assistant operation while no assistant is
	// active for the room.
	CodeInvalidCommand Code = "INVALID_COMMAND"
	// CodeMessageTooLarge marks a conversation that cannot be trimmed under
	// the token budget without dropping the system prompt or the new turn.
	CodeMessageTooLarge Code = "MESSAGE_TOO_LARGE"
)

// Enumerated reports whether the code's literal message text may be surfaced
// to the user. Unknown errors are collapsed to a generic message at the
// transport boundary instead.
func (c Code) Enumerated() bool {
	switch c {
	case CodeInvalidHandle, CodeInvalidRecipient, CodeConnectionNotFound,
		CodeInvalidCommand, CodeMessageTooLarge:
		return true
	default:
		return false
	}
}
