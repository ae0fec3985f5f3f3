package server

import (
	"fmt"
	"strings"
)

// executeCommand handles "/name" frames. The whole remainder after the
// slash is the command name. Replies always go only to the caller, from
// the server origin.
func (h *relayHandler) executeCommand(user *connectedUser, command string) {
	switch command {
	case "users":
		h.sendServer(user, h.userListMessage(user.hostname))
	case "undo":
		if h.bot == nil {
			h.sendServer(user, inactiveBotMessage(command))
			return
		}
		h.sendServer(user, h.bot.Undo(user.hostname, user.id))
	case "cancel":
		if h.bot == nil {
			h.sendServer(user, inactiveBotMessage(command))
			return
		}
		h.sendServer(user, h.bot.CancelPending(user.hostname, user.id))
	case "forget":
		if h.bot == nil {
			h.sendServer(user, inactiveBotMessage(command))
			return
		}
		h.sendServer(user, h.bot.Forget(user.hostname, user.id))
	default:
		h.sendServer(user, fmt.Sprintf("Command not recognized: %s", command))
	}
}

func (h *relayHandler) userListMessage(hostname string) string {
	handles := h.registry.listHandles(hostname)
	list := strings.Join(handles, ", ")
	if h.bot != nil {
		if list == "" {
			list = fmt.Sprintf("%s (bot)", h.botName)
		} else {
			list = fmt.Sprintf("%s, %s (bot)", list, h.botName)
		}
	}
	return fmt.Sprintf("Users in room: %s", list)
}

func inactiveBotMessage(command string) string {
	return fmt.Sprintf("%q command only works when a chatbot is active", command)
}
