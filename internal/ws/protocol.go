package ws

import (
	"github.com/exam-sentinel/backend/internal/session"
)

type MessageType string

// Commands pushed to the kiosk shell.
const (
	MsgStatus        MessageType = "status"
	MsgLockWindow    MessageType = "lock_window"
	MsgEnterKiosk    MessageType = "enter_kiosk"
	MsgExitKiosk     MessageType = "exit_kiosk"
	MsgShowWarning   MessageType = "show_warning"
	MsgCloseWarning  MessageType = "close_warning"
	MsgTerminated    MessageType = "terminated"
	MsgUnlockForExit MessageType = "unlock_for_exit"
	MsgQuit          MessageType = "quit"
)

// Events the kiosk shell raises.
const (
	EvStartRequested      MessageType = "start_requested"
	EvWarningTimerExpired MessageType = "warning_timer_expired"
	EvEndRequested        MessageType = "end_requested"
)

type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// InboundMessage is what the shell sends; events carry no payload.
type InboundMessage struct {
	Type MessageType `json:"type"`
}

type StatusPayload struct {
	State *session.State `json:"state"`
}

type WarningPayload struct {
	Message      string `json:"message"`
	GraceSeconds int    `json:"graceSeconds"`
}

type TerminatedPayload struct {
	Reason string `json:"reason"`
}
