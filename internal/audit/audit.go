package audit

import (
	"context"

	"github.com/weiawesome/chat-relay/pkg/log"
)

// Audit actions for the chat relay.
const (
	ActionJoin        = "chat.join"
	ActionJoinFailed  = "chat.join_failed"
	ActionSendMessage = "chat.send_message"
	ActionDisconnect  = "chat.disconnect"
)

const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit entry via the context logger.
func Log(ctx context.Context, action, username, room, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUsername, username).
		Str(log.FieldRoom, room).
		Msg(msg)
}

// LogWithDetail emits an audit entry with an extra detail field.
func LogWithDetail(ctx context.Context, action, username, room, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUsername, username).
		Str(log.FieldRoom, room).
		Str(FieldDetail, detail).
		Msg(msg)
}
