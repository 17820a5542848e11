package session

import (
	"context"
	"fmt"
	"time"
)

// Wire message types for the interactive session protocol. The
// transport (websocket, local socket) is external; this package only
// defines message content.
const (
	MsgSessionCreated = "session_created"
	MsgCommandResult  = "command_result"
	MsgCommandChunk   = "command_chunk"
	MsgConfigResult   = "config_result"
	MsgSessionClosed  = "session_closed"
	MsgError          = "error"
)

// Request actions.
const (
	ActionCreate  = "create"
	ActionExecute = "execute"
	ActionStream  = "execute_stream"
	ActionConfig  = "send_config"
	ActionClose   = "close"
)

// Request is one inbound protocol message.
type Request struct {
	Action      string   `json:"action"`
	SessionID   string   `json:"session_id,omitempty"`
	DeviceID    string   `json:"device_id,omitempty"`
	UserID      string   `json:"user_id,omitempty"`
	Command     string   `json:"command,omitempty"`
	ConfigLines []string `json:"config_lines,omitempty"`
}

// Response is one outbound protocol message.
type Response struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Result    interface{} `json:"result,omitempty"`
	Chunk     *Chunk      `json:"chunk,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func response(msgType, sessionID string, result interface{}) Response {
	return Response{
		Type:      msgType,
		SessionID: sessionID,
		Result:    result,
		Timestamp: time.Now().UTC(),
	}
}

func errorResponse(sessionID string, err error) Response {
	return Response{
		Type:      MsgError,
		SessionID: sessionID,
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	}
}

// Dispatch maps one protocol request onto the manager and emits the
// resulting messages. Streaming commands emit one MsgCommandChunk per
// chunk before the trailing status message; everything else emits
// exactly one message. Emit is called from the dispatching goroutine
// only.
func (m *Manager) Dispatch(ctx context.Context, req Request, emit func(Response)) {
	switch req.Action {
	case ActionCreate:
		s, err := m.Create(ctx, req.DeviceID, req.UserID)
		if err != nil {
			emit(errorResponse("", err))
			return
		}
		emit(response(MsgSessionCreated, s.ID, s.info()))

	case ActionExecute:
		result, err := m.Execute(ctx, req.SessionID, req.Command)
		if err != nil {
			emit(errorResponse(req.SessionID, err))
			return
		}
		emit(response(MsgCommandResult, req.SessionID, result))

	case ActionStream:
		err := m.ExecuteStream(ctx, req.SessionID, req.Command, func(c Chunk) {
			chunk := c
			resp := response(MsgCommandChunk, req.SessionID, nil)
			resp.Chunk = &chunk
			emit(resp)
		})
		if err != nil {
			emit(errorResponse(req.SessionID, err))
		}

	case ActionConfig:
		result, err := m.SendConfig(ctx, req.SessionID, req.ConfigLines)
		if err != nil {
			// The partial result still reports which lines went in.
			resp := errorResponse(req.SessionID, err)
			resp.Result = result
			emit(resp)
			return
		}
		emit(response(MsgConfigResult, req.SessionID, result))

	case ActionClose:
		m.Close(req.SessionID)
		emit(response(MsgSessionClosed, req.SessionID, nil))

	default:
		emit(errorResponse(req.SessionID, fmt.Errorf("unknown action %q", req.Action)))
	}
}
