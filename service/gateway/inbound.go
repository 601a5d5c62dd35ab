package gateway

import (
	"context"

	"PPRealtime/module/chat/model"
	"PPRealtime/service/chat"
	"PPRealtime/tools/errs"

	"go.uber.org/zap"
)

// Client frame names.
const (
	frameAuth         = "auth"
	frameRoomJoin     = "room:join"
	frameRoomLeave    = "room:leave"
	frameTypingStart  = "typing:start"
	frameTypingStop   = "typing:stop"
	frameDelivered    = "message:delivered"
	frameRead         = "message:read"
	frameOnlineStatus = "online:status"
)

// handleFrame runs one client frame. Failures go back to the client as an
// error frame; the connection stays open.
func (s *Server) handleFrame(ctx context.Context, cl *wsClient, raw []byte) {
	f, err := chat.ParseFrame(raw)
	if err != nil {
		s.replyError(cl, "", errs.ErrArgs.WrapMsg(err.Error()))
		return
	}
	if err := s.dispatchFrame(ctx, cl, f); err != nil {
		s.log.Debug("frame rejected", zap.String("session", cl.id), zap.String("event", f.Event), zap.Error(err))
		s.replyError(cl, f.Event, err)
	}
}

func (s *Server) dispatchFrame(ctx context.Context, cl *wsClient, f *chat.InboundFrame) error {
	switch f.Event {
	case frameAuth:
		p, err := chat.DecodePayload[chat.AuthPayload](f)
		if err != nil {
			return errs.ErrArgs.WrapMsg(err.Error())
		}
		uid, err := s.verifier.VerifyToken(p.Token)
		if err != nil {
			return errs.ErrTokenInvalid.WrapMsg("auth frame", "session", cl.id)
		}
		return s.core.OnAuthenticate(ctx, cl.id, uid)

	case frameRoomJoin, frameRoomLeave:
		p, err := chat.DecodePayload[chat.RoomPayload](f)
		if err != nil {
			return errs.ErrArgs.WrapMsg(err.Error())
		}
		if f.Event == frameRoomJoin {
			return s.core.OnJoinRoom(ctx, cl.id, p.ConversationID)
		}
		return s.core.OnLeaveRoom(ctx, cl.id, p.ConversationID)

	case frameTypingStart, frameTypingStop:
		p, err := chat.DecodePayload[chat.TypingPayload](f)
		if err != nil {
			return errs.ErrArgs.WrapMsg(err.Error())
		}
		if f.Event == frameTypingStart {
			return s.core.OnTypingStart(ctx, cl.id, p.ConversationID, p.UserName)
		}
		return s.core.OnTypingStop(ctx, cl.id, p.ConversationID)

	case frameDelivered, frameRead:
		p, err := chat.DecodePayload[chat.AckPayload](f)
		if err != nil {
			return errs.ErrArgs.WrapMsg(err.Error())
		}
		uid, err := s.sessionUser(cl.id)
		if err != nil {
			return err
		}
		status := model.StatusDelivered
		if f.Event == frameRead {
			status = model.StatusRead
		}
		_, err = s.messages.AdvanceStatus(ctx, p.MessageID, status, uid)
		return err

	case frameOnlineStatus:
		p, err := chat.DecodePayload[chat.OnlineStatusQuery](f)
		if err != nil {
			return errs.ErrArgs.WrapMsg(err.Error())
		}
		if _, err := s.sessionUser(cl.id); err != nil {
			return err
		}
		online := s.core.OnlineStatus(ctx, p.UserIDs)
		s.core.Bus().PublishToSession(ctx, cl.id, chat.OnlineStatus{OnlineUsers: online})
		return nil

	default:
		return errs.ErrArgs.WrapMsg("unknown event", "event", f.Event)
	}
}

func (s *Server) sessionUser(sessionID string) (string, error) {
	sess, ok := s.core.Sessions().Session(sessionID)
	if !ok {
		return "", errs.ErrSessionNotFound.WrapMsg("session gone", "session", sessionID)
	}
	if !sess.Authenticated() {
		return "", errs.ErrUnauthenticated.WrapMsg("authenticate first", "session", sessionID)
	}
	return sess.UserID, nil
}

// replyError writes straight to the client: anonymous sessions are not
// reachable through the bus.
func (s *Server) replyError(cl *wsClient, ref string, err error) {
	ev := chat.ErrorEvent{Code: errs.ServerInternalError, Message: "internal error", Ref: ref}
	if ce, ok := errs.Code(err); ok {
		ev.Code = ce.Code
		ev.Message = ce.Msg
		if ce.Detail != "" {
			ev.Message += ": " + ce.Detail
		}
	}
	frame, encErr := chat.EncodeEvent(ev)
	if encErr != nil {
		s.log.Error("encode error frame", zap.Error(encErr))
		return
	}
	_ = cl.Deliver(frame)
}
