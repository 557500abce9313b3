package http

import (
	"encoding/json"
	"fmt"

	"github.com/relaychat/relay-server/internal/core"
	"github.com/relaychat/relay-server/internal/proto"
	"github.com/relaychat/relay-server/internal/store"
)

// inboundToCommand validates one wire message and maps it to a hub
// command. A malformed payload yields a proto error for the sender and
// never a dropped connection; only an unreadable frame returns err.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeHello:
		var hello proto.HelloData
		if err := json.Unmarshal(inbound.Data, &hello); err != nil {
			return nil, badEvent("malformed hello payload"), nil
		}
		if hello.User == "" {
			return nil, badEvent("user is required"), nil
		}
		return &core.Command{Kind: core.CommandHello, User: hello.User}, nil, nil

	case proto.InboundTypeJoin, proto.InboundTypeLeave:
		var join proto.JoinData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, badEvent("malformed join payload"), nil
		}
		if join.Room == "" {
			return nil, badEvent("room is required"), nil
		}
		kind := core.CommandJoinRoom
		if inbound.Type == proto.InboundTypeLeave {
			kind = core.CommandLeaveRoom
		}
		return &core.Command{Kind: kind, Room: join.Room}, nil, nil

	case proto.InboundTypeMsg:
		var msg proto.MsgData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, badEvent("malformed msg payload"), nil
		}
		if msg.Room == "" {
			return nil, badEvent("room is required"), nil
		}
		ct, perr := contentType(msg.ContentType)
		if perr != nil {
			return nil, perr, nil
		}
		return &core.Command{
			Kind:        core.CommandSendRoomMessage,
			Room:        msg.Room,
			Body:        msg.Text,
			ContentType: ct,
		}, nil, nil

	case proto.InboundTypeDM:
		var dm proto.DMData
		if err := json.Unmarshal(inbound.Data, &dm); err != nil {
			return nil, badEvent("malformed dm payload"), nil
		}
		if dm.To == "" {
			return nil, badEvent("to is required"), nil
		}
		ct, perr := contentType(dm.ContentType)
		if perr != nil {
			return nil, perr, nil
		}
		return &core.Command{
			Kind:        core.CommandSendPrivate,
			To:          dm.To,
			Body:        dm.Text,
			ContentType: ct,
		}, nil, nil

	case proto.InboundTypeTyping:
		var typing proto.TypingData
		if err := json.Unmarshal(inbound.Data, &typing); err != nil {
			return nil, badEvent("malformed typing payload"), nil
		}
		if typing.Room == "" {
			return nil, badEvent("room is required"), nil
		}
		return &core.Command{
			Kind:     core.CommandTyping,
			Room:     typing.Room,
			IsTyping: typing.IsTyping,
		}, nil, nil

	case proto.InboundTypeRead:
		var read proto.ReadData
		if err := json.Unmarshal(inbound.Data, &read); err != nil {
			return nil, badEvent("malformed read payload"), nil
		}
		if read.Room == "" {
			return nil, badEvent("room is required"), nil
		}
		if len(read.MessageIDs) == 0 {
			return nil, badEvent("message_ids is required"), nil
		}
		return &core.Command{
			Kind:       core.CommandMarkRead,
			Room:       read.Room,
			MessageIDs: read.MessageIDs,
		}, nil, nil

	default:
		return nil, badEvent(fmt.Sprintf("unknown message type %q", inbound.Type)), nil
	}
}

func badEvent(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadEvent, Msg: msg}
}

func contentType(raw string) (store.ContentType, *proto.Error) {
	if raw == "" {
		return store.ContentTypeText, nil
	}
	ct := store.ContentType(raw)
	if !ct.Valid() {
		return "", badEvent(fmt.Sprintf("unknown content type %q", raw))
	}
	return ct, nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRoomMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "message",
			Data:  messageToProto(event.Message),
		}
	case core.EventPrivateMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "dm",
			Data:  messageToProto(event.Message),
		}
	case core.EventUserJoined:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "user_joined",
			Data:  proto.EventUserJoined{Room: event.Room, User: event.User},
		}
	case core.EventUserLeft:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "user_left",
			Data:  proto.EventUserLeft{Room: event.Room, User: event.User},
		}
	case core.EventPresence:
		kind, verb := "left", "left the chat"
		if event.Online {
			kind, verb = "joined", "joined the chat"
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "presence",
			Data: proto.EventPresence{
				Type:    kind,
				User:    event.User,
				Message: event.User + " " + verb,
			},
		}
	case core.EventTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "typing",
			Data: proto.EventTyping{
				Room:     event.Room,
				User:     event.User,
				IsTyping: event.IsTyping,
			},
		}
	case core.EventRead:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "read",
			Data: proto.EventRead{
				Room:       event.Room,
				ReadBy:     event.User,
				MessageIDs: event.MessageIDs,
			},
		}
	case core.EventHistory:
		messages := make([]proto.EventMessage, 0, len(event.Messages))
		for i := range event.Messages {
			messages = append(messages, messageToProto(&event.Messages[i]))
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "history",
			Data:  proto.EventHistory{Room: event.Room, Messages: messages},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func messageToProto(m *store.Message) proto.EventMessage {
	if m == nil {
		return proto.EventMessage{}
	}
	return proto.EventMessage{
		ID:          m.ID,
		Room:        m.Room,
		User:        m.From,
		Text:        m.Body,
		ContentType: string(m.ContentType),
		TS:          m.CreatedAt.Unix(),
		ReadBy:      m.ReadBy,
	}
}
