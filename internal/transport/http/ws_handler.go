package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/relaychat/relay-server/internal/core"
	"github.com/relaychat/relay-server/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub         *core.Hub
	log         *zerolog.Logger
	idleTimeout time.Duration
	msgLimit    int
}

// NewWSHandler builds a new WebSocket handler. idleTimeout bounds how
// long a silent connection stays registered; msgLimit caps inbound
// messages per minute per connection (0 disables either).
func NewWSHandler(hub *core.Hub, logger *zerolog.Logger, idleTimeout time.Duration, msgLimit int) stdhttp.Handler {
	return &WSHandler{hub: hub, log: logger, idleTimeout: idleTimeout, msgLimit: msgLimit}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := core.NewClient(uuid.NewString())
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := newRateLimiter(h.msgLimit, time.Minute)
	stop := make(chan struct{})
	limiter.startReset(stop)
	defer close(stop)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF):
		err = nil
	case errors.Is(err, context.DeadlineExceeded):
		// Heartbeat expired; an unresponsive connection is unregistered,
		// not an error.
		status = websocket.StatusGoingAway
		reason = "idle timeout"
		err = nil
	default:
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, limiter *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := h.readFrame(ctx, conn, &inbound); err != nil {
			return err
		}

		if !limiter.allow() {
			if err := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: &proto.Error{Code: "rate_limited", Msg: "too many messages"},
			}); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			return err
		}
		if protoErr != nil {
			// One bad event never drops the connection.
			if err := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// readFrame reads one frame under the idle deadline; no frame for
// idleTimeout makes the read fail with DeadlineExceeded.
func (h *WSHandler) readFrame(ctx context.Context, conn *websocket.Conn, inbound *proto.Inbound) error {
	if h.idleTimeout <= 0 {
		return wsjson.Read(ctx, conn, inbound)
	}
	readCtx, cancel := context.WithTimeout(ctx, h.idleTimeout)
	defer cancel()
	return wsjson.Read(readCtx, conn, inbound)
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
