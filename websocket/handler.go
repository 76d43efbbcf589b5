package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/jera/models"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize    = 512
	receiveChanSize = 64
)

// Handler represents a viewer connection handler.
type Handler interface {
	// Handles a viewer connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a viewer's disconnection.
	HandleDisconnect(error)

	// Handles a ping request.
	HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a viewer position update.
	HandleMove(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a ray query.
	HandleRaycast(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a voxel read.
	HandleGetVoxel(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a voxel write.
	HandleSetVoxel(ctx context.Context, respond ResponseSender, msg Msg) error

	// Sends the world state to the viewer.
	SendWorldState(ctx context.Context, respond ResponseSender) error

	// Creates a message receiver used to receive incoming messages.
	Receiver() Receiver

	// Creates a message sender used to send messages.
	Sender() Sender

	// Closes the handler and releases its allocated resources.
	Close()

	// The interval between each world state message.
	WorldStateInterval() time.Duration

	// The time a viewer is idle before being disconnected.
	IdleTimeout() time.Duration

	// The connected viewer.
	CurrentViewer() *models.Viewer
}

// Handle runs the connection loop until the viewer disconnects or the context
// is done.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The viewer handler.
	Handler Handler

	sendChan       chan Msg
	receiveChan    chan Msg
	sender         Sender
	receiver       Receiver
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan Msg, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	h.receiveChan = make(chan Msg, receiveChanSize)
	h.receiver = h.Handler.Receiver()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	stateTicker := time.NewTicker(h.Handler.WorldStateInterval())
	defer stateTicker.Stop()

	responder := responseSender{send: h.send}

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			h.handleDisconnect(ctx.Err())

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", idleTimeout))

		case <-stateTicker.C:
			if err := h.Handler.SendWorldState(ctx, responder); err != nil {
				h.disconnect(errors.New("sending world state failed").Wrap(err))
			}

		case msg := <-h.receiveChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleMessage(ctx, msg, responder); err != nil {
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			if ctx.Err() == nil {
				// cancel context so go routines can cleanly exit
				cancel()
			}
		}
	}

	wg.Wait()
}

func (h *handler) send(t MsgType, requestID uint32, data any) {
	msg, err := NewMsg(t, requestID, data)
	if err != nil {
		logs.WithTag("msg_type", t).Debug(err)
		return
	}

	select {
	case h.sendChan <- msg:
	default:
		logs.WithTag("msg_type", t).
			Warn(errors.New("send queue full, message dropped"))
	}
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := h.sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		msg, _, err := h.receiver()
		if err != nil {
			h.disconnect(errors.New("receiving message failed").Wrap(err))
			return
		}

		select {
		case <-ctx.Done():
			return
		case h.receiveChan <- msg:
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg Msg, responder ResponseSender) error {
	var err error

	switch msg.Type {
	case MsgTypePing:
		err = h.Handler.HandlePing(ctx, responder, msg)

	case MsgTypeMove:
		err = h.Handler.HandleMove(ctx, responder, msg)

	case MsgTypeRaycast:
		err = h.Handler.HandleRaycast(ctx, responder, msg)

	case MsgTypeGetVoxel:
		err = h.Handler.HandleGetVoxel(ctx, responder, msg)

	case MsgTypeSetVoxel:
		err = h.Handler.HandleSetVoxel(ctx, responder, msg)

	default:
		err = errors.New("unsupported message type").
			WithTag("msg_type", msg.TypeString()).
			WithType(ErrTypeBadRequest)
	}

	if errors.IsType(err, ErrTypeBadRequest) {
		responder.Send(MsgTypeError, msg.RequestID, ErrorResponse{
			Message: err.Error(),
			Type:    ErrTypeBadRequest,
		})
		return nil
	}
	return err
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type responseSender struct {
	send func(MsgType, uint32, any)
}

func (r responseSender) Send(t MsgType, requestID uint32, data any) {
	r.send(t, requestID, data)
}
