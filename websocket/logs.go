package websocket

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const (
	viewerIDTag   = "viewer_id"
	viewerUUIDTag = "viewer_uuid"
)

// HandlerWithLogs decorates h with connection logs and a periodic summary of
// the inbound messages.
func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	originalRequest *http.Request

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)
	h.originalRequest = conn.Request()

	id, uuid := h.viewerTags()
	logs.WithTag(viewerIDTag, id).
		WithTag(viewerUUIDTag, uuid).
		WithTag("http_headers", struct {
			UserAgent     string `json:"user_agent,omitempty"`
			XForwardedFor string `json:"x_forwarded_for,omitempty"`
		}{
			UserAgent:     h.originalRequest.UserAgent(),
			XForwardedFor: h.originalRequest.Header.Get("X-Forwarded-For"),
		}).
		Info("new viewer is connected")
}

func (h *handlerWithLogs) HandleMove(ctx context.Context, respond ResponseSender, msg Msg) error {
	if err := h.Handler.HandleMove(ctx, respond, msg); err != nil {
		return err
	}

	if pos, ok := h.viewerPosition(); ok {
		id, uuid := h.viewerTags()
		logs.WithTag(viewerIDTag, id).
			WithTag(viewerUUIDTag, uuid).
			WithTag("position", pos).
			Debug("viewer moved")
	}
	return nil
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	id, uuid := h.viewerTags()
	entry := logs.WithTag(viewerIDTag, id).
		WithTag(viewerUUIDTag, uuid)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		entry = entry.WithTag("reason", err.Error())
	}
	entry.Info("viewer disconnected")
}

func (h *handlerWithLogs) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		id, uuid := h.viewerTags()
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			logs.WithTag(viewerIDTag, id).
				WithTag(viewerUUIDTag, uuid).
				Error(errors.New("receiving message failed").Wrap(err))
		} else if err == nil {
			logs.WithTag(viewerIDTag, id).
				WithTag(viewerUUIDTag, uuid).
				WithTag("msg_type", msg.TypeString()).
				Debug("message received")
			h.incCounter(msg.TypeString())
		}
		return msg, n, err
	}
}

func (h *handlerWithLogs) Sender() Sender {
	sender := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		msgType := msg.TypeString()

		n, err := sender(msg)
		id, uuid := h.viewerTags()
		if err != nil && !errors.Is(err, net.ErrClosed) {
			logs.WithTag(viewerIDTag, id).
				WithTag(viewerUUIDTag, uuid).
				WithTag("msg_type", msgType).
				Error(errors.New("sending message failed").Wrap(err))
		} else if err == nil {
			logs.WithTag(viewerIDTag, id).
				WithTag(viewerUUIDTag, uuid).
				WithTag("msg_type", msgType).
				Debug("message sent")
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(msgType string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[msgType]++
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 {
		return
	}

	id, uuid := h.viewerTags()
	entry := logs.WithTag(viewerIDTag, id).
		WithTag(viewerUUIDTag, uuid).
		WithTag("time_interval", h.summaryInterval)
	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
		delete(h.counter, k)
	}

	entry.Info("inbound message summary")
}

func (h *handlerWithLogs) viewerTags() (uint32, string) {
	v := h.CurrentViewer()
	if v == nil {
		return 0, ""
	}
	return v.ID, v.UUID
}

func (h *handlerWithLogs) viewerPosition() (string, bool) {
	v := h.CurrentViewer()
	if v == nil {
		return "", false
	}

	pos, ok := v.Position()
	if !ok {
		return "", false
	}
	return pos.String(), true
}
