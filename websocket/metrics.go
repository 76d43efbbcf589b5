package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel        = "error_type"
	msgTypeLabel        = "msg_type"
	publicEndpointLabel = "public_endpoint"
)

var (
	wsConnectedViewers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ws_connected_viewers",
		Help: "The number of connected viewers.",
	}, []string{
		publicEndpointLabel,
	})

	wsReceivedMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_msgs",
		Help: "The number of messages received from WebSocket connections.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
	})

	wsReceivedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_bytes",
		Help: "The number of bytes received from WebSocket connections.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
	})

	wsReceiveError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_receive_errors",
		Help: "The errors that occured while receiving a websocket message.",
	}, []string{
		publicEndpointLabel,
		errTypeLabel,
	})

	wsSentMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_msgs",
		Help: "The number of messages sent to WebSocket connections.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
	})

	wsSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_bytes",
		Help: "The number of bytes sent to WebSocket connections.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
	})

	wsSendError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_send_errors",
		Help: "The errors that occured while sending a websocket message.",
	}, []string{
		publicEndpointLabel,
		errTypeLabel,
		msgTypeLabel,
	})

	wsMsgLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "ws_msg_latency",
		Help: "The time to process a WebSocket msg.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
	})
)

// HandlerWithMetrics decorates h with connection and message metrics.
func HandlerWithMetrics(h Handler, publicEndpoint string) Handler {
	return &handlerWithMetrics{
		Handler:        h,
		publicEndpoint: publicEndpoint,
	}
}

type handlerWithMetrics struct {
	Handler

	publicEndpoint string
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	wsConnectedViewers.
		With(prometheus.Labels{
			publicEndpointLabel: h.publicEndpoint,
		}).
		Inc()

	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	wsConnectedViewers.
		With(prometheus.Labels{
			publicEndpointLabel: h.publicEndpoint,
		}).
		Dec()

	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg.Type, func() error {
		return h.Handler.HandlePing(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleMove(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg.Type, func() error {
		return h.Handler.HandleMove(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleRaycast(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg.Type, func() error {
		return h.Handler.HandleRaycast(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleGetVoxel(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg.Type, func() error {
		return h.Handler.HandleGetVoxel(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleSetVoxel(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg.Type, func() error {
		return h.Handler.HandleSetVoxel(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) SendWorldState(ctx context.Context, respond ResponseSender) error {
	return h.measureLatency(MsgTypeWorldState, func() error {
		return h.Handler.SendWorldState(ctx, respond)
	})
}

func (h *handlerWithMetrics) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		if err != nil {
			wsReceiveError.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					errTypeLabel:        errors.Type(err),
				}).
				Inc()
		} else {
			wsReceivedMsgs.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					msgTypeLabel:        msg.TypeString(),
				}).
				Inc()
		}

		if n != 0 {
			wsReceivedBytes.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					msgTypeLabel:        msg.TypeString(),
				}).
				Add(float64(n))
		}

		return msg, n, err
	}
}

func (h *handlerWithMetrics) Sender() Sender {
	sender := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		msgType := msg.TypeString()

		n, err := sender(msg)
		if err != nil {
			wsSendError.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					msgTypeLabel:        msgType,
					errTypeLabel:        errors.Type(err),
				}).
				Inc()
		}

		if n != 0 {
			wsSentMsgs.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					msgTypeLabel:        msgType,
				}).
				Inc()
			wsSentBytes.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					msgTypeLabel:        msgType,
				}).
				Add(float64(n))
		}

		return n, err
	}
}

func (h *handlerWithMetrics) measureLatency(t MsgType, f func() error) error {
	start := time.Now()
	err := f()

	wsMsgLatency.With(prometheus.Labels{
		publicEndpointLabel: h.publicEndpoint,
		msgTypeLabel:        string(t),
	}).Observe(time.Since(start).Seconds())

	return err
}
