package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/jera/featureflag"
	"github.com/aukilabs/jera/models"
	"github.com/aukilabs/jera/terrain"
	"github.com/aukilabs/jera/upload"
	"github.com/aukilabs/jera/voxel"
	"github.com/aukilabs/jera/world"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

// NewTestingEnv starts a WebSocket server running handlers created with
// newHandler and returns a connected viewer.
func NewTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	config, err := websocket.NewConfig(
		strings.ReplaceAll(server.URL, "http://", "ws://"),
		"http://localhost",
	)
	require.NoError(t, err)
	config.Header.Set("User-Agent", "ted")
	config.Header.Set("X-Forwarded-For", "192.0.0.0")

	conn, err := websocket.DialConfig(config)
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		server.Close()

		mutex.Lock()
		defer mutex.Unlock()
		logger = nil
	}
}

// testEnv holds the shared state behind the handlers of a testing
// environment.
type testEnv struct {
	World   *world.World
	Viewers *models.ViewerStore
	Packer  *upload.Packer
	Flags   featureflag.FeatureFlag
}

func newTestEnv(flags ...string) *testEnv {
	w := world.New(world.Config{
		Generator:      terrain.Flat{Height: 1.3, Voxel: voxel.Grass},
		RenderDistance: 1,
		Workers:        2,
	})

	return &testEnv{
		World:   w,
		Viewers: &models.ViewerStore{},
		Packer:  &upload.Packer{World: w, Interval: time.Hour},
		Flags:   featureflag.New(flags),
	}
}

func (e *testEnv) newHandler() Handler {
	var h Handler = &ViewerHandler{
		World:                    e.World,
		Viewers:                  e.Viewers,
		Packer:                   e.Packer,
		FeatureFlags:             e.Flags,
		ViewerWorldStateInterval: time.Hour,
		ViewerIdleTimeout:        time.Minute,
	}

	h = HandlerWithLogs(h, time.Millisecond*100)
	h = HandlerWithMetrics(h, "http://jera-test.local")
	return h
}

func sendMsg(t *testing.T, conn *websocket.Conn, typ MsgType, requestID uint32, data any) {
	msg, err := NewMsg(typ, requestID, data)
	require.NoError(t, err)

	b, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, websocket.Message.Send(conn, string(b)))
}

// receiveMsg returns the next message of the given type, skipping the others.
func receiveMsg(t *testing.T, conn *websocket.Conn, typ MsgType) Msg {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	for {
		var b []byte
		require.NoError(t, websocket.Message.Receive(conn, &b))

		var msg Msg
		require.NoError(t, json.Unmarshal(b, &msg))
		if msg.Type == typ {
			return msg
		}
	}
}
