package websocket

import (
	"testing"
	"time"

	"github.com/aukilabs/jera/featureflag"
	"github.com/aukilabs/jera/models"
	"github.com/aukilabs/jera/voxel"
	"github.com/stretchr/testify/require"
)

func TestHandlePing(t *testing.T) {
	env := newTestEnv()
	conn, close := NewTestingEnv(t, env.newHandler)
	defer close()

	sendMsg(t, conn, MsgTypePing, 42, nil)
	msg := receiveMsg(t, conn, MsgTypePong)
	require.Equal(t, uint32(42), msg.RequestID)
}

func TestHandleMove(t *testing.T) {
	env := newTestEnv()
	conn, close := NewTestingEnv(t, env.newHandler)
	defer close()

	sendMsg(t, conn, MsgTypeMove, 1, MoveRequest{
		Position: models.Vector{X: 0.5, Y: 2, Z: 0.5},
	})

	var ack MoveAck
	require.NoError(t, receiveMsg(t, conn, MsgTypeMoveAck).DataTo(&ack))
	require.Equal(t, voxel.ChunkPos{}, ack.Center)
	require.Equal(t, 27, ack.Resident)
	require.Equal(t, 1, ack.RenderDistance)
	require.Equal(t, 27, env.World.ChunkCount())

	t.Run("render distance change", func(t *testing.T) {
		rd := 0
		sendMsg(t, conn, MsgTypeMove, 2, MoveRequest{
			Position:       models.Vector{X: 5, Y: 2, Z: 0.5},
			RenderDistance: &rd,
		})

		var ack MoveAck
		require.NoError(t, receiveMsg(t, conn, MsgTypeMoveAck).DataTo(&ack))
		require.Equal(t, voxel.ChunkPos{X: 1}, ack.Center)
		require.Equal(t, 1, ack.Resident)
		require.Equal(t, 0, ack.RenderDistance)
	})

	t.Run("chunks are packed", func(t *testing.T) {
		env.Packer.Flush()
		_, ok := env.Packer.Buffer(voxel.ChunkPos{X: 1})
		require.True(t, ok)
	})
}

func TestHandleRaycast(t *testing.T) {
	env := newTestEnv()
	conn, close := NewTestingEnv(t, env.newHandler)
	defer close()

	req := models.RaycastRequest{
		Origin:    models.Vector{X: 0.5625, Y: 3, Z: 0.5625},
		Direction: models.Vector{Y: -1},
	}

	t.Run("empty world misses", func(t *testing.T) {
		sendMsg(t, conn, MsgTypeRaycast, 1, req)

		var res models.HitResponse
		require.NoError(t, receiveMsg(t, conn, MsgTypeRaycastResult).DataTo(&res))
		require.False(t, res.Hit)
	})

	sendMsg(t, conn, MsgTypeMove, 2, MoveRequest{Position: req.Origin})
	receiveMsg(t, conn, MsgTypeMoveAck)

	for _, method := range []string{"octree", "dda"} {
		t.Run(method, func(t *testing.T) {
			req := req
			req.Method = method
			sendMsg(t, conn, MsgTypeRaycast, 3, req)

			msg := receiveMsg(t, conn, MsgTypeRaycastResult)
			require.Equal(t, uint32(3), msg.RequestID)

			var res models.HitResponse
			require.NoError(t, msg.DataTo(&res))
			require.True(t, res.Hit)
			require.Equal(t, voxel.Grass, res.Voxel)
			require.InDelta(t, 1.375, res.Position.Y, 1e-9)
			require.InDelta(t, 1.625, res.Distance, 1e-9)
			require.Equal(t, models.Vector{Y: 1}, *res.Normal)
		})
	}

	t.Run("degenerate ray is a bad request", func(t *testing.T) {
		sendMsg(t, conn, MsgTypeRaycast, 4, models.RaycastRequest{
			Origin: req.Origin,
		})

		var res ErrorResponse
		msg := receiveMsg(t, conn, MsgTypeError)
		require.Equal(t, uint32(4), msg.RequestID)
		require.NoError(t, msg.DataTo(&res))
		require.Equal(t, ErrTypeBadRequest, res.Type)

		sendMsg(t, conn, MsgTypePing, 5, nil)
		require.Equal(t, uint32(5), receiveMsg(t, conn, MsgTypePong).RequestID)
	})
}

func TestHandleVoxel(t *testing.T) {
	env := newTestEnv()
	conn, close := NewTestingEnv(t, env.newHandler)
	defer close()

	pos := models.Vector{X: 0.5, Y: 2.5, Z: 0.5}

	t.Run("write on a chunk not in memory is dropped", func(t *testing.T) {
		sendMsg(t, conn, MsgTypeSetVoxel, 1, SetVoxelRequest{Position: pos, Voxel: voxel.Stone})

		var ack SetVoxelAck
		require.NoError(t, receiveMsg(t, conn, MsgTypeSetVoxelAck).DataTo(&ack))
		require.False(t, ack.Written)
	})

	sendMsg(t, conn, MsgTypeMove, 2, MoveRequest{Position: pos})
	receiveMsg(t, conn, MsgTypeMoveAck)

	t.Run("write and read", func(t *testing.T) {
		sendMsg(t, conn, MsgTypeSetVoxel, 3, SetVoxelRequest{Position: pos, Voxel: voxel.Stone})

		var ack SetVoxelAck
		require.NoError(t, receiveMsg(t, conn, MsgTypeSetVoxelAck).DataTo(&ack))
		require.True(t, ack.Written)

		sendMsg(t, conn, MsgTypeGetVoxel, 4, VoxelRequest{Position: pos})

		var res VoxelResponse
		require.NoError(t, receiveMsg(t, conn, MsgTypeVoxel).DataTo(&res))
		require.Equal(t, voxel.Stone, res.Voxel)
		require.Equal(t, voxel.ChunkPos{}, res.Chunk)
		require.Equal(t, voxel.Stone, env.World.Voxel(pos.R3()))
	})

	t.Run("unknown material", func(t *testing.T) {
		sendMsg(t, conn, MsgTypeSetVoxel, 5, SetVoxelRequest{Position: pos, Voxel: 200})

		var res ErrorResponse
		require.NoError(t, receiveMsg(t, conn, MsgTypeError).DataTo(&res))
		require.Equal(t, ErrTypeBadRequest, res.Type)
		require.Equal(t, voxel.Stone, env.World.Voxel(pos.R3()))
	})
}

func TestHandleSetVoxelDisabled(t *testing.T) {
	env := newTestEnv(string(featureflag.FlagDisableVoxelEdit))
	conn, close := NewTestingEnv(t, env.newHandler)
	defer close()

	pos := models.Vector{X: 0.5, Y: 2.5, Z: 0.5}
	sendMsg(t, conn, MsgTypeMove, 1, MoveRequest{Position: pos})
	receiveMsg(t, conn, MsgTypeMoveAck)

	sendMsg(t, conn, MsgTypeSetVoxel, 2, SetVoxelRequest{Position: pos, Voxel: voxel.Stone})

	var res ErrorResponse
	require.NoError(t, receiveMsg(t, conn, MsgTypeError).DataTo(&res))
	require.Equal(t, ErrTypeBadRequest, res.Type)
	require.True(t, env.World.Voxel(pos.R3()).IsAir())
}

func TestHandleUnsupportedMessage(t *testing.T) {
	env := newTestEnv()
	conn, close := NewTestingEnv(t, env.newHandler)
	defer close()

	sendMsg(t, conn, MsgType("teleport"), 7, nil)

	msg := receiveMsg(t, conn, MsgTypeError)
	require.Equal(t, uint32(7), msg.RequestID)

	sendMsg(t, conn, MsgTypeMove, 8, nil)
	msg = receiveMsg(t, conn, MsgTypeError)
	require.Equal(t, uint32(8), msg.RequestID)
}

func TestSendWorldState(t *testing.T) {
	env := newTestEnv()
	conn, close := NewTestingEnv(t, func() Handler {
		return &ViewerHandler{
			World:                    env.World,
			Viewers:                  env.Viewers,
			ViewerWorldStateInterval: time.Millisecond * 20,
			ViewerIdleTimeout:        time.Minute,
		}
	})
	defer close()

	var state WorldState
	require.NoError(t, receiveMsg(t, conn, MsgTypeWorldState).DataTo(&state))
	require.Equal(t, uint32(1), state.ViewerID)
	require.Equal(t, 1, state.Viewers)
	require.Equal(t, 1, state.RenderDistance)
}

func TestViewerRemovedOnDisconnect(t *testing.T) {
	env := newTestEnv()
	conn, close := NewTestingEnv(t, env.newHandler)
	defer close()

	sendMsg(t, conn, MsgTypePing, 1, nil)
	receiveMsg(t, conn, MsgTypePong)
	require.Equal(t, 1, env.Viewers.Count())

	conn.Close()
	require.Eventually(t, func() bool {
		return env.Viewers.Count() == 0
	}, time.Second*5, time.Millisecond*10)
}

func TestIdleViewerDisconnected(t *testing.T) {
	env := newTestEnv()
	conn, close := NewTestingEnv(t, func() Handler {
		return &ViewerHandler{
			World:                    env.World,
			Viewers:                  env.Viewers,
			ViewerWorldStateInterval: time.Hour,
			ViewerIdleTimeout:        time.Millisecond * 50,
		}
	})
	defer close()

	sendMsg(t, conn, MsgTypePing, 1, nil)
	receiveMsg(t, conn, MsgTypePong)

	require.Eventually(t, func() bool {
		return env.Viewers.Count() == 0
	}, time.Second*5, time.Millisecond*10)
}
