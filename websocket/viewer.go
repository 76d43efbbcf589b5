package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/jera/featureflag"
	"github.com/aukilabs/jera/models"
	"github.com/aukilabs/jera/raytrace"
	"github.com/aukilabs/jera/upload"
	"github.com/aukilabs/jera/voxel"
	"github.com/aukilabs/jera/world"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// ViewerHandler streams the world around a viewer and answers its queries.
//
// The world has a single streaming center: the last viewer that moved sets
// it for every viewer.
type ViewerHandler struct {
	// The world streamed to viewers.
	World *world.World

	// The store that contains the connected viewers.
	Viewers *models.ViewerStore

	// Packs chunks edited or streamed by viewers. Optional.
	Packer *upload.Packer

	FeatureFlags featureflag.FeatureFlag

	// The interval between each world state message.
	ViewerWorldStateInterval time.Duration

	// The time a viewer is idle before being disconnected.
	ViewerIdleTimeout time.Duration

	conn   *websocket.Conn
	viewer *models.Viewer
}

func (h *ViewerHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn

	method := raytrace.MethodOctree
	h.FeatureFlags.IfSet(featureflag.FlagDDATraversal, func() {
		method = raytrace.MethodDDA
	})
	h.viewer = h.Viewers.NewViewer(method)
}

func (h *ViewerHandler) HandleDisconnect(err error) {
	if h.viewer != nil {
		h.Viewers.Remove(h.viewer)
	}
}

func (h *ViewerHandler) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	respond.Send(MsgTypePong, msg.RequestID, nil)
	return nil
}

func (h *ViewerHandler) HandleMove(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req MoveRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if req.RenderDistance != nil {
		h.World.SetRenderDistance(*req.RenderDistance)
	}

	pos := req.Position.R3()
	h.viewer.SetPosition(pos)

	if err := h.World.UpdateAround(ctx, pos); err != nil {
		return errors.New("updating world around viewer failed").
			WithTag("viewer_id", h.viewer.ID).
			Wrap(err)
	}
	h.notifyPacker()

	respond.Send(MsgTypeMoveAck, msg.RequestID, MoveAck{
		Center:         voxel.ChunkPosFromWorld(pos),
		Resident:       h.World.ChunkCount(),
		RenderDistance: h.World.RenderDistance(),
	})
	return nil
}

func (h *ViewerHandler) HandleRaycast(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req models.RaycastRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	res, err := models.Raycast(h.World, req, h.viewer.Method())
	if err != nil {
		return errors.New("invalid raycast").
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}

	respond.Send(MsgTypeRaycastResult, msg.RequestID, res)
	return nil
}

func (h *ViewerHandler) HandleGetVoxel(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req VoxelRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	pos := req.Position.R3()
	respond.Send(MsgTypeVoxel, msg.RequestID, VoxelResponse{
		Position: req.Position,
		Chunk:    voxel.ChunkPosFromWorld(pos),
		Voxel:    h.World.Voxel(pos),
	})
	return nil
}

func (h *ViewerHandler) HandleSetVoxel(ctx context.Context, respond ResponseSender, msg Msg) error {
	if h.FeatureFlags.IsSet(featureflag.FlagDisableVoxelEdit) {
		return errors.New("voxel edit is disabled").WithType(ErrTypeBadRequest)
	}

	var req SetVoxelRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if req.Voxel > h.World.Materials().MaxID() {
		return errors.New("unknown voxel material").
			WithTag("voxel", req.Voxel).
			WithType(ErrTypeBadRequest)
	}

	written := h.World.SetVoxel(req.Position.R3(), req.Voxel)
	if written {
		h.notifyPacker()
	}

	respond.Send(MsgTypeSetVoxelAck, msg.RequestID, SetVoxelAck{Written: written})
	return nil
}

func (h *ViewerHandler) SendWorldState(ctx context.Context, respond ResponseSender) error {
	respond.Send(MsgTypeWorldState, 0, WorldState{
		ViewerID:       h.viewer.ID,
		Center:         h.World.Center(),
		Resident:       h.World.ChunkCount(),
		RenderDistance: h.World.RenderDistance(),
		Viewers:        h.Viewers.Count(),
	})
	return nil
}

func (h *ViewerHandler) Receiver() Receiver {
	return func() (Msg, int, error) {
		var b []byte
		if err := websocket.Message.Receive(h.conn, &b); err != nil {
			return Msg{}, 0, err
		}

		var msg Msg
		if err := json.Unmarshal(b, &msg); err != nil {
			return Msg{}, len(b), errors.New("decoding message failed").
				WithType(ErrTypeBadRequest).
				Wrap(err)
		}
		return msg, len(b), nil
	}
}

func (h *ViewerHandler) Sender() Sender {
	return func(msg Msg) (int, error) {
		b, err := json.Marshal(msg)
		if err != nil {
			return 0, errors.New("encoding message failed").Wrap(err)
		}

		if err := websocket.Message.Send(h.conn, string(b)); err != nil {
			return 0, err
		}
		return len(b), nil
	}
}

func (h *ViewerHandler) Close() {
}

func (h *ViewerHandler) WorldStateInterval() time.Duration {
	if h.ViewerWorldStateInterval <= 0 {
		return 5 * time.Second
	}
	return h.ViewerWorldStateInterval
}

func (h *ViewerHandler) IdleTimeout() time.Duration {
	if h.ViewerIdleTimeout <= 0 {
		return 5 * time.Minute
	}
	return h.ViewerIdleTimeout
}

func (h *ViewerHandler) CurrentViewer() *models.Viewer {
	return h.viewer
}

func (h *ViewerHandler) notifyPacker() {
	if h.Packer == nil {
		return
	}
	h.FeatureFlags.IfNotSet(featureflag.FlagDisableChunkUpload, h.Packer.Notify)
}
