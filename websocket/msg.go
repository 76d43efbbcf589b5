package websocket

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/jera/models"
	"github.com/aukilabs/jera/voxel"
	"github.com/segmentio/encoding/json"
)

const (
	// Errors of this type are reported to the viewer with an error message
	// and keep the connection open.
	ErrTypeBadRequest = "websocket_bad_request"
)

// MsgType identifies the payload of a message.
type MsgType string

const (
	MsgTypePing          MsgType = "ping"
	MsgTypePong          MsgType = "pong"
	MsgTypeMove          MsgType = "move"
	MsgTypeMoveAck       MsgType = "move_ack"
	MsgTypeRaycast       MsgType = "raycast"
	MsgTypeRaycastResult MsgType = "raycast_result"
	MsgTypeGetVoxel      MsgType = "get_voxel"
	MsgTypeVoxel         MsgType = "voxel"
	MsgTypeSetVoxel      MsgType = "set_voxel"
	MsgTypeSetVoxelAck   MsgType = "set_voxel_ack"
	MsgTypeWorldState    MsgType = "world_state"
	MsgTypeError         MsgType = "error"
)

// Msg is the envelope of every message exchanged with a viewer.
type Msg struct {
	Type      MsgType         `json:"type"`
	RequestID uint32          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMsg creates a message with the given payload.
func NewMsg(t MsgType, requestID uint32, data any) (Msg, error) {
	msg := Msg{
		Type:      t,
		RequestID: requestID,
	}
	if data == nil {
		return msg, nil
	}

	b, err := json.Marshal(data)
	if err != nil {
		return Msg{}, errors.New("encoding message data failed").
			WithTag("msg_type", t).
			Wrap(err)
	}
	msg.Data = b
	return msg, nil
}

// DataTo decodes the message payload into v.
func (m Msg) DataTo(v any) error {
	if len(m.Data) == 0 {
		return errors.New("message has no data").
			WithTag("msg_type", m.Type).
			WithType(ErrTypeBadRequest)
	}

	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.New("decoding message data failed").
			WithTag("msg_type", m.Type).
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}
	return nil
}

func (m Msg) TypeString() string {
	if m.Type == "" {
		return "unknown"
	}
	return string(m.Type)
}

// MoveRequest sets the viewer position and streams the world around it.
type MoveRequest struct {
	Position       models.Vector `json:"position"`
	RenderDistance *int          `json:"render_distance,omitempty"`
}

type MoveAck struct {
	Center         voxel.ChunkPos `json:"center"`
	Resident       int            `json:"resident"`
	RenderDistance int            `json:"render_distance"`
}

type VoxelRequest struct {
	Position models.Vector `json:"position"`
}

type VoxelResponse struct {
	Position models.Vector  `json:"position"`
	Chunk    voxel.ChunkPos `json:"chunk"`
	Voxel    voxel.ID       `json:"voxel"`
}

type SetVoxelRequest struct {
	Position models.Vector `json:"position"`
	Voxel    voxel.ID      `json:"voxel"`
}

type SetVoxelAck struct {
	Written bool `json:"written"`
}

// WorldState is pushed to viewers at a regular interval.
type WorldState struct {
	ViewerID       uint32         `json:"viewer_id"`
	Center         voxel.ChunkPos `json:"center"`
	Resident       int            `json:"resident"`
	RenderDistance int            `json:"render_distance"`
	Viewers        int            `json:"viewers"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// Receiver receives a message and returns the number of bytes read.
type Receiver func() (Msg, int, error)

// Sender sends a message and returns the number of bytes written.
type Sender func(Msg) (int, error)

// ResponseSender sends responses to the connected viewer.
type ResponseSender interface {
	Send(t MsgType, requestID uint32, data any)
}
