package http

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aukilabs/jera/featureflag"
	"github.com/aukilabs/jera/models"
	"github.com/aukilabs/jera/raytrace"
	"github.com/aukilabs/jera/terrain"
	"github.com/aukilabs/jera/upload"
	"github.com/aukilabs/jera/voxel"
	"github.com/aukilabs/jera/world"
	"github.com/disintegration/imaging"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	*API
	server *httptest.Server
}

func newTestAPI(t *testing.T, flags ...string) *testAPI {
	w := world.New(world.Config{
		Generator:      terrain.Flat{Height: 1.3, Voxel: voxel.Grass},
		RenderDistance: 1,
		Workers:        2,
	})

	api := &API{
		World:        w,
		Packer:       &upload.Packer{World: w, Interval: time.Hour},
		FeatureFlags: featureflag.New(flags),
	}

	var mux http.ServeMux
	api.Register(&mux)

	server := httptest.NewServer(&mux)
	t.Cleanup(server.Close)

	return &testAPI{API: api, server: server}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *http.Response {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, a.server.URL+path, r)
	require.NoError(t, err)

	res, err := a.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decodeResponse(t *testing.T, res *http.Response, v any) {
	require.NoError(t, json.NewDecoder(res.Body).Decode(v))
}

func (a *testAPI) moveTo(t *testing.T, pos models.Vector) ChunksResponse {
	res := a.do(t, http.MethodPost, "/viewpoint", ViewpointRequest{Position: pos})
	require.Equal(t, http.StatusOK, res.StatusCode)

	var chunks ChunksResponse
	decodeResponse(t, res, &chunks)
	return chunks
}

func TestAPIViewpoint(t *testing.T) {
	api := newTestAPI(t)

	chunks := api.moveTo(t, models.Vector{X: 0.5, Y: 2, Z: 0.5})
	require.Equal(t, voxel.ChunkPos{}, chunks.Center)
	require.Equal(t, 1, chunks.RenderDistance)
	require.Len(t, chunks.Chunks, 27)
	require.Equal(t, voxel.ChunkPos{X: -1, Y: -1, Z: -1}, chunks.Chunks[0])

	t.Run("render distance change", func(t *testing.T) {
		rd := 0
		res := api.do(t, http.MethodPost, "/viewpoint", ViewpointRequest{
			Position:       models.Vector{X: 0.5, Y: 2, Z: 0.5},
			RenderDistance: &rd,
		})
		require.Equal(t, http.StatusOK, res.StatusCode)

		var chunks ChunksResponse
		decodeResponse(t, res, &chunks)
		require.Equal(t, []voxel.ChunkPos{{}}, chunks.Chunks)
	})

	t.Run("chunk listing", func(t *testing.T) {
		res := api.do(t, http.MethodGet, "/chunks", nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		var chunks ChunksResponse
		decodeResponse(t, res, &chunks)
		require.Len(t, chunks.Chunks, 1)
	})

	t.Run("bad body", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, api.server.URL+"/viewpoint", bytes.NewBufferString("{"))
		require.NoError(t, err)

		res, err := api.server.Client().Do(req)
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, http.StatusBadRequest, res.StatusCode)

		var errRes ErrorResponse
		decodeResponse(t, res, &errRes)
		require.Equal(t, ErrTypeBadRequest, errRes.Type)
	})
}

func TestAPIVoxel(t *testing.T) {
	api := newTestAPI(t)

	t.Run("chunk not in memory is air", func(t *testing.T) {
		res := api.do(t, http.MethodGet, "/voxel?x=0.5&y=1.2&z=0.5", nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		var v VoxelResponse
		decodeResponse(t, res, &v)
		require.Equal(t, voxel.Air, v.Voxel)
		require.Empty(t, v.Material)
	})

	t.Run("write on a chunk not in memory is dropped", func(t *testing.T) {
		res := api.do(t, http.MethodPut, "/voxel", SetVoxelRequest{
			Position: models.Vector{X: 0.5, Y: 2.5, Z: 0.5},
			Voxel:    voxel.Stone,
		})
		require.Equal(t, http.StatusOK, res.StatusCode)

		var ack SetVoxelResponse
		decodeResponse(t, res, &ack)
		require.False(t, ack.Written)
	})

	api.moveTo(t, models.Vector{X: 0.5, Y: 2, Z: 0.5})

	t.Run("generated terrain", func(t *testing.T) {
		res := api.do(t, http.MethodGet, "/voxel?x=0.5&y=1.2&z=0.5", nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		var v VoxelResponse
		decodeResponse(t, res, &v)
		require.Equal(t, voxel.Grass, v.Voxel)
		require.Equal(t, voxel.ChunkPos{}, v.Chunk)
		require.NotEmpty(t, v.Material)
	})

	t.Run("write and read", func(t *testing.T) {
		res := api.do(t, http.MethodPut, "/voxel", SetVoxelRequest{
			Position: models.Vector{X: 0.5, Y: 2.5, Z: 0.5},
			Voxel:    voxel.Stone,
		})
		require.Equal(t, http.StatusOK, res.StatusCode)

		var ack SetVoxelResponse
		decodeResponse(t, res, &ack)
		require.True(t, ack.Written)

		res = api.do(t, http.MethodGet, "/voxel?x=0.5&y=2.5&z=0.5", nil)
		var v VoxelResponse
		decodeResponse(t, res, &v)
		require.Equal(t, voxel.Stone, v.Voxel)
	})

	t.Run("unknown material", func(t *testing.T) {
		res := api.do(t, http.MethodPut, "/voxel", SetVoxelRequest{
			Position: models.Vector{X: 0.5, Y: 2.5, Z: 0.5},
			Voxel:    200,
		})
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("invalid query", func(t *testing.T) {
		for _, path := range []string{
			"/voxel?x=a&y=0&z=0",
			"/voxel?x=0&y=0",
		} {
			res := api.do(t, http.MethodGet, path, nil)
			require.Equal(t, http.StatusBadRequest, res.StatusCode, path)

			var errRes ErrorResponse
			decodeResponse(t, res, &errRes)
			require.Equal(t, ErrTypeBadRequest, errRes.Type, path)
		}
	})
}

func TestAPIVoxelEditDisabled(t *testing.T) {
	api := newTestAPI(t, string(featureflag.FlagDisableVoxelEdit))
	api.moveTo(t, models.Vector{X: 0.5, Y: 2, Z: 0.5})

	res := api.do(t, http.MethodPut, "/voxel", SetVoxelRequest{
		Position: models.Vector{X: 0.5, Y: 2.5, Z: 0.5},
		Voxel:    voxel.Stone,
	})
	require.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestAPIRaycast(t *testing.T) {
	api := newTestAPI(t)
	api.moveTo(t, models.Vector{X: 0.5, Y: 2, Z: 0.5})

	for _, method := range []string{"octree", "dda"} {
		t.Run(method, func(t *testing.T) {
			res := api.do(t, http.MethodPost, "/raycast", models.RaycastRequest{
				Origin:    models.Vector{X: 0.5625, Y: 3, Z: 0.5625},
				Direction: models.Vector{Y: -1},
				Method:    method,
			})
			require.Equal(t, http.StatusOK, res.StatusCode)

			var hit models.HitResponse
			decodeResponse(t, res, &hit)
			require.True(t, hit.Hit)
			require.Equal(t, voxel.Grass, hit.Voxel)
			require.InDelta(t, 1.625, hit.Distance, 1e-9)
		})
	}

	t.Run("max distance", func(t *testing.T) {
		res := api.do(t, http.MethodPost, "/raycast", models.RaycastRequest{
			Origin:      models.Vector{X: 0.5625, Y: 3, Z: 0.5625},
			Direction:   models.Vector{Y: -1},
			MaxDistance: 1,
		})
		require.Equal(t, http.StatusOK, res.StatusCode)

		var hit models.HitResponse
		decodeResponse(t, res, &hit)
		require.False(t, hit.Hit)
		require.Nil(t, hit.Position)
	})

	t.Run("degenerate ray", func(t *testing.T) {
		res := api.do(t, http.MethodPost, "/raycast", models.RaycastRequest{
			Origin: models.Vector{X: 0.5, Y: 3, Z: 0.5},
		})
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("origin outside of the world", func(t *testing.T) {
		res := api.do(t, http.MethodPost, "/raycast", models.RaycastRequest{
			Origin:    models.Vector{X: 1e12, Y: 0.5, Z: 0.5},
			Direction: models.Vector{X: 1},
		})
		require.Equal(t, http.StatusBadRequest, res.StatusCode)

		var body ErrorResponse
		decodeResponse(t, res, &body)
		require.Equal(t, raytrace.ErrTypeOriginOutOfRange, body.Type)
	})
}

func TestAPIMaterials(t *testing.T) {
	api := newTestAPI(t)

	t.Run("json", func(t *testing.T) {
		res := api.do(t, http.MethodGet, "/materials", nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		var palette voxel.Palette
		decodeResponse(t, res, &palette)
		require.Len(t, palette, len(voxel.DefaultPalette()))
	})

	t.Run("binary", func(t *testing.T) {
		res := api.do(t, http.MethodGet, "/materials?format=binary", nil)
		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Equal(t, "application/octet-stream", res.Header.Get("Content-Type"))

		b, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		require.Len(t, b, len(voxel.DefaultPalette())*upload.MaterialSize)
	})
}

func TestAPIChunkNodes(t *testing.T) {
	api := newTestAPI(t)
	api.moveTo(t, models.Vector{X: 0.5, Y: 2, Z: 0.5})
	api.Packer.Flush()

	t.Run("resident chunk", func(t *testing.T) {
		res := api.do(t, http.MethodGet, "/chunks/nodes?x=0&y=0&z=0", nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		b, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		require.NotEmpty(t, b)
		require.Zero(t, len(b)%upload.NodeSize)
	})

	t.Run("chunk not packed", func(t *testing.T) {
		res := api.do(t, http.MethodGet, "/chunks/nodes?x=9&y=0&z=0", nil)
		require.Equal(t, http.StatusNotFound, res.StatusCode)
	})

	t.Run("invalid position", func(t *testing.T) {
		res := api.do(t, http.MethodGet, "/chunks/nodes?x=0.5&y=0&z=0", nil)
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})
}

func TestAPIPreview(t *testing.T) {
	api := newTestAPI(t)
	api.moveTo(t, models.Vector{X: 0.5, Y: 2, Z: 0.5})

	t.Run("scaled", func(t *testing.T) {
		res := api.do(t, http.MethodGet, "/preview.png?width=8&height=6&scale=2&method=dda", nil)
		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Equal(t, "image/png", res.Header.Get("Content-Type"))

		img, err := imaging.Decode(res.Body)
		require.NoError(t, err)
		require.Equal(t, 16, img.Bounds().Dx())
		require.Equal(t, 12, img.Bounds().Dy())
	})

	t.Run("invalid size", func(t *testing.T) {
		res := api.do(t, http.MethodGet, "/preview.png?width=4096", nil)
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("camera outside of the world", func(t *testing.T) {
		res := api.do(t, http.MethodGet, "/preview.png?x=1e12&y=0&z=0&width=4&height=4", nil)
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})
}

func TestAPICORS(t *testing.T) {
	api := newTestAPI(t)

	res := api.do(t, http.MethodGet, "/chunks", nil)
	require.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))

	res = api.do(t, http.MethodOptions, "/voxel", nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	require.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
}
