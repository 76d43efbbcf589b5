package http

import (
	"image"
	"net/http"
	"strconv"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/jera/camera"
	"github.com/aukilabs/jera/featureflag"
	"github.com/aukilabs/jera/models"
	"github.com/aukilabs/jera/raytrace"
	"github.com/aukilabs/jera/upload"
	"github.com/aukilabs/jera/voxel"
	"github.com/aukilabs/jera/world"
	"github.com/disintegration/imaging"
	"github.com/golang/geo/r3"
)

const (
	ErrTypeBadRequest = "http_bad_request"

	defaultPreviewWidth  = 160
	defaultPreviewHeight = 120
	maxPreviewSize       = 512
	maxPreviewScale      = 8
)

// API serves voxel queries and edits over HTTP.
type API struct {
	World *world.World

	// Packs chunks for renderers. Optional.
	Packer *upload.Packer

	FeatureFlags featureflag.FeatureFlag
}

// Register adds the API routes to mux. Each path also answers CORS
// preflight requests.
func (a *API) Register(mux *http.ServeMux) {
	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{method: http.MethodGet, path: "/voxel", handler: a.handleGetVoxel},
		{method: http.MethodPut, path: "/voxel", handler: a.handleSetVoxel},
		{method: http.MethodPost, path: "/raycast", handler: a.handleRaycast},
		{method: http.MethodPost, path: "/viewpoint", handler: a.handleViewpoint},
		{method: http.MethodGet, path: "/chunks", handler: a.handleChunks},
		{method: http.MethodGet, path: "/chunks/nodes", handler: a.handleChunkNodes},
		{method: http.MethodGet, path: "/materials", handler: a.handleMaterials},
		{method: http.MethodGet, path: "/preview.png", handler: a.handlePreview},
	}

	preflight := make(map[string]bool)
	for _, r := range routes {
		mux.Handle(r.method+" "+r.path, HandleWithCORS(r.handler))

		if !preflight[r.path] {
			mux.Handle(http.MethodOptions+" "+r.path, HandleWithCORS(http.NotFoundHandler()))
			preflight[r.path] = true
		}
	}
}

// VoxelResponse describes the voxel at a world position.
type VoxelResponse struct {
	Position models.Vector  `json:"position"`
	Chunk    voxel.ChunkPos `json:"chunk"`
	Voxel    voxel.ID       `json:"voxel"`
	Material string         `json:"material,omitempty"`
}

type SetVoxelRequest struct {
	Position models.Vector `json:"position"`
	Voxel    voxel.ID      `json:"voxel"`
}

type SetVoxelResponse struct {
	Written bool `json:"written"`
}

type ViewpointRequest struct {
	Position       models.Vector `json:"position"`
	RenderDistance *int          `json:"render_distance,omitempty"`
}

// ChunksResponse lists the resident chunks.
type ChunksResponse struct {
	Center         voxel.ChunkPos   `json:"center"`
	RenderDistance int              `json:"render_distance"`
	Chunks         []voxel.ChunkPos `json:"chunks"`
}

func (a *API) handleGetVoxel(w http.ResponseWriter, r *http.Request) {
	pos, err := queryVector(r, "x", "y", "z")
	if err != nil {
		badRequest(w, err)
		return
	}

	id := a.World.Voxel(pos)
	res := VoxelResponse{
		Position: models.VectorFromR3(pos),
		Chunk:    voxel.ChunkPosFromWorld(pos),
		Voxel:    id,
	}
	if id.IsSolid() {
		res.Material = a.World.Materials().Material(id).Hex()
	}

	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleSetVoxel(w http.ResponseWriter, r *http.Request) {
	if a.FeatureFlags.IsSet(featureflag.FlagDisableVoxelEdit) {
		writeError(w, http.StatusForbidden, errors.New("voxel edit is disabled"))
		return
	}

	var req SetVoxelRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	if req.Voxel > a.World.Materials().MaxID() {
		badRequest(w, errors.New("unknown voxel material").
			WithTag("voxel", req.Voxel).
			WithType(ErrTypeBadRequest))
		return
	}

	written := a.World.SetVoxel(req.Position.R3(), req.Voxel)
	if written {
		a.notifyPacker()
	}

	writeJSON(w, http.StatusOK, SetVoxelResponse{Written: written})
}

func (a *API) handleRaycast(w http.ResponseWriter, r *http.Request) {
	var req models.RaycastRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	res, err := models.Raycast(a.World, req, a.method())
	if err != nil {
		badRequest(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleViewpoint(w http.ResponseWriter, r *http.Request) {
	var req ViewpointRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	if req.RenderDistance != nil {
		a.World.SetRenderDistance(*req.RenderDistance)
	}

	if err := a.World.UpdateAround(r.Context(), req.Position.R3()); err != nil {
		logs.WithTag("position", req.Position.R3().String()).
			Warn(errors.New("updating world around viewpoint failed").Wrap(err))
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	a.notifyPacker()

	a.handleChunks(w, r)
}

func (a *API) handleChunks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ChunksResponse{
		Center:         a.World.Center(),
		RenderDistance: a.World.RenderDistance(),
		Chunks:         a.World.LoadedChunks(),
	})
}

func (a *API) handleChunkNodes(w http.ResponseWriter, r *http.Request) {
	if a.Packer == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	pos, err := queryChunkPos(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	buf, ok := a.Packer.Buffer(pos)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf)
}

func (a *API) handleMaterials(w http.ResponseWriter, r *http.Request) {
	palette := a.World.Materials()

	if r.URL.Query().Get("format") == "binary" {
		buf := upload.PackMaterials(palette)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
		w.WriteHeader(http.StatusOK)
		w.Write(buf)
		return
	}

	writeJSON(w, http.StatusOK, palette)
}

// handlePreview renders the resident chunks to a PNG. The camera defaults to
// a point above the world center facing negative z, pitched down.
func (a *API) handlePreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	origin := a.World.Center().WorldOrigin().Add(r3.Vector{
		X: voxel.ChunkWorldSize / 2,
		Y: voxel.ChunkWorldSize,
		Z: voxel.ChunkWorldSize / 2,
	})
	if q.Has("x") || q.Has("y") || q.Has("z") {
		pos, err := queryVector(r, "x", "y", "z")
		if err != nil {
			badRequest(w, err)
			return
		}
		origin = pos
	}
	if !voxel.InWorld(origin) {
		badRequest(w, errors.New("camera position is outside of the world").
			WithTag("position", origin.String()).
			WithType(ErrTypeBadRequest))
		return
	}

	cam := camera.New(origin)
	yaw, err := queryFloat(r, "yaw", 0)
	if err != nil {
		badRequest(w, err)
		return
	}
	pitch, err := queryFloat(r, "pitch", -30)
	if err != nil {
		badRequest(w, err)
		return
	}
	cam.Rotate(yaw, pitch)

	width, err := queryInt(r, "width", defaultPreviewWidth, 1, maxPreviewSize)
	if err != nil {
		badRequest(w, err)
		return
	}
	height, err := queryInt(r, "height", defaultPreviewHeight, 1, maxPreviewSize)
	if err != nil {
		badRequest(w, err)
		return
	}
	scale, err := queryInt(r, "scale", 1, 1, maxPreviewScale)
	if err != nil {
		badRequest(w, err)
		return
	}

	method := a.method()
	if m := q.Get("method"); m != "" {
		method = raytrace.ParseMethod(m)
	}

	var img image.Image
	a.World.View(func(v world.View) {
		img = camera.Render(v, cam, width, height, method)
	})
	if scale > 1 {
		img = imaging.Resize(img, width*scale, height*scale, imaging.NearestNeighbor)
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		logs.Warn(errors.New("encoding preview failed").Wrap(err))
	}
}

func (a *API) method() raytrace.Method {
	method := raytrace.MethodOctree
	a.FeatureFlags.IfSet(featureflag.FlagDDATraversal, func() {
		method = raytrace.MethodDDA
	})
	return method
}

func (a *API) notifyPacker() {
	if a.Packer == nil {
		return
	}
	a.FeatureFlags.IfNotSet(featureflag.FlagDisableChunkUpload, a.Packer.Notify)
}
