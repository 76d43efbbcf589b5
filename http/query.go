package http

import (
	"net/http"
	"strconv"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/jera/voxel"
	"github.com/golang/geo/r3"
)

func queryFloat(r *http.Request, key string, fallback float64) (float64, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return fallback, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("invalid query parameter").
			WithTag("key", key).
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}
	return f, nil
}

// queryInt parses an integer parameter and checks it is within [lo, hi].
func queryInt(r *http.Request, key string, fallback, lo, hi int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid query parameter").
			WithTag("key", key).
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}

	if n < lo || n > hi {
		return 0, errors.Newf("query parameter %q out of range [%d, %d]", key, lo, hi).
			WithTag("value", n).
			WithType(ErrTypeBadRequest)
	}
	return n, nil
}

// queryVector parses three required float parameters.
func queryVector(r *http.Request, x, y, z string) (r3.Vector, error) {
	var v r3.Vector

	for _, c := range []struct {
		key string
		dst *float64
	}{
		{key: x, dst: &v.X},
		{key: y, dst: &v.Y},
		{key: z, dst: &v.Z},
	} {
		if !r.URL.Query().Has(c.key) {
			return r3.Vector{}, errors.New("missing query parameter").
				WithTag("key", c.key).
				WithType(ErrTypeBadRequest)
		}

		f, err := queryFloat(r, c.key, 0)
		if err != nil {
			return r3.Vector{}, err
		}
		*c.dst = f
	}

	return v, nil
}

func queryChunkPos(r *http.Request) (voxel.ChunkPos, error) {
	var pos voxel.ChunkPos

	for _, c := range []struct {
		key string
		dst *int32
	}{
		{key: "x", dst: &pos.X},
		{key: "y", dst: &pos.Y},
		{key: "z", dst: &pos.Z},
	} {
		n, err := strconv.ParseInt(r.URL.Query().Get(c.key), 10, 32)
		if err != nil {
			return voxel.ChunkPos{}, errors.New("invalid chunk coordinate").
				WithTag("key", c.key).
				WithType(ErrTypeBadRequest).
				Wrap(err)
		}
		*c.dst = int32(n)
	}

	return pos, nil
}
