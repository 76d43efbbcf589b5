package models

import (
	"slices"
	"sync"
	"time"

	"github.com/aukilabs/jera/raytrace"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
)

// Viewer represents a client streaming the world around its position.
type Viewer struct {
	ID          uint32
	UUID        string
	ConnectedAt time.Time

	mutex    sync.RWMutex
	position r3.Vector
	moved    bool
	method   raytrace.Method
}

func (v *Viewer) SetPosition(p r3.Vector) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.position = p
	v.moved = true
}

// Position returns the last viewer position and whether one was set.
func (v *Viewer) Position() (r3.Vector, bool) {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return v.position, v.moved
}

func (v *Viewer) SetMethod(m raytrace.Method) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.method = m
}

func (v *Viewer) Method() raytrace.Method {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return v.method
}

// ViewerStore tracks the connected viewers.
type ViewerStore struct {
	viewerIDs SequentialIDGenerator

	mutex   sync.RWMutex
	viewers map[uint32]*Viewer
}

// NewViewer creates a viewer and adds it to the store.
func (s *ViewerStore) NewViewer(method raytrace.Method) *Viewer {
	v := &Viewer{
		ID:          s.viewerIDs.New(),
		UUID:        uuid.New().String(),
		ConnectedAt: time.Now(),
		method:      method,
	}

	s.mutex.Lock()
	if s.viewers == nil {
		s.viewers = make(map[uint32]*Viewer)
	}
	s.viewers[v.ID] = v
	s.mutex.Unlock()

	instrumentAddViewer()
	return v
}

// Remove removes the viewer from the store and releases its id.
func (s *ViewerStore) Remove(v *Viewer) {
	s.mutex.Lock()
	_, ok := s.viewers[v.ID]
	delete(s.viewers, v.ID)
	s.mutex.Unlock()

	if ok {
		s.viewerIDs.Reuse(v.ID)
		instrumentRemoveViewer()
	}
}

func (s *ViewerStore) Get(id uint32) (*Viewer, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	v, ok := s.viewers[id]
	return v, ok
}

func (s *ViewerStore) Count() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.viewers)
}

// Viewers returns the connected viewers ordered by id.
func (s *ViewerStore) Viewers() []*Viewer {
	s.mutex.RLock()
	viewers := make([]*Viewer, 0, len(s.viewers))
	for _, v := range s.viewers {
		viewers = append(viewers, v)
	}
	s.mutex.RUnlock()

	slices.SortFunc(viewers, func(a, b *Viewer) int {
		return int(a.ID) - int(b.ID)
	})
	return viewers
}
