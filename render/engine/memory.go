// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package engine provides an in-memory RenderEngine. Surfaces are plain
// bookkeeping entries; their serialized status is JSON.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go.formrender.dev/render/interop"
)

// ErrUnknownSurface returned when a handle names no live surface
var ErrUnknownSurface = errors.New("ErrUnknownSurface")

// ErrCorruptStatusData returned when a blob cannot be deserialized
var ErrCorruptStatusData = errors.New("ErrCorruptStatusData")

// Surface is the state of one in-memory surface.
type Surface struct {
	Handle        interop.SurfaceHandle
	Info          interop.FormInfo
	Configuration map[string]string
	Dynamic       bool
	ClickOnly     bool
	Updates       int
	Restored      bool
}

type statusData struct {
	Info          interop.FormInfo  `json:"info"`
	Configuration map[string]string `json:"configuration,omitempty"`
	Updates       int               `json:"updates"`
}

// Memory is a RenderEngine keeping surfaces in a map.
type Memory struct {
	mu        sync.Mutex
	surfaces  map[interop.SurfaceHandle]*Surface
	failures  map[interop.FormID]error
	created   int
	destroyed int
}

// NewMemory returns an empty engine.
func NewMemory() *Memory {
	return &Memory{
		surfaces: make(map[interop.SurfaceHandle]*Surface),
		failures: make(map[interop.FormID]error),
	}
}

// FailForm makes every following operation on formID return err. A nil err
// clears the failure.
func (m *Memory) FailForm(formID interop.FormID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, formID)
		return
	}
	m.failures[formID] = err
}

func (m *Memory) failureUnsafe(formID interop.FormID) error {
	return m.failures[formID]
}

func (m *Memory) newSurfaceUnsafe(info interop.FormInfo, ctx interop.SurfaceContext) *Surface {
	s := &Surface{
		Handle:        interop.SurfaceHandle(uuid.New().String()),
		Info:          info,
		Configuration: ctx.Configuration.Items(),
		Dynamic:       ctx.IsDynamic,
		ClickOnly:     ctx.HandleClickEvent,
	}
	m.surfaces[s.Handle] = s
	m.created++
	return s
}

func (m *Memory) CreateSurface(info interop.FormInfo, ctx interop.SurfaceContext) (interop.SurfaceHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failureUnsafe(info.FormID); err != nil {
		return "", err
	}
	s := m.newSurfaceUnsafe(info, ctx)
	log.WithField("formID", info.FormID).WithField("handle", s.Handle).Debug("Surface created")
	return s.Handle, nil
}

func (m *Memory) surfaceUnsafe(handle interop.SurfaceHandle) (*Surface, error) {
	s, found := m.surfaces[handle]
	if !found {
		return nil, fmt.Errorf("surface %s: %w", handle, ErrUnknownSurface)
	}
	if err := m.failureUnsafe(s.Info.FormID); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Memory) Update(handle interop.SurfaceHandle, info interop.FormInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.surfaceUnsafe(handle)
	if err != nil {
		return err
	}
	s.Info = info
	s.Updates++
	return nil
}

func (m *Memory) Resize(handle interop.SurfaceHandle, width, height, borderWidth float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.surfaceUnsafe(handle)
	if err != nil {
		return err
	}
	s.Info.Width, s.Info.Height, s.Info.BorderWidth = width, height, borderWidth
	return nil
}

func (m *Memory) UpdateConfiguration(handle interop.SurfaceHandle, config *interop.Configuration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.surfaceUnsafe(handle)
	if err != nil {
		return err
	}
	s.Configuration = config.Items()
	return nil
}

func (m *Memory) Destroy(handle interop.SurfaceHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found := m.surfaces[handle]; !found {
		return fmt.Errorf("surface %s: %w", handle, ErrUnknownSurface)
	}
	delete(m.surfaces, handle)
	m.destroyed++
	return nil
}

func (m *Memory) Serialize(handle interop.SurfaceHandle) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.surfaceUnsafe(handle)
	if err != nil {
		return nil, err
	}
	return json.Marshal(statusData{Info: s.Info, Configuration: s.Configuration, Updates: s.Updates})
}

func (m *Memory) Deserialize(info interop.FormInfo, ctx interop.SurfaceContext, data []byte) (interop.SurfaceHandle, error) {
	var status statusData
	if err := json.Unmarshal(data, &status); err != nil {
		return "", fmt.Errorf("%w: %s", ErrCorruptStatusData, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failureUnsafe(info.FormID); err != nil {
		return "", err
	}
	s := m.newSurfaceUnsafe(info, ctx)
	s.Updates = status.Updates
	s.Restored = true
	return s.Handle, nil
}

// Get returns a copy of the surface.
func (m *Memory) Get(handle interop.SurfaceHandle) (Surface, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, found := m.surfaces[handle]
	if !found {
		return Surface{}, false
	}
	return *s, true
}

// SurfacesOf returns copies of the live surfaces of a form.
func (m *Memory) SurfacesOf(formID interop.FormID) []Surface {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []Surface
	for _, s := range m.surfaces {
		if s.Info.FormID == formID {
			res = append(res, *s)
		}
	}
	return res
}

// Live returns the number of live surfaces.
func (m *Memory) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.surfaces)
}

// Stats returns how many surfaces were created and destroyed.
func (m *Memory) Stats() (created, destroyed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created, m.destroyed
}
