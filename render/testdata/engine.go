// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testdata

import (
	"github.com/stretchr/testify/mock"

	"go.formrender.dev/render/interop"
)

// MockEngine is a testify mock of interop.RenderEngine.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) CreateSurface(info interop.FormInfo, ctx interop.SurfaceContext) (interop.SurfaceHandle, error) {
	args := m.Called(info, ctx)
	return args.Get(0).(interop.SurfaceHandle), args.Error(1)
}

func (m *MockEngine) Update(handle interop.SurfaceHandle, info interop.FormInfo) error {
	return m.Called(handle, info).Error(0)
}

func (m *MockEngine) Resize(handle interop.SurfaceHandle, width, height, borderWidth float64) error {
	return m.Called(handle, width, height, borderWidth).Error(0)
}

func (m *MockEngine) UpdateConfiguration(handle interop.SurfaceHandle, config *interop.Configuration) error {
	return m.Called(handle, config).Error(0)
}

func (m *MockEngine) Destroy(handle interop.SurfaceHandle) error {
	return m.Called(handle).Error(0)
}

func (m *MockEngine) Serialize(handle interop.SurfaceHandle) ([]byte, error) {
	args := m.Called(handle)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockEngine) Deserialize(info interop.FormInfo, ctx interop.SurfaceContext, data []byte) (interop.SurfaceHandle, error) {
	args := m.Called(info, ctx, data)
	return args.Get(0).(interop.SurfaceHandle), args.Error(1)
}
