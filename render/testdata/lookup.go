// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testdata

import (
	"sync"

	"github.com/stretchr/testify/mock"

	"go.formrender.dev/render/interop"
)

// MockBundleLookup is a testify mock of interop.BundleLookup.
type MockBundleLookup struct {
	mock.Mock
}

func (m *MockBundleLookup) LookupBundle(bundleName string) (interop.BundleInfo, error) {
	args := m.Called(bundleName)
	return args.Get(0).(interop.BundleInfo), args.Error(1)
}

// MockMemorySink is a testify mock of interop.MemorySink that also keeps the
// flag, so IsCritical answers without expectations.
type MockMemorySink struct {
	mock.Mock
	mu       sync.Mutex
	critical bool
}

func (m *MockMemorySink) SetCritical(critical bool) {
	m.Called(critical)
	m.mu.Lock()
	m.critical = critical
	m.mu.Unlock()
}

func (m *MockMemorySink) IsCritical() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.critical
}
