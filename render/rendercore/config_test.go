// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package rendercore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.formrender.dev/render/interop"
)

const waitFor = 2 * time.Second

func colorMode(mode string) *interop.Configuration {
	return interop.NewConfiguration(map[string]string{interop.ConfigColorMode: mode})
}

func waitApplied(t *testing.T, m *Manager, n int64) {
	require.Eventually(t, func() bool { return m.appliedConfigs.Load() == n }, waitFor, 5*time.Millisecond)
}

func TestConfigurationAppliedImmediatelyFirstTime(t *testing.T) {
	m, eng, supply := newTestManager(t, NewManagerBuilder().SetQuietInterval(time.Hour))
	require.NoError(t, m.RenderForm(form(1), params("U1", "E1"), supply))

	m.OnConfigurationUpdated(colorMode("dark"))
	waitApplied(t, m, 1)

	assert.Equal(t, "dark", m.Configuration().ColorMode())
	surfaces := eng.SurfacesOf(1)
	require.Len(t, surfaces, 1)
	assert.Equal(t, "dark", surfaces[0].Configuration[interop.ConfigColorMode])
}

func TestConfigurationDebounced(t *testing.T) {
	m, _, _ := newTestManager(t, NewManagerBuilder().SetQuietInterval(500*time.Millisecond))

	m.OnConfigurationUpdated(colorMode("light"))
	waitApplied(t, m, 1)

	m.OnConfigurationUpdated(interop.NewConfiguration(map[string]string{
		interop.ConfigColorMode: "dark",
		interop.ConfigFontScale: "1.5",
	}))
	time.Sleep(200 * time.Millisecond)
	assert.EqualValues(t, 1, m.appliedConfigs.Load(), "an update inside the quiet window waits")

	m.OnConfigurationUpdated(interop.NewConfiguration(map[string]string{interop.ConfigLanguage: "en"}))
	waitApplied(t, m, 2)

	config := m.Configuration()
	assert.Equal(t, "dark", config.ColorMode())
	assert.Equal(t, "en", config.Language())
	assert.Equal(t, 1.5, config.FontScale())

	time.Sleep(600 * time.Millisecond)
	assert.EqualValues(t, 2, m.appliedConfigs.Load(), "both deferred updates are applied together")
}

func TestConfigurationUnchangedIsSkipped(t *testing.T) {
	m, _, _ := newTestManager(t, NewManagerBuilder().SetQuietInterval(10*time.Millisecond))

	m.OnConfigurationUpdated(colorMode("dark"))
	waitApplied(t, m, 1)

	m.OnConfigurationUpdated(colorMode("dark"))
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, m.appliedConfigs.Load())
}

func TestConfigurationInheritedByNewRecords(t *testing.T) {
	m, eng, supply := newTestManager(t, NewManagerBuilder().SetConfiguration(colorMode("dark")))

	require.NoError(t, m.RenderForm(form(1), params("U1", "E1"), supply))
	surfaces := eng.SurfacesOf(1)
	require.Len(t, surfaces, 1)
	assert.Equal(t, "dark", surfaces[0].Configuration[interop.ConfigColorMode])
}

func TestConfigurationCachedWhileScreenOff(t *testing.T) {
	m, _, _ := newTestManager(t, NewManagerBuilder().SetQuietInterval(10*time.Millisecond))

	m.SetScreenOn(false)
	m.OnConfigurationUpdated(colorMode("dark"))
	m.OnConfigurationUpdated(interop.NewConfiguration(map[string]string{interop.ConfigLanguage: "en"}))
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 0, m.appliedConfigs.Load())

	m.RunCachedConfigurationUpdated()
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, m.appliedConfigs.Load(), "no replay while the screen is off")

	m.SetScreenOn(true)
	waitApplied(t, m, 1)
	assert.Equal(t, "dark", m.Configuration().ColorMode())
	assert.Equal(t, "en", m.Configuration().Language())
}

func TestCachedConfigurationReplayedOnce(t *testing.T) {
	m, _, _ := newTestManager(t, NewManagerBuilder().SetQuietInterval(10*time.Millisecond))

	m.SetScreenOn(false)
	m.OnConfigurationUpdated(colorMode("dark"))

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		assert.NoError(t, m.OnUnlock())
	}()
	go func() {
		defer wg.Done()
		m.SetScreenOn(true)
	}()
	go func() {
		defer wg.Done()
		m.RunCachedConfigurationUpdated()
	}()
	wg.Wait()

	waitApplied(t, m, 1)
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, m.appliedConfigs.Load())
	assert.Nil(t, m.cachedConfig)
}

func TestConfigurationDroppedAfterShutdown(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	require.NoError(t, m.Shutdown())

	m.OnConfigurationUpdated(colorMode("dark"))
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, m.appliedConfigs.Load())
	assert.Empty(t, m.Configuration().ColorMode())
}

func TestDispatchConfiguration(t *testing.T) {
	m, _, _ := newTestManager(t, nil)

	resp := m.Dispatch(&interop.Request{Op: interop.OpSetScreenOn, ScreenOn: false})
	assert.Equal(t, interop.ResultOK, resp.Code)
	assert.False(t, m.ScreenOn())

	resp = m.Dispatch(&interop.Request{
		Op:            interop.OpConfigurationUpdated,
		Configuration: map[string]string{interop.ConfigColorMode: "dark"},
	})
	assert.Equal(t, interop.ResultOK, resp.Code)

	m.Dispatch(&interop.Request{Op: interop.OpSetScreenOn, ScreenOn: true})
	waitApplied(t, m, 1)
	assert.Equal(t, "dark", m.Configuration().ColorMode())
}
