// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package interop

// RenderEngine turns form descriptions into render surfaces. Implementations
// must be safe for concurrent use across different surfaces; calls touching the
// same surface are serialized by the caller.
type RenderEngine interface {
	CreateSurface(info FormInfo, ctx SurfaceContext) (SurfaceHandle, error)
	Update(handle SurfaceHandle, info FormInfo) error
	Resize(handle SurfaceHandle, width, height, borderWidth float64) error
	UpdateConfiguration(handle SurfaceHandle, config *Configuration) error
	Destroy(handle SurfaceHandle) error
	// Serialize captures the surface's visual state as an opaque blob.
	Serialize(handle SurfaceHandle) ([]byte, error)
	// Deserialize rebuilds a surface from a blob produced by Serialize.
	Deserialize(info FormInfo, ctx SurfaceContext, data []byte) (SurfaceHandle, error)
}

// MemorySink receives the process-wide "actively rendering" signal.
type MemorySink interface {
	SetCritical(critical bool)
	IsCritical() bool
}

// FormSupply is the reply channel back to the client that requested a
// lifecycle operation. Every render and stop request is answered exactly once.
type FormSupply interface {
	OnRenderTaskDone(formID FormID, reply Reply)
	OnStopRenderingTaskDone(formID FormID, reply Reply)
	// OnRecycleForm hands the serialized status of a recycling form back to
	// the supply, which later releases the renderer.
	OnRecycleForm(formID FormID, statusData []byte, reply Reply)
	OnRecycleFormFailed(formID FormID, reply Reply)
}

// BundleLookup is the read-only bundle metadata service.
type BundleLookup interface {
	LookupBundle(bundleName string) (BundleInfo, error)
}
