package lensplay

// Resource tracker for detecting GPU resources
// that are never disposed.
//
// Usage: build with -tags leakcheck to enable tracking.
// In production builds (default), all tracker calls are no-ops.
//
// Example:
//
//	renderer := lensplay.NewRenderer(device, frames, orientation)
//	// ... draw frames ...
//	renderer.Dispose()
//	leaks := lensplay.DumpLeaks() // returns all undisposed resources (empty if no leaks)

// ResourceKind identifies the type of tracked GPU resource.
type ResourceKind string

const (
	ResTexture ResourceKind = "Texture"
	ResProgram ResourceKind = "Program"
)

// LeakRecord describes a tracked resource that has not been disposed.
type LeakRecord struct {
	Kind  ResourceKind
	Stack string // call stack at allocation time (when available)
}
