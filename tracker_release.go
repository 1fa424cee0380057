//go:build !leakcheck

package lensplay

// Without the leakcheck tag tracking
// compiles down to nothing.

func trackAlloc(ResourceKind, any) {}

func trackFree(any) {}

// DumpLeaks returns nil.
func DumpLeaks() []LeakRecord { return nil }

// ResetTracker does nothing.
func ResetTracker() {}

// TrackedCount returns 0.
func TrackedCount() int { return 0 }
