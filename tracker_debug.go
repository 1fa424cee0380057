//go:build leakcheck

package lensplay

import (
	"cmp"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync"
)

type trackedResource struct {
	seq    uint64
	record LeakRecord
}

var (
	trackerMu sync.Mutex
	trackSeq  uint64
	tracked   = make(map[any]trackedResource)
)

// allocationStack formats the callers of the
// allocating function, outside this package
// first since that is where leaks are fixed.
func allocationStack(skip int) string {
	var pcs [12]uintptr
	var inner, outer strings.Builder

	n := runtime.Callers(skip+2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		line := fmt.Sprintf("  %s:%d %s\n", frame.File, frame.Line, frame.Function)

		if strings.HasPrefix(frame.Function, "github.com/zimwip/lensplay.") {
			inner.WriteString(line)
		} else {
			outer.WriteString(line)
		}

		if !more {
			break
		}
	}

	return outer.String() + inner.String()
}

// trackAlloc records a texture or a program
// handed out by the device.
func trackAlloc(kind ResourceKind, res any) {
	if res == nil {
		return
	}

	trackerMu.Lock()
	defer trackerMu.Unlock()

	trackSeq++
	tracked[res] = trackedResource{
		seq:    trackSeq,
		record: LeakRecord{Kind: kind, Stack: allocationStack(2)},
	}
}

// trackFree records the disposal.
func trackFree(res any) {
	if res == nil {
		return
	}

	trackerMu.Lock()
	delete(tracked, res)
	trackerMu.Unlock()
}

// DumpLeaks returns the GPU resources still
// alive, in allocation order.
func DumpLeaks() []LeakRecord {
	trackerMu.Lock()
	resources := make([]trackedResource, 0, len(tracked))
	for _, res := range tracked {
		resources = append(resources, res)
	}
	trackerMu.Unlock()

	slices.SortFunc(resources, func(a, b trackedResource) int {
		return cmp.Compare(a.seq, b.seq)
	})

	leaks := make([]LeakRecord, len(resources))
	for i, res := range resources {
		leaks[i] = res.record
	}

	return leaks
}

// ResetTracker forgets every tracked resource.
func ResetTracker() {
	trackerMu.Lock()
	defer trackerMu.Unlock()

	tracked = make(map[any]trackedResource)
}

// TrackedCount returns the number of GPU
// resources still alive.
func TrackedCount() int {
	trackerMu.Lock()
	defer trackerMu.Unlock()

	return len(tracked)
}
