// Package s7xxtest holds shared test fixtures for the rest of the module:
// in-memory disk images and a small concurrency helper for the
// multi-writer scenarios spec section 8.3 describes. Named s7xxtest rather
// than testing to avoid shadowing the standard library package every file
// here imports. Grounded on the teacher's testing/images.go, which wraps a
// byte slice with github.com/xaionaro-go/bytesextra to get a fixed-size,
// seekable stream without touching the filesystem.
package s7xxtest

import (
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/rolandfs/s7xxfs/fs"
	"github.com/rolandfs/s7xxfs/layout"
	"github.com/rolandfs/s7xxfs/mkfs"
)

// NewBlankImage formats a fresh image of exactly size bytes in memory and
// returns a seekable stream over it. Like the teacher's LoadDiskImage, the
// stream's size is fixed: writes past size fail rather than growing it.
func NewBlankImage(t *testing.T, size int64, label string) io.ReadWriteSeeker {
	t.Helper()
	buf := make([]byte, size)
	stream := bytesextra.NewReadWriteSeeker(buf)
	err := mkfs.Format(stream, size, label)
	require.Nil(t, err, "formatting test image")
	return stream
}

// MountBlankImage formats and mounts a fresh image of size bytes in one
// step, for tests that only care about the mounted FileSystem.
func MountBlankImage(t *testing.T, size int64, label string) *fs.FileSystem {
	t.Helper()
	stream := NewBlankImage(t, size, label)
	fsys, err := fs.Mount(stream, size, false)
	require.Nil(t, err, "mounting test image")
	return fsys
}

// DefaultTestSize is large enough for layout.MinDiskSize plus a handful of
// spare clusters, which is all most fs/mkfs/fsck tests need.
const DefaultTestSize = layout.MinDiskSize + 8*layout.ClusterSize

// RunConcurrently runs fn(0), fn(1), ..., fn(n-1) on n goroutines and
// blocks until all of them return. Used to exercise the driver's
// concurrent-access guarantees (spec section 5) the way a single-threaded
// table test never would.
func RunConcurrently(n int, fn func(i int)) {
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			fn(i)
		}(i)
	}
	wg.Wait()
}
