// Package fs implements the File engine (spec section 4.4): it presents
// each object, and the "/OS" pseudo-file, as a linear byte stream, and
// implements the full driver operation surface of spec section 6.2
// (mount/unmount/list/ftruncate/rename/remove/open) on top of the
// superblock, fat, and objtable packages.
//
// It is grounded on the teacher's driver/driver.go (BaseDriver's
// create-on-missing OpenFile, stat-then-dispatch Remove/Truncate) and
// driver/file.go (the File wrapper around an object handle), restructured
// around the spec's fixed six-kind dispatch instead of disko's generic
// ObjectHandle interface, since this driver only ever has one concrete
// on-disk format to support.
package fs

import (
	"io"
	"sync"

	"github.com/rolandfs/s7xxfs/diskio"
	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/fat"
	"github.com/rolandfs/s7xxfs/layout"
	"github.com/rolandfs/s7xxfs/objtable"
	"github.com/rolandfs/s7xxfs/superblock"
)

// FileSystem is a mounted S-7XX image. The zero value is not usable; create
// one with Mount.
//
// Spec section 5 requires one mutex to serialize the disk stream's seek
// pointer, the in-memory FAT, the in-memory TOC, the header's media-type
// byte, and the open-file registry. diskio.Disk already owns a mutex for
// the first three; since sync.Mutex isn't reentrant, reusing that same
// mutex from here would deadlock the moment a registry operation also
// needs a ReadAt/WriteAt (which re-locks it). registryMu is a second
// mutex scoped to exactly the two things diskio.Disk doesn't cover: the
// registry and the media-type byte. Code holding registryMu (Open,
// setMediaType) may go on to take the disk mutex; nothing holding the disk
// mutex ever takes registryMu, so the two are always acquired in the same
// order and cannot deadlock.
type FileSystem struct {
	disk *diskio.Disk

	registryMu sync.Mutex
	mediaType  layout.MediaType
	toc        superblock.Toc
	fatTable   *fat.Table
	tables     map[layout.Kind]*objtable.Table

	registry map[string]*registryEntry

	readOnly bool
}

type registryEntry struct {
	refcount int
	file     *InternalFile
}

// InternalFile is the cached state behind one open path: which kind/slot it
// names and its last-known list entry, per spec section 4.4.
type InternalFile struct {
	kind  layout.Kind
	slot  int // meaningless for KindOS
	entry objtable.Entry
	path  string
}

// Mount loads the header, TOC, FAT, and all five object tables from stream,
// which must be at least layout.MinDiskSize bytes. readOnly disables every
// mutating operation.
func Mount(stream io.ReadWriteSeeker, size int64, readOnly bool) (*FileSystem, *errors.DriverError) {
	if size < layout.MinDiskSize {
		return nil, errors.Errorf(errors.CodeDiskTooSmall, "image is %d bytes, need at least %d", size, layout.MinDiskSize)
	}

	disk := diskio.New(stream, size)

	header, err := superblock.ReadHeader(disk)
	if err != nil {
		return nil, err
	}

	toc, err := superblock.ReadToc(disk)
	if err != nil {
		return nil, err
	}

	fatTable, err := fat.Load(disk)
	if err != nil {
		return nil, err
	}

	fsys := &FileSystem{
		disk:      disk,
		mediaType: header.MediaType,
		toc:       toc,
		fatTable:  fatTable,
		tables:    make(map[layout.Kind]*objtable.Table, 5),
		registry:  make(map[string]*registryEntry),
		readOnly:  readOnly,
	}

	for _, kind := range layout.AllObjectKinds {
		table, err := objtable.Load(disk, kind, &fsys.toc)
		if err != nil {
			return nil, err
		}
		fsys.tables[kind] = table
	}

	return fsys, nil
}

// GetTypeName identifies this driver to the enclosing VFS.
func (fsys *FileSystem) GetTypeName() string {
	return "S7XX"
}

// GetOpenFileCount returns the number of currently-open registry entries
// (not the sum of their reference counts).
func (fsys *FileSystem) GetOpenFileCount() uint {
	fsys.registryMu.Lock()
	defer fsys.registryMu.Unlock()
	return uint(len(fsys.registry))
}

// CanUnmount reports whether the open-file registry is empty.
func (fsys *FileSystem) CanUnmount() bool {
	fsys.registryMu.Lock()
	defer fsys.registryMu.Unlock()
	return len(fsys.registry) == 0
}

// Unmount releases the filesystem's resources. It fails if any file is
// still open.
func (fsys *FileSystem) Unmount() *errors.DriverError {
	if !fsys.CanUnmount() {
		return errors.NewWithMessage(errors.CodeAlreadyOpen, "cannot unmount: files are still open")
	}
	return nil
}

func (fsys *FileSystem) checkWritable() *errors.DriverError {
	if fsys.readOnly {
		return errors.New(errors.CodeUnsupportedOperation).WithMessage("filesystem is mounted read-only")
	}
	return nil
}

// Mkdir always fails: the S-7XX layout has a fixed two-level pseudo-
// directory structure and no support for user-created directories.
func (fsys *FileSystem) Mkdir(path string) *errors.DriverError {
	return errors.New(errors.CodeUnsupportedOperation).WithMessage("S-7XX has no directory hierarchy")
}

// MediaType returns the header's current media-type byte.
func (fsys *FileSystem) MediaType() layout.MediaType {
	fsys.registryMu.Lock()
	defer fsys.registryMu.Unlock()
	return fsys.mediaType
}

// setMediaType writes m to the header and updates the cached value. Callers
// must not already hold registryMu.
func (fsys *FileSystem) setMediaType(m layout.MediaType) *errors.DriverError {
	fsys.registryMu.Lock()
	defer fsys.registryMu.Unlock()
	if err := superblock.WriteMediaType(fsys.disk, m); err != nil {
		return err
	}
	fsys.mediaType = m
	return nil
}
