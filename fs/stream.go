package fs

import (
	"io"

	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/layout"
)

// Stream is one open handle onto a file, with its own independent seek
// position. Multiple Streams may share the same underlying InternalFile
// (spec section 4.4.1: reopening an already-open path is a ref-counted
// multiplex, not an error).
type Stream struct {
	fsys *FileSystem
	path string
	file *InternalFile
	pos  int64
}

// Open resolves path to an object (creating a fresh, zero-sized entry if it
// names a free slot) and returns a new handle onto it. The registry mutex
// is held across resolution so two concurrent Opens of the same new name
// can't both decide to allocate a slot.
func (fsys *FileSystem) Open(path string) (*Stream, *errors.DriverError) {
	parsed, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	if parsed.isRoot || parsed.isDir {
		return nil, errors.New(errors.CodeNotAFile).WithMessage("path names a directory, not a file")
	}

	fsys.registryMu.Lock()
	defer fsys.registryMu.Unlock()

	var canonical string
	if parsed.isOS {
		canonical = canonicalOSPath
	} else {
		table := fsys.tables[parsed.kind]
		res, rerr := resolveSlot(table, parsed.ident)
		if rerr != nil {
			return nil, rerr
		}
		canonical = canonicalObjectPath(parsed.kind, res.slot)

		if existing, ok := fsys.registry[canonical]; ok {
			existing.refcount++
			return &Stream{fsys: fsys, path: canonical, file: existing.file}, nil
		}

		if res.isNew {
			if err := fsys.checkWritable(); err != nil {
				return nil, err
			}
			if _, cerr := createEntry(table, parsed.kind, res.slot, res.name); cerr != nil {
				return nil, cerr
			}
		}
		entry, eerr := table.LoadEntry(res.slot)
		if eerr != nil {
			return nil, eerr
		}
		f := &InternalFile{kind: parsed.kind, slot: res.slot, entry: entry, path: canonical}
		fsys.registry[canonical] = &registryEntry{refcount: 1, file: f}
		return &Stream{fsys: fsys, path: canonical, file: f}, nil
	}

	if existing, ok := fsys.registry[canonical]; ok {
		existing.refcount++
		return &Stream{fsys: fsys, path: canonical, file: existing.file}, nil
	}
	f := &InternalFile{kind: layout.KindOS, path: canonical}
	fsys.registry[canonical] = &registryEntry{refcount: 1, file: f}
	return &Stream{fsys: fsys, path: canonical, file: f}, nil
}

// Close decrements this path's reference count and drops it from the
// registry once no handle remains open.
func (s *Stream) Close() *errors.DriverError {
	s.fsys.registryMu.Lock()
	defer s.fsys.registryMu.Unlock()

	entry, ok := s.fsys.registry[s.path]
	if !ok {
		return errors.Errorf(errors.CodeWtf, "close of %q which isn't in the registry", s.path)
	}
	entry.refcount--
	if entry.refcount <= 0 {
		delete(s.fsys.registry, s.path)
	}
	return nil
}

// Read fills p from the current position and advances it, per spec section
// 4.4.3's per-kind dispatch. It fails with CodeEndOfFile rather than
// returning io.EOF, matching this driver's all-errors-are-DriverError
// convention.
func (s *Stream) Read(p []byte) (int, *errors.DriverError) {
	if len(p) == 0 {
		return 0, nil
	}
	data, err := s.fsys.readContent(s.file, s.pos, len(p))
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, errors.New(errors.CodeEndOfFile)
	}
	n := copy(p, data)
	s.pos += int64(n)
	return n, nil
}

// Write writes p at the current position and advances it. Kinds 1-4 never
// grow past their fixed params entry (Ftruncate does not change that), but a
// sample grows its cluster
// chain lazily and "/OS" auto-promotes the media type, both as the write
// crosses into new territory (spec section 4.4.3).
func (s *Stream) Write(p []byte) (int, *errors.DriverError) {
	if err := s.fsys.checkWritable(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := s.fsys.writeContent(s.file, s.pos, p); err != nil {
		return 0, err
	}
	s.pos += int64(len(p))
	return len(p), nil
}

// Seek repositions the stream per the usual io.Seeker whence values.
func (s *Stream) Seek(offset int64, whence int) (int64, *errors.DriverError) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = s.pos
	case io.SeekEnd:
		base = s.fsys.contentSize(s.file)
	default:
		return 0, errors.Errorf(errors.CodeInvalidPath, "unknown whence %d", whence)
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, errors.Errorf(errors.CodeInvalidPath, "seek to negative offset %d", newPos)
	}
	s.pos = newPos
	return newPos, nil
}

// Ftruncate resizes the file behind this handle. Unlike Remove, truncating
// through a handle you already hold open is always allowed — the
// CodeAlreadyOpen guard only applies to removing a path another handle has
// open, per spec section 4.4.5.
func (s *Stream) Ftruncate(newSize int64) *errors.DriverError {
	if err := s.fsys.Ftruncate(s.path, newSize); err != nil {
		return err
	}
	if s.file.kind != layout.KindOS {
		entry, err := s.fsys.tables[s.file.kind].LoadEntry(s.file.slot)
		if err != nil {
			return err
		}
		s.file.entry = entry
	}
	return nil
}

// Path returns the canonical "/{DirName}/{index}" path this handle was
// opened against.
func (s *Stream) Path() string {
	return s.path
}
