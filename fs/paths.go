package fs

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/layout"
)

var identifierPattern = regexp.MustCompile(`^(\d+)(?:-(.*))?$`)

// identifier is the parsed form of the last path component under a kind's
// directory, e.g. "5-Foo" or "Foo" or "5-" or "5".
type identifier struct {
	hasIndex bool
	index    int
	name     string
}

func parseIdentifier(s string) identifier {
	if m := identifierPattern.FindStringSubmatch(s); m != nil {
		idx, _ := strconv.Atoi(m[1])
		return identifier{hasIndex: true, index: idx, name: m[2]}
	}
	return identifier{name: s}
}

// splitPath normalizes and splits an absolute POSIX-style path into its
// non-empty components. "" and "/" both denote the root and split to an
// empty slice.
func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

var dirNameToKind = map[string]layout.Kind{
	"Volumes":      layout.KindVolume,
	"Performances": layout.KindPerformance,
	"Patches":      layout.KindPatch,
	"Partials":     layout.KindPartial,
	"Samples":      layout.KindSample,
}

func kindForDirName(name string) (layout.Kind, bool) {
	if name == "OS" {
		return layout.KindOS, true
	}
	k, ok := dirNameToKind[name]
	return k, ok
}

// parsedPath is the result of resolving an absolute path against the fixed
// two-level pseudo-directory layout.
type parsedPath struct {
	isRoot bool
	kind   layout.Kind // valid when !isRoot
	isOS   bool         // true for "/OS" exactly (len == 1)
	isDir  bool         // true for "/{DirName}" exactly (len == 1, not OS)
	ident  identifier   // valid when len == 2
}

func parsePath(path string) (parsedPath, *errors.DriverError) {
	parts := splitPath(path)
	switch len(parts) {
	case 0:
		return parsedPath{isRoot: true}, nil
	case 1:
		kind, ok := kindForDirName(parts[0])
		if !ok {
			return parsedPath{}, errors.Errorf(errors.CodeNotFound, "no such directory %q", parts[0])
		}
		if kind == layout.KindOS {
			return parsedPath{kind: kind, isOS: true}, nil
		}
		return parsedPath{kind: kind, isDir: true}, nil
	case 2:
		kind, ok := kindForDirName(parts[0])
		if !ok || kind == layout.KindOS {
			return parsedPath{}, errors.Errorf(errors.CodeNotFound, "no such directory %q", parts[0])
		}
		return parsedPath{kind: kind, ident: parseIdentifier(parts[1])}, nil
	default:
		return parsedPath{}, errors.Errorf(errors.CodeInvalidPath, "path %q has too many components", path)
	}
}

// canonicalObjectPath renders the canonical registry key for an object,
// "/{DirName}/{index}".
func canonicalObjectPath(kind layout.Kind, slot int) string {
	return "/" + kind.DirName() + "/" + strconv.Itoa(slot)
}

// canonicalOSPath is the registry key for the OS pseudo-file.
const canonicalOSPath = "/OS"
