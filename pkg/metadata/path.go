package metadata

import (
	"strings"
)

// Path is a validated absolute path inside a tenant namespace.
//
// A valid path starts with '/', contains no ".." sequence and no NUL byte.
// The tenant root is "/". Paths are compared byte-wise; no case folding or
// unicode normalization is applied.
type Path string

// RootPath is the tenant root directory.
const RootPath Path = "/"

// ParsePath validates s and returns it as a Path.
// Returns an InvalidPath error if s is empty, relative, contains ".."
// or contains a NUL byte.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return "", NewInvalidPathError(s, "path is empty")
	}
	if s[0] != '/' {
		return "", NewInvalidPathError(s, "path must be absolute")
	}
	if strings.Contains(s, "..") {
		return "", NewInvalidPathError(s, "path must not contain '..'")
	}
	if strings.ContainsRune(s, 0) {
		return "", NewInvalidPathError(s, "path must not contain NUL")
	}
	// Normalize: trailing slashes are dropped so "/a/" and "/a" name the
	// same node. The root keeps its single slash.
	if s != "/" {
		s = strings.TrimRight(s, "/")
		if s == "" {
			s = "/"
		}
	}
	return Path(s), nil
}

// IsRoot reports whether p is the tenant root.
func (p Path) IsRoot() bool {
	return p == RootPath
}

// Parent returns the parent directory of p.
//
// Parent("/a/b/c") = "/a/b"; Parent("/x") = "/". The root has no parent;
// callers must never ask for it, and Parent panics on the root to make
// that bug loud.
func (p Path) Parent() Path {
	if p.IsRoot() {
		panic("metadata: Parent called on root path")
	}
	s := strings.TrimSuffix(string(p), "/")
	idx := strings.LastIndexByte(s, '/')
	if idx <= 0 {
		return RootPath
	}
	return Path(s[:idx])
}

// Base returns the last component of p. Base("/a/b") = "b".
// The root returns "/".
func (p Path) Base() string {
	if p.IsRoot() {
		return "/"
	}
	s := strings.TrimSuffix(string(p), "/")
	idx := strings.LastIndexByte(s, '/')
	return s[idx+1:]
}

// Join appends a single child name to p.
func (p Path) Join(name string) Path {
	if p.IsRoot() {
		return Path("/" + name)
	}
	return Path(string(p) + "/" + name)
}

// Depth returns the number of components below the root.
// Depth("/") = 0, Depth("/a") = 1, Depth("/a/b") = 2.
func (p Path) Depth() int {
	if p.IsRoot() {
		return 0
	}
	return strings.Count(strings.TrimSuffix(string(p), "/"), "/")
}

// IsDescendantOf reports whether p lies anywhere below dir.
func (p Path) IsDescendantOf(dir Path) bool {
	if p == dir {
		return false
	}
	if dir.IsRoot() {
		return true
	}
	return strings.HasPrefix(string(p), string(dir)+"/")
}

// IsChildOf reports whether p is exactly one component below dir.
func (p Path) IsChildOf(dir Path) bool {
	if p.IsRoot() {
		return false
	}
	return p.Parent() == dir
}

func (p Path) String() string {
	return string(p)
}
