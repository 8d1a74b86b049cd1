package library

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that escape the media root.
var ErrOutsideRoot = errors.New("path escapes media root")

// ResolveInRoot resolves a requested path (absolute or root-relative)
// to an absolute path and verifies it stays inside the media root after
// following symlinks. This is the gate every client-supplied path goes
// through before a file is opened.
func ResolveInRoot(root, requested string) (string, error) {
	rootAbs, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve media root: %w", err)
	}

	p := requested
	if !filepath.IsAbs(p) {
		p = filepath.Join(rootAbs, p)
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", requested, err)
	}

	if resolved != rootAbs && !strings.HasPrefix(resolved, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, requested)
	}
	return resolved, nil
}
