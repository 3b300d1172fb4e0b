package sync

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// deniedPrefixes are system locations a peer must never direct the engine to
// watch, no matter what the rest of the path looks like.
var deniedPrefixes = []string{
	"/data",
	"/system",
	"/proc",
	"/sys",
	"/dev",
	"/etc",
}

var (
	ErrEmptyPath     = errors.New("path is empty")
	ErrRelativePath  = errors.New("path must be absolute")
	ErrPathTraversal = errors.New("path contains a parent directory segment")
)

// ValidatePath is the gate every folder path from the peer or the user must
// pass before it is registered or watched. It is a pure function of the path
// string: non-blank, absolute, no `..` segment, not under a denied prefix.
func ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrEmptyPath
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return ErrPathTraversal
		}
	}
	if !filepath.IsAbs(path) {
		return ErrRelativePath
	}
	for _, prefix := range deniedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return fmt.Errorf("path under denied prefix %s", prefix)
		}
	}
	return nil
}
