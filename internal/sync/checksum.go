package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Checksum streams r through SHA-256 and returns the lowercase hex digest.
// The reader is never buffered whole; a read failure returns an error and no
// partial digest.
func Checksum(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("checksum read: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumFile computes the content digest of the file at path.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return Checksum(f)
}
