package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/avolkov/ocr-manager/internal/common"
)

// HashFile computes the hex sha256 content fingerprint of the file at path.
// The file is streamed through the hash, so memory stays bounded regardless
// of file size.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", common.FileAccessError(path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", common.FileAccessError(path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashReader fingerprints an arbitrary byte stream.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
