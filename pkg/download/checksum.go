package download

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// ChecksumSuffix is appended to an object URL or path to address its
// companion checksum resource.
const ChecksumSuffix = ".CHECKSUM"

// ParseChecksum extracts the expected hex digest from companion file
// content: whitespace-separated "<hex-digest> <filename>", where the
// filename label is informational and not validated.
func ParseChecksum(data []byte) (string, error) {
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: empty checksum file", ErrChecksumUnavailable)
	}
	return fields[0], nil
}

// FileDigest computes the hex-encoded SHA-256 digest of the file at
// path, streaming the content.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyFile checks the payload at path against its companion checksum
// file at path+ChecksumSuffix.
//
// Returns ErrChecksumUnavailable (wrapped) when the companion cannot be
// read, ErrChecksumMismatch when the digests disagree, nil on match.
func VerifyFile(path string) error {
	data, err := os.ReadFile(path + ChecksumSuffix)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChecksumUnavailable, err)
	}

	expected, err := ParseChecksum(data)
	if err != nil {
		return err
	}

	actual, err := FileDigest(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChecksumUnavailable, err)
	}

	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expected, actual)
	}
	return nil
}
