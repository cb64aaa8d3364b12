package checksum

import (
	"encoding/hex"
	"hash"
	"io"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/minio/highwayhash"
)

const bufferSize = 64 * 1024 // 64KB buffer

// key is fixed so hashes stay comparable across runs and machines.
var key = []byte("srcsync-baseline-content-key-v01")

func newHash() hash.Hash64 {
	h, err := highwayhash.New64(key)
	if err != nil {
		// Only fails for a key that is not 32 bytes.
		panic(err)
	}
	return h
}

// File hashes the contents of a file and returns the hex encoded digest.
func File(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", errors.Wrap(err, "open file")
	}
	defer file.Close()

	return Reader(file)
}

// Reader hashes everything readable from r.
func Reader(r io.Reader) (string, error) {
	h := newHash()
	buffer := make([]byte, bufferSize)

	for {
		n, err := r.Read(buffer)
		if n > 0 {
			if _, err := h.Write(buffer[:n]); err != nil {
				return "", errors.Wrap(err, "write to hash")
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, "read")
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Bytes hashes an in-memory buffer.
func Bytes(data []byte) string {
	h := newHash()
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Directory hashes the sorted names of a directory's entries, so adding or removing an entry
// changes the hash while content edits below it do not.
func Directory(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	h := newHash()
	for _, n := range sorted {
		_, _ = h.Write([]byte(n))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Equal compares two digests.
func Equal(a, b string) bool {
	return a == b
}
