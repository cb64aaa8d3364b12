//go:build !windows

package atomicfile

import (
	"os"

	"github.com/google/renameio/v2"
)

// writeFile uses renameio so readers never observe a truncated file.
func writeFile(filename string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(filename, data, perm)
}
