package bus

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

// writeFileAtomic writes data to path by first writing a randomized temp
// file in the same directory, then renaming it into place. Same-directory
// rename is atomic on POSIX filesystems, which is the property every
// writer in this package (and the contention policy in §4.3) depends on:
// readers never observe a partially written packet.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".tmp-%s-%d", filepath.Base(path), rand.Int63()))
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	return nil
}

// randomSuffix returns a short hex string used to break filename
// collisions on delivery (§4.4).
func randomSuffix() string {
	return fmt.Sprintf("%06x", rand.Uint32()&0xffffff)
}
