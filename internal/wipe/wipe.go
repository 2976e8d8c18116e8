// Package wipe removes files by overwriting their contents before unlinking,
// so deleted vault artifacts resist forensic recovery.
package wipe

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultPasses follows the DoD 5220.22-M short wipe: zeros, ones, random.
const DefaultPasses = 3

const chunkSize = 64 * 1024

type Eraser struct {
	// Passes is the overwrite pass count; values < 1 fall back to DefaultPasses.
	Passes int
}

// Erase overwrites path with the configured passes and then removes it.
// Each pass is synced to disk. A failed pass is retried once with the
// remaining passes; if any pass still cannot complete the file is left in
// place and an error is returned, since the caller's deletion intent must fail
// loudly rather than leave recoverable remnants behind silently.
func (e Eraser) Erase(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("wipe: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("wipe: %s is a directory", path)
	}

	passes := e.Passes
	if passes < 1 {
		passes = DefaultPasses
	}

	size := info.Size()
	for pass := 0; pass < passes; pass++ {
		if err := overwrite(path, size, pass); err != nil {
			// One retry of this and the remaining passes.
			if err = overwrite(path, size, pass); err != nil {
				return fmt.Errorf("wipe: pass %d of %s: %w", pass+1, path, err)
			}
		}
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("wipe: remove %s: %w", path, err)
	}
	return nil
}

// EraseDir wipes every regular file under dir, then removes the tree.
func (e Eraser) EraseDir(dir string) error {
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			return e.Erase(path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.RemoveAll(dir)
}

// overwrite writes one full pass over the file. Pass 0 writes zeros, pass 1
// ones, and later passes pseudorandom data.
func overwrite(path string, size int64, pass int) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	fill := func() error {
		switch pass {
		case 0:
			for i := range buf {
				buf[i] = 0x00
			}
		case 1:
			for i := range buf {
				buf[i] = 0xFF
			}
		default:
			if _, err := rand.Read(buf); err != nil {
				return err
			}
		}
		return nil
	}

	var written int64
	for written < size {
		n := int64(len(buf))
		if size-written < n {
			n = size - written
		}
		if err := fill(); err != nil {
			return err
		}
		if _, err := f.WriteAt(buf[:n], written); err != nil {
			return err
		}
		written += n
	}
	return f.Sync()
}
