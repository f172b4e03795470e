// Package filestore gives every on-disk record the agent keeps (process
// registry, autoload entries, the critical-error mailbox) one atomic
// read-modify-write primitive, so a crash mid-write never leaves a
// half-written JSON file for the next process to choke on.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteAtomic writes data to path by writing to a sibling temp file and
// renaming it into place, so readers only ever see a complete file.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// ReadOrDefault reads path, returning def with ok=false if the file does
// not exist yet, so first-run callers don't need their own os.Stat check.
func ReadOrDefault(path string, def []byte) (data []byte, ok bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return def, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, true, nil
}

// Update reads path (or starts from nil if it doesn't exist yet), passes
// the bytes to mutate, and atomically persists whatever it returns.
func Update(path string, mutate func(current []byte, existed bool) ([]byte, error)) error {
	current, existed, err := ReadOrDefault(path, nil)
	if err != nil {
		return err
	}
	next, err := mutate(current, existed)
	if err != nil {
		return err
	}
	return WriteAtomic(path, next, 0o600)
}
