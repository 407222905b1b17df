package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// WriteJSON writes v to path through a temp file in the same directory and
// a rename, so readers never see a partial document. Temp files end in
// .tmp and are ignored by Pending.
func WriteJSON(path string, v any) error {
	dir := filepath.Dir(path)
	prefix := "." + strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + "-*.tmp"
	tmp, err := os.CreateTemp(dir, prefix)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	tmp = nil

	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
