package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modkit-dev/modkit/internal/cachekey"
)

// VersionFile records the cache key a colocated bundle was produced
// from. It lets a later run detect that a locally-present bundle matches
// the current pin and configuration state without contacting storage.
type VersionFile struct {
	Key      cachekey.Key `json:"key"`
	Checksum string       `json:"checksum"`
}

// VersionFilePath returns the version file path for a module's bundle
func VersionFilePath(outputDir, module string) string {
	return filepath.Join(outputDir, "."+module+".version")
}

// writeVersionFile persists the version record next to the bundle
func writeVersionFile(outputDir string, key cachekey.Key, checksum cachekey.Checksum) error {
	data, err := json.MarshalIndent(VersionFile{Key: key, Checksum: checksum.String()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize version file: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	path := VersionFilePath(outputDir, key.ModuleName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write version file: %w", err)
	}

	return nil
}

// readVersionFile loads a module's version record, if present
func readVersionFile(outputDir, module string) (*VersionFile, error) {
	data, err := os.ReadFile(VersionFilePath(outputDir, module))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	var vf VersionFile
	if err := json.Unmarshal(data, &vf); err != nil {
		return nil, fmt.Errorf("corrupt version file for %s: %w", module, err)
	}

	return &vf, nil
}
