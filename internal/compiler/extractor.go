package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modkit-dev/modkit/internal/artifact"
	"github.com/modkit-dev/modkit/internal/cachekey"
)

// PrebuiltExtractor unpacks vendor-supplied binary bundles from the
// binaries directory into the output directory.
type PrebuiltExtractor struct {
	binariesDir string
}

// NewExtractor creates an extractor reading from binariesDir
func NewExtractor(binariesDir string) *PrebuiltExtractor {
	return &PrebuiltExtractor{binariesDir: binariesDir}
}

// ArchivePath returns the expected archive location for a module
func (e *PrebuiltExtractor) ArchivePath(module string) string {
	return filepath.Join(e.binariesDir, module+".bundle.tar.zst")
}

// ExtractPrebuilt unpacks the target's pre-supplied archive into
// outputDir
func (e *PrebuiltExtractor) ExtractPrebuilt(ctx context.Context, target cachekey.Target, outputDir string, overwrite bool) error {
	bundleDir := artifact.BundlePath(outputDir, target.Module)

	if artifact.Exists(outputDir, target.Module) {
		if !overwrite {
			return fmt.Errorf("bundle for %s already exists (use overwrite to recreate)", target.Module)
		}

		if err := os.RemoveAll(bundleDir); err != nil {
			return fmt.Errorf("failed to remove existing bundle: %w", err)
		}
	}

	f, err := os.Open(e.ArchivePath(target.Module))
	if err != nil {
		return fmt.Errorf("missing prebuilt archive for %s: %w", target.Module, err)
	}
	defer f.Close()

	if err := artifact.Unpack(f, bundleDir); err != nil {
		os.RemoveAll(bundleDir)
		return fmt.Errorf("failed to extract prebuilt bundle for %s: %w", target.Module, err)
	}

	return nil
}
