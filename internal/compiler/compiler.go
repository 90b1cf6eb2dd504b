// Package compiler shells out to the module toolchain to assemble
// library bundles, and extracts pre-supplied binary bundles.
package compiler

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/modkit-dev/modkit/internal/artifact"
	"github.com/modkit-dev/modkit/internal/cachekey"
)

// Commander interface for testing
type Commander interface {
	Run() error
}

// Toolchain invokes the external module compiler
type Toolchain struct {
	path        string
	derivedDir  string
	execCommand func(ctx context.Context, name string, args ...string) Commander
}

// New creates a toolchain wrapper for the compiler at path, using
// derivedDir as its scratch directory.
func New(path, derivedDir string) *Toolchain {
	return &Toolchain{
		path:       path,
		derivedDir: derivedDir,
		execCommand: func(ctx context.Context, name string, args ...string) Commander {
			return exec.CommandContext(ctx, name, args...)
		},
	}
}

// BuildCommandArgs builds the toolchain invocation for one target
func (t *Toolchain) BuildCommandArgs(target cachekey.Target, outputDir string, overwrite bool) []string {
	var cmdArgs []string
	cmdArgs = append(cmdArgs, "assemble", "--module", target.Module)

	for _, platform := range target.Options.Platforms {
		cmdArgs = append(cmdArgs, "--platform", platform)
	}

	cmdArgs = append(cmdArgs, "--flavor", target.Options.Flavor)

	if target.Options.LibraryEvolution {
		cmdArgs = append(cmdArgs, "--library-evolution")
	}

	if target.Options.ToolchainVersion != "" {
		cmdArgs = append(cmdArgs, "--toolchain", target.Options.ToolchainVersion)
	}

	cmdArgs = append(cmdArgs, "--derived-data", t.derivedDir)
	cmdArgs = append(cmdArgs, "--output", artifact.BundlePath(outputDir, target.Module))

	if overwrite {
		cmdArgs = append(cmdArgs, "--overwrite")
	}

	return cmdArgs
}

// Compile assembles the target's bundle into outputDir
func (t *Toolchain) Compile(ctx context.Context, target cachekey.Target, outputDir string, overwrite bool) error {
	if artifact.Exists(outputDir, target.Module) && !overwrite {
		return fmt.Errorf("bundle for %s already exists (use overwrite to recreate)", target.Module)
	}

	cmdArgs := t.BuildCommandArgs(target, outputDir, overwrite)

	c := t.execCommand(ctx, t.path, cmdArgs...)
	if cmd, ok := c.(*exec.Cmd); ok {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := c.Run(); err != nil {
		return fmt.Errorf("toolchain failed for %s: %w", target.Module, err)
	}

	return nil
}
