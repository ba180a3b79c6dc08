//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const shaderDir = "shaders"

var Default = Build

// Shaders compiles every GLSL stage in shaders/ to SPIR-V next to its source.
func Shaders() error {
	var sources []string
	for _, ext := range []string{"*.vert", "*.frag"} {
		matches, err := filepath.Glob(filepath.Join(shaderDir, ext))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no shader sources in %s", shaderDir)
	}

	for _, src := range sources {
		out := src + ".spv"
		rebuild, err := needsRebuild(src, out)
		if err != nil {
			return err
		}
		if !rebuild {
			continue
		}
		if err := sh.RunV("glslc", src, "-o", out); err != nil {
			return fmt.Errorf("compile %s: %w", src, err)
		}
	}
	return nil
}

func needsRebuild(src, out string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	outInfo, err := os.Stat(out)
	if os.IsNotExist(err) {
		return true, nil
	} else if err != nil {
		return false, err
	}
	return srcInfo.ModTime().After(outInfo.ModTime()), nil
}

// Build compiles the shaders and the renderer binary.
func Build() error {
	mg.Deps(Shaders)
	return sh.RunV("go", "build", "-o", "bin/renderer", "./cmd/renderer")
}

// Test runs the unit tests. None of them need a GPU.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Headless draws a few frames on the software device.
func Headless() error {
	mg.Deps(Shaders)
	return sh.RunV("go", "run", "./cmd/renderer", "-headless", "-frames", "3")
}
