//go:build mage

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/shaderc"
)

type Build mg.Namespace

const shaderDir = "testbed/shaders"

var shaderStages = map[string]metadata.ShaderStage{
	".vert": metadata.ShaderStageVertex,
	".frag": metadata.ShaderStageFragment,
	".comp": metadata.ShaderStageCompute,
}

// Compiles every testbed shader to SPIR-V next to its source, which
// catches GLSL errors without starting the engine.
func (Build) Shaders() error {
	return buildShaders()
}

func buildShaders() error {
	entries, err := os.ReadDir(shaderDir)
	if err != nil {
		return err
	}
	compiler := shaderc.NewGLSLC()
	compiler.Optimize = true
	for _, entry := range entries {
		stage, ok := shaderStages[filepath.Ext(entry.Name())]
		if !ok {
			continue
		}
		src := filepath.Join(shaderDir, entry.Name())
		source, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		code, err := compiler.Compile(context.Background(), source, nil, "main", shaderc.Target{Stage: stage})
		if err != nil {
			return fmt.Errorf("%s: %w", src, err)
		}
		out := strings.TrimSuffix(src, filepath.Ext(src)) + "." + stage.String() + ".spv"
		if err := os.WriteFile(out, code, 0o644); err != nil {
			return err
		}
		if mg.Verbose() {
			fmt.Printf("%s -> %s (%d bytes)\n", src, out, len(code))
		}
	}
	return nil
}

// Builds the testbed binary into bin/.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	return sh.RunV("go", "build", "-o", filepath.Join("bin", "anima-cgi"), ".")
}

// Tidies go.mod and vets the module.
func (Build) Tidy() error {
	return goTidy()
}
