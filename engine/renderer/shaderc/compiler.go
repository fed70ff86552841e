// Package shaderc compiles shader source to SPIR-V. Compilation happens
// behind the Compiler interface so callers never know whether the work is
// done in process, in a child process or remotely.
package shaderc

import (
	"context"
	"sort"

	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/metadata"
)

type Language int

const (
	LanguageGLSL Language = iota
	LanguageHLSL
)

func (l Language) String() string {
	if l == LanguageHLSL {
		return "hlsl"
	}
	return "glsl"
}

// DefaultEnv is the Vulkan version the driver requests.
const DefaultEnv = "vulkan1.2"

// Target selects the pipeline stage, the source language and the target
// environment of a compilation.
type Target struct {
	Stage    metadata.ShaderStage
	Language Language
	// Env defaults to DefaultEnv.
	Env string
}

func (t Target) env() string {
	if t.Env == "" {
		return DefaultEnv
	}
	return t.Env
}

type Compiler interface {
	// Compile returns SPIR-V bytecode. Errors in the source are recoverable;
	// a compiler that cannot run at all is fatal.
	Compile(ctx context.Context, source []byte, defines map[string]string, entryPoint string, target Target) ([]byte, error)
}

// sortedDefines orders defines by name so identical requests produce
// identical command lines and cache keys.
func sortedDefines(defines map[string]string) []string {
	names := make([]string, 0, len(defines))
	for k := range defines {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func checkTarget(entryPoint string, target Target) error {
	switch target.Stage {
	case metadata.ShaderStageVertex, metadata.ShaderStageFragment, metadata.ShaderStageCompute:
	default:
		return core.Recoverablef("cannot compile for stage mask %d", uint32(target.Stage))
	}
	// GLSL only has main.
	if target.Language == LanguageGLSL && entryPoint != "" && entryPoint != "main" {
		return core.Recoverablef("glsl entry point must be main, got %q", entryPoint)
	}
	return nil
}

// checkBytecode rejects output that cannot be a SPIR-V module.
func checkBytecode(code []byte) error {
	if len(code) < 20 || len(code)%4 != 0 {
		return core.Fatalf("compiler produced %d bytes, not a SPIR-V module", len(code))
	}
	return nil
}
