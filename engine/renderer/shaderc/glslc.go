package shaderc

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/anima-cgi/engine/core"
)

// GLSLC compiles by running the glslc executable from the Vulkan SDK.
// Source goes in on stdin and bytecode comes back on stdout, so nothing
// touches the disk.
type GLSLC struct {
	// Path to the executable. Empty looks glslc up on PATH.
	Path string
	// IncludeDirs are passed as -I.
	IncludeDirs []string
	// Optimize adds -O.
	Optimize bool
}

func NewGLSLC() *GLSLC {
	return &GLSLC{Path: "glslc"}
}

func (g *GLSLC) executable() string {
	if g.Path == "" {
		return "glslc"
	}
	return g.Path
}

func (g *GLSLC) args(defines map[string]string, entryPoint string, target Target) []string {
	args := []string{
		"-fshader-stage=" + target.Stage.String(),
		"--target-env=" + target.env(),
		"-x", target.Language.String(),
	}
	if target.Language == LanguageHLSL && entryPoint != "" {
		args = append(args, "-fentry-point="+entryPoint)
	}
	if g.Optimize {
		args = append(args, "-O")
	}
	for _, dir := range g.IncludeDirs {
		args = append(args, "-I", dir)
	}
	for _, name := range sortedDefines(defines) {
		if v := defines[name]; v != "" {
			args = append(args, "-D"+name+"="+v)
		} else {
			args = append(args, "-D"+name)
		}
	}
	return append(args, "-o", "-", "-")
}

func (g *GLSLC) Compile(ctx context.Context, source []byte, defines map[string]string, entryPoint string, target Target) ([]byte, error) {
	if err := checkTarget(entryPoint, target); err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.executable(), g.args(defines, entryPoint, target)...)
	cmd.Stdin = bytes.NewReader(source)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			return nil, core.WrapRecoverable(ctx.Err(), "compiling %s shader", target.Stage)
		case errors.As(err, &exitErr):
			// The compiler ran and rejected the source.
			return nil, core.Recoverablef("%s shader: %s", target.Stage, strings.TrimSpace(stderr.String()))
		default:
			return nil, core.WrapFatal(err, "running %s", g.executable())
		}
	}
	code := stdout.Bytes()
	if err := checkBytecode(code); err != nil {
		return nil, err
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		core.LogWarn("%s shader compiled with warnings: %s", target.Stage, msg)
	}
	return code, nil
}
