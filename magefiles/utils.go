//go:build mage

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/magefile/mage/mg"
)

// cmdConfig describes one external tool invocation.
type cmdConfig struct {
	args   []string
	env    []string
	stream bool
}

type cmdOption func(*cmdConfig)

func withArgs(args ...string) cmdOption {
	return func(c *cmdConfig) {
		c.args = append(c.args, args...)
	}
}

// withEnv adds KEY=VALUE pairs on top of the current environment.
func withEnv(kv ...string) cmdOption {
	return func(c *cmdConfig) {
		c.env = append(c.env, kv...)
	}
}

// withStream mirrors the tool's output to the terminal as it runs.
func withStream() cmdOption {
	return func(c *cmdConfig) {
		c.stream = true
	}
}

// executeCmd runs name and returns its combined output. Quiet runs print
// the captured output only when the tool fails.
func executeCmd(name string, options ...cmdOption) (string, error) {
	cfg := &cmdConfig{}
	for _, o := range options {
		o(cfg)
	}

	line := strings.TrimSpace(name + " " + strings.Join(cfg.args, " "))
	fmt.Println("$", line)

	cmd := exec.Command(name, cfg.args...)
	if len(cfg.env) > 0 {
		cmd.Env = append(os.Environ(), cfg.env...)
	}

	var out bytes.Buffer
	stream := cfg.stream || mg.Verbose()
	if stream {
		cmd.Stdout = io.MultiWriter(&out, os.Stdout)
		cmd.Stderr = io.MultiWriter(&out, os.Stderr)
	} else {
		cmd.Stdout = &out
		cmd.Stderr = &out
	}

	if err := cmd.Run(); err != nil {
		if !stream {
			fmt.Print(out.String())
		}
		return out.String(), fmt.Errorf("%s: %w", line, err)
	}
	return out.String(), nil
}

func goTidy() error {
	if _, err := executeCmd("go", withArgs("mod", "tidy")); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("vet", "./..."))
	return err
}
