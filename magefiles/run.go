//go:build mage

package main

import (
	"os"

	"github.com/magefile/mage/mg"
	"github.com/spaghettifunk/anima-cgi/engine/config"
)

type Run mg.Namespace

// Compiles the shaders, then starts the testbed with engine.toml. Shader
// edits under testbed/shaders are picked up while it runs.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("run", ".", "engine.toml"), withStream())
	return err
}

// Starts the testbed on the software driver, with no window or GPU. Stop it
// with Ctrl-C.
func (Run) Headless() error {
	cfg, err := headlessConfig()
	if err != nil {
		return err
	}
	defer os.Remove(cfg)
	_, err = executeCmd("go", withArgs("run", ".", cfg), withStream())
	return err
}

// headlessConfig writes the default configuration with the soft backend to a
// temporary file.
func headlessConfig() (string, error) {
	cfg := config.Default()
	cfg.Renderer.Backend = config.BackendSoft
	data, err := cfg.Marshal()
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "anima-headless-*.toml")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
