//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

type Test mg.Namespace

// Packages that build without cgo, a window system or a Vulkan loader.
var headlessPackages = []string{
	"./engine/assets/...",
	"./engine/config/...",
	"./engine/containers/...",
	"./engine/core/...",
	"./engine/math/...",
	"./engine/renderer",
	"./engine/renderer/metadata/...",
	"./engine/renderer/shaderc/...",
	"./engine/renderer/soft/...",
	"./engine/systems/...",
}

// Runs every test in the module.
func (Test) All() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Runs the tests that need no GPU or window.
func (Test) Headless() error {
	_, err := executeCmd("go", withArgs("test"), withArgs(headlessPackages...), withEnv("CGO_ENABLED=0"), withStream())
	return err
}
