package engine

import (
	"github.com/spaghettifunk/anima-cgi/engine/config"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/driver"
	"github.com/spaghettifunk/anima-cgi/engine/renderer/shaderc"
)

// Options controls how an Engine is built.
type Options struct {
	// ConfigPath is read when Config is nil. Empty uses config.Default.
	ConfigPath string
	Config     *config.Config
	// WatchConfig reloads ConfigPath while running.
	WatchConfig bool
	// Driver overrides the configured backend. No window is created.
	Driver driver.Driver
	// Compiler defaults to a cached glslc.
	Compiler shaderc.Compiler
	// AssetsDir holds shader sources. When set they are indexed at
	// Initialize and watched while running.
	AssetsDir string
	// MaxFrames stops Run after that many frames. Zero runs until the
	// window closes or the context is cancelled.
	MaxFrames uint64
	// Workers sizes the job system. Zero uses one per CPU minus the main
	// thread.
	Workers int
}

func (o *Options) loadConfig() (*config.Config, error) {
	switch {
	case o.Config != nil:
		if err := o.Config.Validate(); err != nil {
			return nil, err
		}
		return o.Config, nil
	case o.ConfigPath != "":
		return config.Load(o.ConfigPath)
	default:
		return config.Default(), nil
	}
}
