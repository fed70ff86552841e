/*
Runs the testbed on top of the engine. The configuration file is read from
the first argument, or engine.toml in the working directory. Shaders under
testbed/shaders are reloaded when edited; without that directory the
embedded copies are used.
*/
package main

import (
	"context"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/anima-cgi/engine"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/spaghettifunk/anima-cgi/testbed"
)

const shaderDir = "testbed/shaders"

func main() {
	opts := engine.Options{ConfigPath: "engine.toml", WatchConfig: true}
	if len(os.Args) > 1 {
		opts.ConfigPath = os.Args[1]
	}
	if _, err := os.Stat(opts.ConfigPath); errors.Is(err, fs.ErrNotExist) {
		core.LogWarn("%s not found, using defaults", opts.ConfigPath)
		opts.ConfigPath = ""
	}

	if s, err := os.Stat(shaderDir); err == nil && s.IsDir() {
		opts.AssetsDir = shaderDir
	}

	tb := testbed.NewTestGame()

	e, err := engine.New(tb.Game, opts)
	if err != nil {
		core.LogFatal("engine: %v", err)
	}

	// signal channel to capture system calls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	runErr := e.Initialize()
	if runErr == nil {
		runErr = e.Run(ctx)
	}
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %+v", err)
	}
	if runErr != nil {
		core.LogFatal("%+v", runErr)
	}
}
