package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-cgi/engine/core"
)

type Backend string

const (
	BackendVulkan Backend = "vulkan"
	BackendSoft   Backend = "soft"
)

/**
 * @brief The application configuration, read from a TOML file.
 */
type Config struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
	Log         LogConfig         `toml:"log"`
}

type ApplicationConfig struct {
	/** @brief The application name used in windowing. */
	Name string `toml:"name"`
	/** @brief Window starting width. */
	Width uint32 `toml:"width"`
	/** @brief Window starting height. */
	Height uint32 `toml:"height"`
	/** @brief Window starting position x axis. */
	X int `toml:"x"`
	/** @brief Window starting position y axis. */
	Y int `toml:"y"`
}

type RendererConfig struct {
	Backend    Backend `toml:"backend"`
	VSync      bool    `toml:"vsync"`
	Debug      bool    `toml:"debug"`
	Anisotropy float32 `toml:"anisotropy"`
	Trilinear  bool    `toml:"trilinear"`

	// FenceTimeout of zero waits forever.
	FenceTimeout Duration `toml:"fence_timeout"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Duration reads Go duration strings such as "2s" or "500ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return core.WrapRecoverable(err, "invalid duration %q", string(b))
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	if d.Duration == 0 {
		return []byte(""), nil
	}
	return []byte(d.Duration.String()), nil
}

func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:   "Anima CGI Testbed",
			Width:  1280,
			Height: 720,
			X:      100,
			Y:      100,
		},
		Renderer: RendererConfig{
			Backend:    BackendVulkan,
			VSync:      true,
			Anisotropy: 16,
			Trilinear:  true,
		},
		Log: LogConfig{
			Level: string(core.LogLevelInfo),
		},
	}
}

// Parse decodes data over the defaults, so a file only needs the keys it
// changes, and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, core.WrapRecoverable(err, "decoding configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.WrapRecoverable(err, "reading configuration %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, core.WrapRecoverable(err, "loading %s", path)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return core.Recoverablef("application size %dx%d must be positive", c.Application.Width, c.Application.Height)
	}
	switch c.Renderer.Backend {
	case BackendVulkan, BackendSoft:
	default:
		return core.Recoverablef("unknown renderer backend %q", c.Renderer.Backend)
	}
	if c.Renderer.Anisotropy < 1 || c.Renderer.Anisotropy > 16 {
		return core.Recoverablef("anisotropy %.1f outside 1..16", c.Renderer.Anisotropy)
	}
	if c.Renderer.FenceTimeout.Duration < 0 {
		return core.Recoverablef("negative fence timeout %s", c.Renderer.FenceTimeout.Duration)
	}
	if _, err := core.ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

func (c *Config) LogLevel() core.LogLevel {
	l, err := core.ParseLogLevel(c.Log.Level)
	if err != nil {
		return core.LogLevelInfo
	}
	return l
}

// RequiresRestart reports whether moving from c to next changes anything
// that is only read at startup. Only the log level is applied live.
func (c *Config) RequiresRestart(next *Config) bool {
	return c.Application != next.Application || c.Renderer != next.Renderer
}

func (c *Config) Marshal() ([]byte, error) {
	b, err := toml.Marshal(c)
	if err != nil {
		return nil, core.WrapFatal(err, "encoding configuration")
	}
	return b, nil
}
