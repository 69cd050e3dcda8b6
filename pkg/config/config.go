// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/NVIDIA/unithost/pkg/defaults"
	cnserrors "github.com/NVIDIA/unithost/pkg/errors"
	"github.com/NVIDIA/unithost/pkg/loader"
	"github.com/NVIDIA/unithost/pkg/pipeline"
)

// Config is the unit host configuration.
type Config struct {
	// Root is the managed directory holding one subdirectory per unit.
	Root     string        `mapstructure:"root" yaml:"root"`
	LogLevel string        `mapstructure:"log_level" yaml:"log_level"`
	Server   ServerConfig  `mapstructure:"server" yaml:"server"`
	Build    BuildConfig   `mapstructure:"build" yaml:"build"`
	Git      GitConfig     `mapstructure:"git" yaml:"git"`
	Restart  RestartConfig `mapstructure:"restart" yaml:"restart"`
	Plugin   PluginConfig  `mapstructure:"plugin" yaml:"plugin"`
}

// ServerConfig configures the HTTP listener and the CLI target.
type ServerConfig struct {
	Address        string  `mapstructure:"address" yaml:"address"`
	Port           int     `mapstructure:"port" yaml:"port"`
	URL            string  `mapstructure:"url" yaml:"url"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
}

// BuildConfig configures the build pipeline.
type BuildConfig struct {
	Steps   []string      `mapstructure:"steps" yaml:"steps"`
	Prune   []string      `mapstructure:"prune" yaml:"prune"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// GitConfig configures source control access.
type GitConfig struct {
	Branches   []string `mapstructure:"branches" yaml:"branches"`
	SSHRewrite bool     `mapstructure:"ssh_rewrite" yaml:"ssh_rewrite"`
}

// RestartConfig controls restart-after-mutation.
type RestartConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Delay   time.Duration `mapstructure:"delay" yaml:"delay"`
}

// PluginConfig controls how built artifacts are loaded.
type PluginConfig struct {
	Artifact string `mapstructure:"artifact" yaml:"artifact"`
	Symbol   string `mapstructure:"symbol" yaml:"symbol"`
	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir"`
}

// Load reads configuration from path, or from ./unithost.yaml when path is
// empty and the file exists. UNITHOST_* environment variables override file
// values, for example UNITHOST_SERVER_PORT or UNITHOST_RESTART_ENABLED.
// The platform PORT variable is honored for server.port when
// UNITHOST_SERVER_PORT is unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(defaults.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", defaults.EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, cnserrors.Wrap(cnserrors.ErrCodeInternal, "failed to bind environment", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, cnserrors.WrapWithContext(cnserrors.ErrCodeInvalidRequest,
				"failed to read config file", err, map[string]any{"path": path})
		}
	} else {
		name := defaults.ConfigFileName
		v.SetConfigName(strings.TrimSuffix(name, filepath.Ext(name)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, cnserrors.Wrap(cnserrors.ErrCodeInvalidRequest, "failed to read config file", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, cnserrors.Wrap(cnserrors.ErrCodeInvalidRequest, "failed to decode config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", defaults.ManagedRoot)
	v.SetDefault("log_level", "info")

	v.SetDefault("server.address", "")
	v.SetDefault("server.port", defaults.ServerPort)
	v.SetDefault("server.url", defaults.ServerURL)
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.rate_limit_burst", 200)

	v.SetDefault("build.steps", pipeline.DefaultBuildSteps)
	v.SetDefault("build.prune", pipeline.DefaultPruneDirs)
	v.SetDefault("build.timeout", defaults.BuildStepTimeout)

	v.SetDefault("git.branches", pipeline.DefaultBranches)
	v.SetDefault("git.ssh_rewrite", false)

	v.SetDefault("restart.enabled", true)
	v.SetDefault("restart.delay", defaults.RestartDelay)

	v.SetDefault("plugin.artifact", loader.DefaultArtifact)
	v.SetDefault("plugin.symbol", loader.DefaultSymbol)
	v.SetDefault("plugin.cache_dir", "")
}

// Validate checks values the downstream components cannot default.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Root) == "":
		return invalid("root must not be empty", "root", c.Root)
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return invalid("server.port must be between 1 and 65535", "server.port", c.Server.Port)
	case c.Server.RateLimit <= 0:
		return invalid("server.rate_limit must be positive", "server.rate_limit", c.Server.RateLimit)
	case c.Server.RateLimitBurst <= 0:
		return invalid("server.rate_limit_burst must be positive", "server.rate_limit_burst", c.Server.RateLimitBurst)
	case len(c.Build.Steps) == 0:
		return invalid("build.steps must list at least one command", "build.steps", c.Build.Steps)
	case c.Build.Timeout < 0:
		return invalid("build.timeout must not be negative", "build.timeout", c.Build.Timeout)
	case len(c.Git.Branches) == 0:
		return invalid("git.branches must list at least one branch", "git.branches", c.Git.Branches)
	case c.Restart.Delay < 0:
		return invalid("restart.delay must not be negative", "restart.delay", c.Restart.Delay)
	case c.Plugin.Artifact == "" || filepath.IsAbs(c.Plugin.Artifact):
		return invalid("plugin.artifact must be a path relative to the unit", "plugin.artifact", c.Plugin.Artifact)
	case c.Plugin.Symbol == "":
		return invalid("plugin.symbol must not be empty", "plugin.symbol", c.Plugin.Symbol)
	}
	return nil
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

func invalid(msg, key string, value any) error {
	return cnserrors.NewWithContext(cnserrors.ErrCodeInvalidRequest, msg,
		map[string]any{"key": key, "value": value})
}
