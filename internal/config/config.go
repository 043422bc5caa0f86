/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config loads and validates the process configuration (§6.4):
// the SOCKS and management listen addresses, resolver tuning, and the
// seed user list. Sourced from a file, the environment, and CLI flags,
// in that order of increasing precedence, via spf13/viper.
package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// UserSeed is one credential loaded at startup into the user store.
type UserSeed struct {
	Username string `mapstructure:"username" validate:"required,max=255"`
	Password string `mapstructure:"password" validate:"required,max=255"`
}

// Admin is the management protocol's own credential, distinct from the
// SOCKS user table (§9: the reference's hardcoded admin/admin123 is not
// carried forward — admins are configured like any other credential).
type Admin struct {
	Username string `mapstructure:"username" validate:"omitempty,max=255"`
	Password string `mapstructure:"password" validate:"omitempty,max=255"`
}

// Config is the fully resolved process configuration.
type Config struct {
	Listen              string     `mapstructure:"listen" validate:"required,hostname_port"`
	ManagementListen     string     `mapstructure:"management_listen" validate:"required,hostname_port"`
	ResolverConcurrency  int64      `mapstructure:"resolver_concurrency" validate:"gt=0"`
	Verbose              bool       `mapstructure:"verbose"`
	Users                []UserSeed `mapstructure:"users" validate:"dive"`
	Admin                Admin      `mapstructure:"admin"`
}

// defaults mirrors original_source/src/server/args.c's fallback values
// for -l/-p (0.0.0.0:1080) and supplements a management bind address
// (127.0.0.1:8080) the original hardcodes in mgmt.c.
func defaults() map[string]any {
	return map[string]any{
		"listen":               "0.0.0.0:1080",
		"management_listen":    "127.0.0.1:8080",
		"resolver_concurrency": 16,
		"verbose":              false,
	}
}

// Load resolves configuration from an optional file at path, the
// SOCKS5D_-prefixed environment, and whatever has already been bound
// into v by the caller (typically CLI flag values set with v.Set), in that
// order of increasing precedence.
func Load(path string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix("SOCKS5D")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config: reading %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: unmarshal")
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: validation")
	}
	return &cfg, nil
}
