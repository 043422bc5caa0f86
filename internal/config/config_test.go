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

package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", viper.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:1080" {
		t.Errorf("Listen = %q, want 0.0.0.0:1080", cfg.Listen)
	}
	if cfg.ManagementListen != "127.0.0.1:8080" {
		t.Errorf("ManagementListen = %q, want 127.0.0.1:8080", cfg.ManagementListen)
	}
	if cfg.ResolverConcurrency != 16 {
		t.Errorf("ResolverConcurrency = %d, want 16", cfg.ResolverConcurrency)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SOCKS5D_LISTEN", "127.0.0.1:9090")
	t.Setenv("SOCKS5D_VERBOSE", "true")

	cfg, err := Load("", viper.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9090" {
		t.Errorf("Listen = %q, want 127.0.0.1:9090", cfg.Listen)
	}
	if !cfg.Verbose {
		t.Error("Verbose = false, want true from SOCKS5D_VERBOSE")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	v := viper.New()
	v.Set("listen", "not-a-hostport")
	if _, err := Load("", v); err == nil {
		t.Fatal("Load: expected validation error for malformed listen address, got nil")
	}
}

func TestLoadRejectsMissingConfigFile(t *testing.T) {
	_, err := Load("/nonexistent/path/to/socks5d.yaml", viper.New())
	if err == nil {
		t.Fatal("Load: expected error for missing config file, got nil")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/socks5d.yaml"
	contents := "listen: \"0.0.0.0:2080\"\nresolver_concurrency: 4\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path, viper.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:2080" {
		t.Errorf("Listen = %q, want 0.0.0.0:2080", cfg.Listen)
	}
	if cfg.ResolverConcurrency != 4 {
		t.Errorf("ResolverConcurrency = %d, want 4", cfg.ResolverConcurrency)
	}
}
