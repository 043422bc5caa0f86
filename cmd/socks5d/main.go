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

// Command socks5d is a non-blocking SOCKS5 proxy with RFC 1929
// username/password authentication and a line-oriented administration
// plane, mirroring the flag surface of original_source/src/server/args.c.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sabouaram/socks5d/internal/config"
	"github.com/sabouaram/socks5d/internal/mgmt"
	"github.com/sabouaram/socks5d/internal/socks5"
	"github.com/sabouaram/socks5d/internal/users"
)

var (
	flagListenHost = "0.0.0.0"
	flagListenPort int
	flagMgmtHost   = "127.0.0.1"
	flagMgmtPort   int
	flagUsers      []string
	flagAdmin      string
	flagVerbose    bool
	flagConfigFile string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "socks5d",
		Short: "Non-blocking SOCKS5 proxy with username/password authentication",
		RunE:  runServe,
	}

	flags := root.Flags()
	flags.StringVarP(&flagListenHost, "listen-addr", "l", flagListenHost, "SOCKS5 listen address")
	flags.IntVarP(&flagListenPort, "listen-port", "p", 1080, "SOCKS5 listen port")
	flags.StringVarP(&flagMgmtHost, "mgmt-addr", "L", flagMgmtHost, "administration listen address")
	flags.IntVarP(&flagMgmtPort, "mgmt-port", "P", 8080, "administration listen port")
	flags.StringArrayVarP(&flagUsers, "user", "u", nil, "user:pass credential, repeatable")
	flags.StringVar(&flagAdmin, "admin", "", "admin:pass credential for the administration plane")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	flags.StringVarP(&flagConfigFile, "config", "c", "", "path to a configuration file")

	return root
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logrus.StandardLogger()

	v := viper.New()
	v.Set("listen", fmt.Sprintf("%s:%d", flagListenHost, flagListenPort))
	v.Set("management_listen", fmt.Sprintf("%s:%d", flagMgmtHost, flagMgmtPort))
	v.Set("verbose", flagVerbose)

	cfg, err := config.Load(flagConfigFile, v)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	socksUsers := users.New()
	for _, seed := range cfg.Users {
		socksUsers.Add(seed.Username, seed.Password)
	}
	for _, spec := range flagUsers {
		if user, pass, ok := strings.Cut(spec, ":"); ok {
			socksUsers.Add(user, pass)
		}
	}

	admins := users.New()
	if cfg.Admin.Username != "" {
		admins.Add(cfg.Admin.Username, cfg.Admin.Password)
	}
	if user, pass, ok := strings.Cut(flagAdmin, ":"); ok {
		admins.Add(user, pass)
	}

	engine, err := socks5.NewEngine(socks5.EngineConfig{
		ListenAddr:          cfg.Listen,
		ResolverConcurrency: cfg.ResolverConcurrency,
		Users:               socksUsers,
		Logger:              log,
	})
	if err != nil {
		return err
	}

	mgmtEngine, err := mgmt.NewEngine(mgmt.EngineConfig{
		ListenAddr: cfg.ManagementListen,
		Selector:   engine.Selector(),
		Admins:     admins,
		SocksUsers: engine.Users(),
		Metrics:    engine.Metrics(),
		Logger:     log,
	})
	if err != nil {
		_ = engine.Close()
		return err
	}

	printBanner(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runErr := engine.Run(ctx)

	// Both listeners share one selector; tear down each independently
	// and report every failure rather than losing one behind the other.
	var result *multierror.Error
	result = multierror.Append(result, runErr)
	result = multierror.Append(result, mgmtEngine.Close())
	result = multierror.Append(result, engine.Close())
	return result.ErrorOrNil()
}

// printBanner writes a colorized startup summary to the process's own
// stdout; this is a local terminal affordance, not part of the SOCKS5
// or administration wire protocols.
func printBanner(cfg *config.Config) {
	out := colorable.NewColorableStdout()
	bold := color.New(color.Bold, color.FgGreen)
	bold.Fprintln(out, "socks5d listening")
	fmt.Fprintf(out, "  socks5:  %s\n", cfg.Listen)
	fmt.Fprintf(out, "  mgmt:    %s\n", cfg.ManagementListen)
}
