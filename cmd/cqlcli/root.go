/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
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
 */

// Package main is cqlcli, a small operator CLI over the driver: it loads a
// session.Config the same way an embedding application would, opens one
// Session per invocation, and exits after the requested command completes.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	"github.com/spf13/cobra"

	"github.com/sabouaram/cassandra-core/config"
)

var (
	flagConfigFile    string
	flagContactPoints string
	flagKeyspace      string
	flagNoColor       bool
)

func init() {
	color.Output = colorable.NewColorableStdout()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cqlcli",
		Short:         "Operate a Cassandra-protocol cluster from the command line",
		Long:          "cqlcli drives the driver's session directly: one-shot query/prepare execution and cluster topology inspection, without embedding it in a larger application.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagNoColor {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().StringVarP(&flagConfigFile, "config", "c", "", "path to a session config file (TOML/YAML/JSON); defaults built in if omitted")
	root.PersistentFlags().StringVar(&flagContactPoints, "contact-points", "", "comma-separated contact points, overrides the config file")
	root.PersistentFlags().StringVar(&flagKeyspace, "keyspace", "", "default keyspace, overrides the config file")
	root.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colorized output")

	root.AddCommand(newQueryCmd())
	root.AddCommand(newPrepareCmd())
	root.AddCommand(newTopologyCmd())

	return root
}

// loadConfig builds the session config from flagConfigFile, falling back to
// built-in defaults, then applies the --contact-points/--keyspace overrides
// so a quick one-liner never needs a config file at all.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if flagConfigFile != "" {
		cfg, err = config.Load(flagConfigFile)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("cqlcli: load config: %w", err)
	}

	if flagContactPoints != "" {
		cfg.ContactPoints = strings.Split(flagContactPoints, ",")
	}
	if flagKeyspace != "" {
		cfg.Keyspace = flagKeyspace
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cqlcli: invalid config: %w", err)
	}
	return cfg, nil
}

func printErr(err error) {
	red := color.New(color.FgRed)
	_, _ = red.Fprintln(os.Stderr, err.Error())
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printErr(err)
		os.Exit(1)
	}
}
