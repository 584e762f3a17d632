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

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sabouaram/cassandra-core/session"
)

func newTopologyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Print the hosts the control connection currently knows about",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTopology()
		},
	}
}

func runTopology() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sess, err := session.New(cfg)
	if err != nil {
		return fmt.Errorf("cqlcli: open session: %w", err)
	}
	defer sess.Close()

	hosts := sess.Registry().Snapshot()
	up := color.New(color.FgGreen)
	down := color.New(color.FgRed)

	color.New(color.FgCyan).Println("address | dc | rack | tokens | status")
	for _, h := range hosts {
		line := fmt.Sprintf("%s | %s | %s | %d | ", h.Address.String(), h.DC, h.Rack, len(h.Tokens))
		if h.IsUp() {
			up.Println(line + "UP")
		} else {
			down.Println(line + "DOWN")
		}
	}
	fmt.Printf("(%d hosts)\n", len(hosts))
	return nil
}
