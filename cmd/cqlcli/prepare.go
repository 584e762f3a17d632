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
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sabouaram/cassandra-core/protocol"
	"github.com/sabouaram/cassandra-core/request"
	"github.com/sabouaram/cassandra-core/session"
)

func newPrepareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prepare <cql>",
		Short: "Prepare a statement and print the resulting statement id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrepare(args[0])
		},
	}
}

func runPrepare(cql string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sess, err := session.New(cfg)
	if err != nil {
		return fmt.Errorf("cqlcli: open session: %w", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Request.Duration)
	defer cancel()

	fut := sess.Prepare(ctx, cql, request.Options{})
	res, err := fut.Await(ctx)
	if err != nil {
		return fmt.Errorf("cqlcli: prepare failed: %w", err)
	}
	if res.Kind != protocol.ResultPrepared || res.Prepared == nil {
		return fmt.Errorf("cqlcli: prepare returned unexpected result kind %d", res.Kind)
	}
	color.New(color.FgGreen).Printf("prepared: %x\n", res.Prepared.ID)
	return nil
}
