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
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sabouaram/cassandra-core/protocol"
	"github.com/sabouaram/cassandra-core/request"
	"github.com/sabouaram/cassandra-core/session"
)

var flagConsistency string

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <cql>",
		Short: "Run one CQL statement and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(args[0])
		},
	}
	cmd.Flags().StringVar(&flagConsistency, "consistency", "quorum", "consistency level: any|one|two|three|quorum|all|local_quorum|each_quorum|local_one")
	return cmd
}

func runQuery(cql string) error {
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

	stmt := request.Statement{
		Kind: request.KindQuery,
		CQL:  cql,
		Request: protocol.Query{
			CQL:    cql,
			Params: protocol.QueryParams{Consistency: parseConsistency(flagConsistency)},
		},
	}

	fut := sess.Execute(ctx, stmt, request.Options{Idempotent: false})
	res, err := fut.Await(ctx)
	if err != nil {
		return fmt.Errorf("cqlcli: query failed: %w", err)
	}
	printResult(res)
	return nil
}

func printResult(res *protocol.Result) {
	bold := color.New(color.Bold)
	switch res.Kind {
	case protocol.ResultVoid:
		bold.Println("OK")
	case protocol.ResultSetKeyspace:
		bold.Printf("keyspace set to %q\n", res.SetKeyspace)
	case protocol.ResultSchemaChange:
		bold.Println("schema change acknowledged")
	case protocol.ResultRows:
		printRows(res.Rows)
	default:
		bold.Println("no result")
	}
}

func printRows(rows *protocol.RowsResult) {
	if rows == nil {
		return
	}
	names := make([]string, len(rows.Metadata.Columns))
	for i, c := range rows.Metadata.Columns {
		names[i] = c.Name
	}
	color.New(color.FgCyan).Println(strings.Join(names, " | "))
	for _, row := range rows.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = string(v)
			}
		}
		fmt.Println(strings.Join(cells, " | "))
	}
	fmt.Printf("(%d rows)\n", len(rows.Rows))
}

func parseConsistency(s string) protocol.Consistency {
	switch strings.ToLower(s) {
	case "any":
		return protocol.ConsistencyAny
	case "one":
		return protocol.ConsistencyOne
	case "two":
		return protocol.ConsistencyTwo
	case "three":
		return protocol.ConsistencyThree
	case "quorum":
		return protocol.ConsistencyQuorum
	case "all":
		return protocol.ConsistencyAll
	case "local_quorum":
		return protocol.ConsistencyLocalQuorum
	case "each_quorum":
		return protocol.ConsistencyEachQuorum
	case "local_one":
		return protocol.ConsistencyLocalOne
	default:
		return protocol.ConsistencyQuorum
	}
}
