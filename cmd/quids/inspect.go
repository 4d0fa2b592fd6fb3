package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/quids/quids/core/types/errs"
	"github.com/quids/quids/executor"
	"github.com/quids/quids/storage"
)

// inspectCommand opens the persisted store read-only and prints a
// block's header, proof roots, and its transactions' dependency-batch
// grouping as Graphviz DOT, for operators debugging the executor's
// parallelism decisions after the fact.
var inspectCommand = &cli.Command{
	Name:  "inspect",
	Usage: "print a stored block's header and dependency graph",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "data-dir", Required: true},
		&cli.Uint64Flag{Name: "block", Required: true},
	},
	Action: runInspect,
}

func runInspect(c *cli.Context) error {
	kv, err := storage.OpenPebble(c.String("data-dir"))
	if err != nil {
		return errs.Wrap(errs.IOFailure, err)
	}
	defer kv.Close()
	store := storage.New(kv)

	block := c.Uint64("block")
	header, err := store.GetHeader(block)
	if err != nil {
		return errs.Wrap(errs.IOFailure, err)
	}
	proof, err := store.GetProof(block)
	if err != nil {
		return errs.Wrap(errs.IOFailure, err)
	}

	fmt.Fprintf(c.App.Writer, "block %d\n", header.Number)
	fmt.Fprintf(c.App.Writer, "  state_root:    %s\n", header.StateRoot.Hex())
	fmt.Fprintf(c.App.Writer, "  previous_hash: %s\n", header.PreviousHash.Hex())
	fmt.Fprintf(c.App.Writer, "  timestamp:     %d\n", header.Timestamp)
	fmt.Fprintf(c.App.Writer, "  transactions:  %d\n\n", len(proof.Transactions))
	fmt.Fprintln(c.App.Writer, executor.DependencyDOT(proof.Transactions))
	return nil
}
