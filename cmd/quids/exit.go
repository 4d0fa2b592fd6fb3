package main

import (
	"encoding/json"
	"fmt"
	mrand "math/rand"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/quids/quids/core/types"
	"github.com/quids/quids/core/types/errs"
	"github.com/quids/quids/proofs"
	"github.com/quids/quids/state"
	"github.com/quids/quids/zkproof"
)

// exitCommand generates an emergency withdrawal proof for one address
// (§4.7). There is no live state-query service in this repo, so the
// state the proof is generated against is loaded from a JSON snapshot
// file ([]types.Account) rather than fetched from a running node.
var exitCommand = &cli.Command{
	Name:  "exit",
	Usage: "generate an emergency withdrawal proof for an address",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "address", Required: true, Usage: "account address, hex"},
		&cli.StringFlag{Name: "state", Required: true, Usage: "path to a JSON account snapshot, []types.Account"},
	},
	Action: runExit,
}

func runExit(c *cli.Context) error {
	data, err := os.ReadFile(c.String("state"))
	if err != nil {
		return errs.Wrap(errs.IOFailure, err)
	}
	var accounts []types.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return errs.Wrap(errs.InvalidTransaction, fmt.Errorf("exit: parse state snapshot: %w", err))
	}

	sm := state.New()
	for _, acct := range accounts {
		sm.AddAccount(acct.Address, acct)
	}

	engine := zkproof.New(zkproof.DefaultConfig(), mrand.New(mrand.NewSource(1)))
	prover := proofs.NewEmergencyExitProver(engine)

	addr := types.HexToAddress(c.String("address"))
	proof, err := prover.GenerateExitProof(sm, addr)
	if err != nil {
		return errs.Wrap(errs.ProofFailure, err)
	}

	out, err := json.MarshalIndent(proof, "", "  ")
	if err != nil {
		return errs.Wrap(errs.IOFailure, err)
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}
