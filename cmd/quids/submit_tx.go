package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/quids/quids/core/types"
	"github.com/quids/quids/core/types/errs"
)

// submitTxCommand offline-signs a transaction and prints its wire
// encoding as hex: this repo exposes no transaction-submission RPC, so
// the intended flow is sign here, then hand the hex blob to whatever
// channel feeds a running node's admission path.
var submitTxCommand = &cli.Command{
	Name:  "submit-tx",
	Usage: "offline-sign a transaction and print its wire encoding",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "from", Required: true, Usage: "sender address, hex"},
		&cli.StringFlag{Name: "to", Required: true, Usage: "recipient address, hex"},
		&cli.Uint64Flag{Name: "amount", Required: true},
		&cli.Uint64Flag{Name: "nonce", Required: true},
		&cli.Uint64Flag{Name: "gas-limit", Value: 21000},
		&cli.Uint64Flag{Name: "gas-price", Value: 1},
		&cli.StringFlag{Name: "key", Required: true, Usage: "path to a raw 64-byte ed25519 private key"},
	},
	Action: runSubmitTx,
}

func runSubmitTx(c *cli.Context) error {
	keyBytes, err := os.ReadFile(c.String("key"))
	if err != nil {
		return errs.Wrap(errs.IOFailure, err)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return errs.Wrap(errs.InvalidTransaction, fmt.Errorf("submit-tx: key file must be %d raw bytes, got %d", ed25519.PrivateKeySize, len(keyBytes)))
	}
	priv := ed25519.PrivateKey(keyBytes)

	sender := types.HexToAddress(c.String("from"))
	recipient := types.HexToAddress(c.String("to"))
	tx := types.NewTransaction(sender, recipient, c.Uint64("amount"), c.Uint64("nonce"), c.Uint64("gas-limit"), c.Uint64("gas-price"), 0)

	if err := tx.Sign(priv); err != nil {
		return errs.Wrap(errs.InvalidTransaction, err)
	}
	fmt.Fprintln(c.App.Writer, hex.EncodeToString(tx.Serialize()))
	return nil
}
