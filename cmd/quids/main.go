// Command quids runs and operates a quids rollup node: serve starts the
// batch pipeline, submit-tx offline-signs a transaction, exit generates
// an emergency withdrawal proof, inspect renders stored batch data, and
// bridge-send demonstrates publishing a cross-chain bridge envelope.
//
// Grounded on the teacher's cmd/eth2030-geth layout (one urfave/cli/v2
// App, one file per subcommand) though the teacher itself never wires
// urfave/cli into working code; this is this module's own CLI built in
// that shape.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/quids/quids/core/types/errs"
)

func main() {
	app := &cli.App{
		Name:  "quids",
		Usage: "operate a quids rollup node",
		Commands: []*cli.Command{
			serveCommand,
			submitTxCommand,
			exitCommand,
			inspectCommand,
			bridgeSendCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "quids:", err)
		if ce, ok := err.(*configError); ok {
			_ = ce
			os.Exit(2)
		}
		errs.Abort(err, nil)
	}
}

// configError wraps a configuration-loading failure so main can map it
// to exit code 2 (§7: InvalidTransaction/StateRule/Overload surface
// directly; a bad config surfaces the same way, before the pipeline
// even starts).
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }
