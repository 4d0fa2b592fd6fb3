package main

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/quids/quids/broadcast"
	"github.com/quids/quids/config"
	"github.com/quids/quids/consensus"
	"github.com/quids/quids/core/types/errs"
	"github.com/quids/quids/executor"
	"github.com/quids/quids/log"
	"github.com/quids/quids/mev"
	"github.com/quids/quids/proofs"
	"github.com/quids/quids/rollup"
	"github.com/quids/quids/state"
	"github.com/quids/quids/storage"
	"github.com/quids/quids/zkproof"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run the batch pipeline until interrupted",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "path to a YAML config file ($QUIDS_CONFIG, when set, takes precedence)"},
	},
	Action: runServe,
}

func runServe(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return &configError{err}
	}
	if err := config.Validate(cfg); err != nil {
		return &configError{err}
	}

	errs.SentryDSN = cfg.SentryDSN
	logger := log.NewWithFormatter(log.LevelFromString(cfg.LogLevel), &log.TextFormatter{}, os.Stderr).Module("serve")
	logger.Info("starting quids node", "data_dir", cfg.DataDir, "listen_addr", cfg.ListenAddr)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return errs.Wrap(errs.IOFailure, err)
	}
	kv, err := storage.OpenPebble(cfg.DataDir)
	if err != nil {
		return errs.Wrap(errs.IOFailure, err)
	}
	defer kv.Close()
	store := storage.New(kv)

	hub := broadcast.NewHub()
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: hub}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("broadcast listener stopped", "err", err)
		}
	}()
	defer srv.Close()

	zkEngine := zkproof.New(cfg.ZKProof.ToZKProofConfig(), seededRand())
	sm := state.New()
	bp := rollup.New(
		cfg.Rollup.ToRollupConfig(),
		sm,
		mev.New(nil),
		executor.New(cfg.Executor.ToExecutorConfig()),
		proofs.NewStateTransitionProver(zkEngine),
		consensus.New(cfg.Consensus.ToConsensusConfig(), zkEngine),
		store,
		hub,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	logger.Info("pipeline running")
	for {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig.String())
			return nil
		case now := <-ticker.C:
			if bp.ShouldCutBatch(now) {
				if _, err := bp.ProcessBatch(now, randomSeed()); err != nil {
					logger.Warn("batch processing failed", "err", err)
				}
			}
		}
	}
}

// seededRand returns a math/rand source seeded from the OS CSPRNG, used
// for the ZK engine's randomized phase transforms (not for anything
// requiring cryptographic unpredictability itself — the proof's
// soundness doesn't depend on this seed being secret).
func seededRand() *mrand.Rand {
	var seed int64
	if err := binary.Read(rand.Reader, binary.BigEndian, &seed); err != nil {
		seed = time.Now().UnixNano()
	}
	return mrand.New(mrand.NewSource(seed))
}

func randomSeed() [32]byte {
	var s [32]byte
	rand.Read(s[:])
	return s
}
