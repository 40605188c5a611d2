// Klingnet full node daemon.
//
// Usage:
//
//	klingnetd [--network=testnet|regtest|segnet] [--datadir=...]
//	klingnetd --help
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/addrindex"
	"github.com/Klingon-tech/klingnet-chain/internal/chain"
	"github.com/Klingon-tech/klingnet-chain/internal/chaindb"
	"github.com/Klingon-tech/klingnet-chain/internal/chainstate"
	"github.com/Klingon-tech/klingnet-chain/internal/consensus"
	"github.com/Klingon-tech/klingnet-chain/internal/log"
	"github.com/Klingon-tech/klingnet-chain/internal/mempool"
	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Error: initializing logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Chain.Error().Err(err).Msg("node startup failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	params, err := buildParams(config.ParamsFor(cfg.Network))
	if err != nil {
		return fmt.Errorf("build network params: %w", err)
	}

	genesisCfg := config.GenesisFor(cfg.Network)
	genesisBlock, err := chain.CreateGenesisBlock(chain.GenesisConfig{
		Alloc:     genesisCfg.Alloc,
		Timestamp: genesisCfg.Timestamp,
		Bits:      genesisCfg.Bits,
	})
	if err != nil {
		return fmt.Errorf("build genesis block: %w", err)
	}

	dbPath := filepath.Join(cfg.ChainDataDir(), "chaindata")
	badger, err := storage.NewBadger(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer badger.Close()

	cdb, err := chaindb.Open(badger, genesisBlock, chaindb.Options{
		RetargetInterval: params.RetargetInterval,
	})
	if err != nil {
		return fmt.Errorf("open chain database: %w", err)
	}

	addrIdx := addrindex.New(badger)
	notify := &nodeNotifier{addrIndex: addrIdx}
	ch := chain.New(cdb, params, notify)

	pool := mempool.New(ch, cfg.Mempool.MaxBytes,
		mempool.WithMinRelayFeeRate(cfg.Mempool.MinRelayFeeRate),
	)
	notify.pool = pool

	tip, err := ch.Tip()
	if err != nil {
		return fmt.Errorf("read chain tip: %w", err)
	}
	log.Chain.Info().
		Str("network", string(cfg.Network)).
		Uint32("height", tip.Height).
		Int("mempool_bytes", cfg.Mempool.MaxBytes).
		Int("mempool_txs", pool.Count()).
		Msg("klingnetd ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Chain.Info().Msg("shutting down")
	return nil
}

// nodeNotifier fans a Chain's events out to the two components that need
// them: the mempool, which drops confirmed transactions and re-ingests
// disconnected ones, and the address index, which tracks outputs by
// address. pool is set once mempool.New has run, since mempool.New itself
// needs the already-constructed Chain as its coin source — chain.New's
// notifier argument is bound before the pool that will eventually receive
// its events exists.
type nodeNotifier struct {
	pool      *mempool.Pool
	addrIndex *addrindex.Index
}

func (n *nodeNotifier) OnBlock(*chainstate.Entry, *block.Block) {}

func (n *nodeNotifier) OnConnect(entry *chainstate.Entry, blk *block.Block) {
	n.pool.AddBlock(entry.Height, blk.Transactions)
	n.addrIndex.OnConnect(entry, blk)
}

func (n *nodeNotifier) OnDisconnect(entry *chainstate.Entry, blk *block.Block) {
	n.pool.RemoveBlock(entry.Height, blk.Transactions)
	n.addrIndex.OnDisconnect(entry, blk)
}

func (n *nodeNotifier) OnReorg(types.Hash, types.Hash) {}

// buildParams translates the network-agnostic constants config.ParamsFor
// returns into the concrete types internal/chain and internal/consensus
// expect. It lives here, not in config, so config never has to import
// internal/chain (which itself imports pkg/block — a package config's own
// size-limit constants are consumed by, which would otherwise close an
// import cycle).
func buildParams(np config.NetworkParams) (chain.Params, error) {
	checkpoints := make(consensus.CheckpointSet, 0, len(np.Checkpoints))
	for _, c := range np.Checkpoints {
		raw, err := hex.DecodeString(c.Hash)
		if err != nil || len(raw) != types.HashSize {
			return chain.Params{}, fmt.Errorf("checkpoint at height %d: invalid hash %q", c.Height, c.Hash)
		}
		var h types.Hash
		copy(h[:], raw)
		checkpoints = append(checkpoints, consensus.Checkpoint{Height: c.Height, Hash: h})
	}

	deployments := make([]consensus.Deployment, 0, len(np.Deployments))
	for _, d := range np.Deployments {
		deployments = append(deployments, consensus.Deployment{
			Name:          d.Name,
			Bit:           d.Bit,
			StartHeight:   d.StartHeight,
			TimeoutHeight: d.TimeoutHeight,
			Threshold:     d.Threshold,
			Period:        d.Period,
		})
	}

	return chain.Params{
		RetargetParams: consensus.RetargetParams{
			PowLimit:         consensus.CompactToTarget(np.PowLimitBits),
			TargetTimespan:   np.TargetTimespan,
			TargetSpacing:    np.TargetSpacing,
			RetargetInterval: np.RetargetInterval,
			NoRetarget:       np.NoRetarget,
		},
		MajorityWindow:         np.MajorityWindow,
		MajorityEnforceUpgrade: np.MajorityEnforceUpgrade,
		MajorityRejectOutdated: np.MajorityRejectOutdated,
		CoinbaseMaturity:       np.CoinbaseMaturity,
		UseCheckpoints:         np.UseCheckpoints,
		Checkpoints:            checkpoints,
		Deployments:            deployments,
	}, nil
}
