package chain

import (
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// GenesisConfig carries the values needed to build a network's genesis
// block: the initial coin allocation and the two header fields a genesis
// block doesn't inherit from a parent.
type GenesisConfig struct {
	Alloc     map[string]uint64
	Timestamp uint64
	Bits      uint32
}

// CreateGenesisBlock builds the genesis block from gen: height 0, a zero
// PrevHash, and a single coinbase transaction distributing the initial
// allocation, one P2PKH output per address in deterministic order.
func CreateGenesisBlock(gen GenesisConfig) (*block.Block, error) {
	coinbase, err := buildCoinbaseTx(gen.Alloc)
	if err != nil {
		return nil, fmt.Errorf("chain: build genesis coinbase: %w", err)
	}

	txs := []*tx.Transaction{coinbase}
	merkle := block.ComputeMerkleRoot([]types.Hash{coinbase.Hash()})

	header := &block.Header{
		Version:    block.CurrentVersion,
		PrevHash:   types.Hash{},
		MerkleRoot: merkle,
		Timestamp:  gen.Timestamp,
		Bits:       gen.Bits,
	}

	return block.NewBlock(header, txs), nil
}

// buildCoinbaseTx creates the genesis coinbase: no real inputs (the null
// outpoint marker), one P2PKH output per allocated address.
func buildCoinbaseTx(alloc map[string]uint64) (*tx.Transaction, error) {
	addrs := make([]string, 0, len(alloc))
	for addr := range alloc {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	outputs := make([]tx.Output, 0, len(addrs))
	for _, addrStr := range addrs {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return nil, fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		outputs = append(outputs, tx.Output{
			Value:  alloc[addrStr],
			Script: types.NewPubkeyHashScript(addr),
		})
	}
	if len(outputs) == 0 {
		outputs = append(outputs, tx.Output{Value: 0, Script: types.NewPubkeyHashScript(types.Address{})})
	}

	return &tx.Transaction{
		Version: 1,
		Inputs:  []tx.Input{{PrevOut: types.Outpoint{Index: types.NullIndex}}},
		Outputs: outputs,
	}, nil
}
