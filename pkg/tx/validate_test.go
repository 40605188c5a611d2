package tx

import (
	"errors"
	"math"
	"testing"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// validTx creates a minimal valid signed transaction for testing.
func validTx(t *testing.T) *Transaction {
	t.Helper()
	key, _ := crypto.GenerateKey()
	b := NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}).
		AddOutput(1000, types.NewPubkeyHashScript(types.Address{}))
	b.Sign(key)
	return b.Build()
}

func signedInput(prevOut types.Outpoint) Input {
	in := Input{PrevOut: prevOut, Sequence: SequenceFinal}
	in.SetSigScript([]byte("s"), []byte("k"))
	return in
}

func TestValidate_Valid(t *testing.T) {
	tx := validTx(t)
	if err := tx.Validate(); err != nil {
		t.Errorf("valid tx should pass: %v", err)
	}
}

func TestValidate_NoInputs(t *testing.T) {
	tx := &Transaction{
		Outputs: []Output{{Value: 1000, Script: types.NewPubkeyHashScript(types.Address{})}},
	}
	err := tx.Validate()
	if !errors.Is(err, ErrNoInputs) {
		t.Errorf("expected ErrNoInputs, got: %v", err)
	}
}

func TestValidate_NoOutputs(t *testing.T) {
	tx := &Transaction{
		Inputs: []Input{signedInput(types.Outpoint{TxID: types.Hash{0x01}})},
	}
	err := tx.Validate()
	if !errors.Is(err, ErrNoOutputs) {
		t.Errorf("expected ErrNoOutputs, got: %v", err)
	}
}

func TestValidate_DuplicateInput(t *testing.T) {
	same := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	tx := &Transaction{
		Inputs:  []Input{signedInput(same), signedInput(same)},
		Outputs: []Output{{Value: 1000, Script: types.NewPubkeyHashScript(types.Address{})}},
	}
	err := tx.Validate()
	if !errors.Is(err, ErrDuplicateInput) {
		t.Errorf("expected ErrDuplicateInput, got: %v", err)
	}
}

func TestValidate_MissingPubKey(t *testing.T) {
	in := Input{PrevOut: types.Outpoint{TxID: types.Hash{0x01}}}
	in.SetSigScript([]byte("s"), nil)
	tx := &Transaction{
		Inputs:  []Input{in},
		Outputs: []Output{{Value: 1000, Script: types.NewPubkeyHashScript(types.Address{})}},
	}
	err := tx.Validate()
	if !errors.Is(err, ErrMissingPubKey) {
		t.Errorf("expected ErrMissingPubKey, got: %v", err)
	}
}

func TestValidate_MissingSig(t *testing.T) {
	in := Input{PrevOut: types.Outpoint{TxID: types.Hash{0x01}}}
	in.SetSigScript(nil, []byte("k"))
	tx := &Transaction{
		Inputs:  []Input{in},
		Outputs: []Output{{Value: 1000, Script: types.NewPubkeyHashScript(types.Address{})}},
	}
	err := tx.Validate()
	if !errors.Is(err, ErrMissingSig) {
		t.Errorf("expected ErrMissingSig, got: %v", err)
	}
}

func TestValidate_ZeroValueOutput(t *testing.T) {
	tx := &Transaction{
		Inputs:  []Input{signedInput(types.Outpoint{TxID: types.Hash{0x01}})},
		Outputs: []Output{{Value: 0, Script: types.NewPubkeyHashScript(types.Address{})}},
	}
	err := tx.Validate()
	if !errors.Is(err, ErrNegativeOutput) {
		t.Errorf("expected ErrNegativeOutput for zero-value output, got: %v", err)
	}
}

func TestValidate_OutputOverflow(t *testing.T) {
	tx := &Transaction{
		Inputs: []Input{signedInput(types.Outpoint{TxID: types.Hash{0x01}})},
		Outputs: []Output{
			{Value: math.MaxUint64, Script: types.NewPubkeyHashScript(types.Address{})},
			{Value: 1, Script: types.NewPubkeyHashScript(types.Address{})},
		},
	}
	err := tx.Validate()
	if !errors.Is(err, ErrOutputOverflow) {
		t.Errorf("expected ErrOutputOverflow, got: %v", err)
	}
}

func TestValidate_ExceedsMaxMoney(t *testing.T) {
	tx := &Transaction{
		Inputs:  []Input{signedInput(types.Outpoint{TxID: types.Hash{0x01}})},
		Outputs: []Output{{Value: MaxMoney + 1, Script: types.NewPubkeyHashScript(types.Address{})}},
	}
	err := tx.Validate()
	if !errors.Is(err, ErrOutputOverflow) {
		t.Errorf("expected ErrOutputOverflow for value exceeding MaxMoney, got: %v", err)
	}
}

func TestValidate_Coinbase(t *testing.T) {
	coinbase := &Transaction{
		Version: 1,
		Inputs:  []Input{{PrevOut: types.Outpoint{Index: types.NullIndex}}},
		Outputs: []Output{{Value: 50000, Script: types.NewPubkeyHashScript(types.Address{})}},
	}
	if err := coinbase.Validate(); err != nil {
		t.Errorf("coinbase tx should pass Validate: %v", err)
	}
}

func TestValidate_NonCoinbaseNullOutpoint(t *testing.T) {
	tx := &Transaction{
		Version: 1,
		Inputs: []Input{
			{PrevOut: types.Outpoint{Index: types.NullIndex}},
			signedInput(types.Outpoint{TxID: types.Hash{0x02}}),
		},
		Outputs: []Output{{Value: 50000, Script: types.NewPubkeyHashScript(types.Address{})}},
	}
	err := tx.Validate()
	if !errors.Is(err, ErrMultipleCoinbaseIn) {
		t.Errorf("expected ErrMultipleCoinbaseIn, got: %v", err)
	}
}

func TestVerifySignatures_Coinbase(t *testing.T) {
	coinbase := &Transaction{
		Version: 1,
		Inputs:  []Input{{PrevOut: types.Outpoint{Index: types.NullIndex}}},
		Outputs: []Output{{Value: 50000, Script: types.NewPubkeyHashScript(types.Address{})}},
	}
	if err := coinbase.VerifySignatures(); err != nil {
		t.Errorf("coinbase tx should pass VerifySignatures: %v", err)
	}
}

func TestVerifySignatures_Valid(t *testing.T) {
	tx := validTx(t)
	if err := tx.VerifySignatures(); err != nil {
		t.Errorf("valid signatures should verify: %v", err)
	}
}

func TestVerifySignatures_WrongKey(t *testing.T) {
	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()

	b := NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}).
		AddOutput(1000, types.NewPubkeyHashScript(types.Address{}))
	b.Sign(key1)
	transaction := b.Build()

	sig, _, _ := transaction.Inputs[0].SigScript()
	transaction.Inputs[0].SetSigScript(sig, key2.PublicKey())

	err := transaction.VerifySignatures()
	if !errors.Is(err, ErrInvalidSig) {
		t.Errorf("expected ErrInvalidSig, got: %v", err)
	}
}

func TestVerifySignatures_TamperedOutput(t *testing.T) {
	tx := validTx(t)
	tx.Outputs[0].Value = 9999

	err := tx.VerifySignatures()
	if !errors.Is(err, ErrInvalidSig) {
		t.Errorf("tampered tx should fail verification: %v", err)
	}
}

func TestVerifySignatures_CorruptedSig(t *testing.T) {
	tx := validTx(t)

	sig, pubKey, _ := tx.Inputs[0].SigScript()
	corrupted := append([]byte(nil), sig...)
	corrupted[0] ^= 0xFF
	tx.Inputs[0].SetSigScript(corrupted, pubKey)

	err := tx.VerifySignatures()
	if !errors.Is(err, ErrInvalidSig) {
		t.Errorf("corrupted sig should fail: %v", err)
	}
}

func TestValidate_TooManyInputs(t *testing.T) {
	inputs := make([]Input, config.MaxTxInputs+1)
	for i := range inputs {
		inputs[i] = signedInput(types.Outpoint{TxID: types.Hash{byte(i >> 8), byte(i)}, Index: uint32(i)})
	}
	transaction := &Transaction{
		Inputs:  inputs,
		Outputs: []Output{{Value: 1000, Script: types.NewPubkeyHashScript(types.Address{})}},
	}
	err := transaction.Validate()
	if !errors.Is(err, ErrTooManyInputs) {
		t.Errorf("expected ErrTooManyInputs, got: %v", err)
	}
}

func TestValidate_TooManyInputs_AtLimit(t *testing.T) {
	inputs := make([]Input, config.MaxTxInputs)
	for i := range inputs {
		inputs[i] = signedInput(types.Outpoint{TxID: types.Hash{byte(i >> 8), byte(i)}, Index: uint32(i)})
	}
	transaction := &Transaction{
		Inputs:  inputs,
		Outputs: []Output{{Value: 1000, Script: types.NewPubkeyHashScript(types.Address{})}},
	}
	err := transaction.Validate()
	if errors.Is(err, ErrTooManyInputs) {
		t.Errorf("exactly MaxTxInputs should not trigger ErrTooManyInputs")
	}
}

func TestValidate_TooManyOutputs(t *testing.T) {
	outputs := make([]Output, config.MaxTxOutputs+1)
	for i := range outputs {
		outputs[i] = Output{Value: 1, Script: types.NewPubkeyHashScript(types.Address{})}
	}
	transaction := &Transaction{
		Inputs:  []Input{signedInput(types.Outpoint{TxID: types.Hash{0x01}})},
		Outputs: outputs,
	}
	err := transaction.Validate()
	if !errors.Is(err, ErrTooManyOutputs) {
		t.Errorf("expected ErrTooManyOutputs, got: %v", err)
	}
}

func TestValidate_TooManyOutputs_AtLimit(t *testing.T) {
	outputs := make([]Output, config.MaxTxOutputs)
	for i := range outputs {
		outputs[i] = Output{Value: 1, Script: types.NewPubkeyHashScript(types.Address{})}
	}
	transaction := &Transaction{
		Inputs:  []Input{signedInput(types.Outpoint{TxID: types.Hash{0x01}})},
		Outputs: outputs,
	}
	err := transaction.Validate()
	if errors.Is(err, ErrTooManyOutputs) {
		t.Errorf("exactly MaxTxOutputs should not trigger ErrTooManyOutputs")
	}
}

func TestValidate_ScriptDataTooLarge(t *testing.T) {
	transaction := &Transaction{
		Inputs: []Input{signedInput(types.Outpoint{TxID: types.Hash{0x01}})},
		Outputs: []Output{{
			Value:  1000,
			Script: types.Script(make([]byte, config.MaxScriptData+1)),
		}},
	}
	err := transaction.Validate()
	if !errors.Is(err, ErrScriptDataTooLarge) {
		t.Errorf("expected ErrScriptDataTooLarge, got: %v", err)
	}
}

func TestValidate_ScriptDataAtLimit(t *testing.T) {
	transaction := &Transaction{
		Inputs: []Input{signedInput(types.Outpoint{TxID: types.Hash{0x01}})},
		Outputs: []Output{{
			Value:  1000,
			Script: types.Script(make([]byte, config.MaxScriptData)),
		}},
	}
	err := transaction.Validate()
	if errors.Is(err, ErrScriptDataTooLarge) {
		t.Errorf("exactly MaxScriptData should not trigger ErrScriptDataTooLarge")
	}
}
