package coin

import (
	"testing"

	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func testAddress(b byte) types.Address {
	var a types.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func TestCoins_SerializeRoundTrip(t *testing.T) {
	outputs := []tx.Output{
		{Value: 1000, Script: types.NewPubkeyHashScript(testAddress(0x01))},
		{Value: 2000, Script: types.Script{0x51}}, // nonstandard, uncompressed
	}
	bundle := FromTx(outputs, 42, false)

	data, err := bundle.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}

	got, err := Deserialize(data, len(outputs))
	if err != nil {
		t.Fatalf("Deserialize() error: %v", err)
	}

	if got.Height != 42 {
		t.Errorf("Height = %d, want 42", got.Height)
	}
	if got.Coinbase {
		t.Error("Coinbase should be false")
	}
	if got.Outputs[0].Value != 1000 {
		t.Errorf("output 0 value = %d, want 1000", got.Outputs[0].Value)
	}
	if got.Outputs[1].Value != 2000 {
		t.Errorf("output 1 value = %d, want 2000", got.Outputs[1].Value)
	}
	if string(got.Outputs[1].Script) != string(outputs[1].Script) {
		t.Error("nonstandard script did not round-trip")
	}
	tmpl, hash := got.Outputs[0].Script.Classify()
	if tmpl != types.TemplatePubkeyHash {
		t.Errorf("output 0 template = %v, want TemplatePubkeyHash", tmpl)
	}
	addr := testAddress(0x01)
	if string(hash) != string(addr[:]) {
		t.Error("pubkey hash payload did not round-trip")
	}
}

func TestCoins_CoinbaseFlag(t *testing.T) {
	bundle := FromTx([]tx.Output{{Value: 5000, Script: types.NewPubkeyHashScript(testAddress(0x02))}}, 7, true)

	data, err := bundle.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	got, err := Deserialize(data, 1)
	if err != nil {
		t.Fatalf("Deserialize() error: %v", err)
	}
	if !got.Coinbase {
		t.Error("Coinbase flag lost across serialize/deserialize")
	}
	if got.Height != 7 {
		t.Errorf("Height = %d, want 7", got.Height)
	}
}

func TestCoins_UnspendableOutputOmitted(t *testing.T) {
	outputs := []tx.Output{
		{Value: 1000, Script: types.Script{0x6a, 0x02, 0xca, 0xfe}}, // OP_RETURN
	}
	bundle := FromTx(outputs, 1, false)
	if bundle.Outputs[0] != nil {
		t.Error("unspendable output should not be stored as a coin")
	}
}

func TestCoins_SpentEntryRoundTrips(t *testing.T) {
	outputs := []tx.Output{
		{Value: 1000, Script: types.NewPubkeyHashScript(testAddress(0x03))},
		{Value: 2000, Script: types.NewPubkeyHashScript(testAddress(0x04))},
	}
	bundle := FromTx(outputs, 1, false)
	bundle.Spend(0)

	data, err := bundle.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	got, err := Deserialize(data, len(outputs))
	if err != nil {
		t.Fatalf("Deserialize() error: %v", err)
	}
	if got.Outputs[0] != nil {
		t.Error("spent entry should decode as nil")
	}
	if got.Outputs[1] == nil {
		t.Fatal("unspent entry should not be nil")
	}
	if got.IsEmpty() {
		t.Error("bundle with one live output should not be empty")
	}
}

func TestCoins_IsEmpty(t *testing.T) {
	bundle := FromTx([]tx.Output{{Value: 1, Script: types.NewPubkeyHashScript(testAddress(0x05))}}, 1, false)
	if bundle.IsEmpty() {
		t.Error("fresh bundle should not be empty")
	}
	bundle.Spend(0)
	if !bundle.IsEmpty() {
		t.Error("bundle with all outputs spent should be empty")
	}
}

func TestDeferredCoins_MatchesEagerDecode(t *testing.T) {
	outputs := []tx.Output{
		{Value: 111, Script: types.NewPubkeyHashScript(testAddress(0x06))},
		{Value: 222, Script: types.Script{0x51, 0x52}},
		{Value: 333, Script: types.NewPubkeyHashScript(testAddress(0x07))},
	}
	bundle := FromTx(outputs, 99, false)
	data, err := bundle.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}

	dc, err := NewDeferredCoins(data, len(outputs))
	if err != nil {
		t.Fatalf("NewDeferredCoins() error: %v", err)
	}
	if dc.Height() != 99 {
		t.Errorf("Height = %d, want 99", dc.Height())
	}

	for i := range outputs {
		want, err := Deserialize(data, len(outputs))
		if err != nil {
			t.Fatalf("Deserialize() error: %v", err)
		}
		got, err := dc.ToCoin(i)
		if err != nil {
			t.Fatalf("ToCoin(%d) error: %v", i, err)
		}
		if got.Value != want.Outputs[i].Value {
			t.Errorf("index %d: value = %d, want %d", i, got.Value, want.Outputs[i].Value)
		}
	}
}
