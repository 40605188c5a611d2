package consensus

import (
	"testing"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func TestCheckpointSet_VerifyMatch(t *testing.T) {
	cs := CheckpointSet{{Height: 100, Hash: types.Hash{0x01}}}
	if !cs.Verify(100, types.Hash{0x01}) {
		t.Error("matching checkpoint hash should verify")
	}
	if cs.Verify(100, types.Hash{0x02}) {
		t.Error("mismatched checkpoint hash should fail verification")
	}
}

func TestCheckpointSet_VerifyNoCheckpointAtHeight(t *testing.T) {
	cs := CheckpointSet{{Height: 100, Hash: types.Hash{0x01}}}
	if !cs.Verify(50, types.Hash{0xff}) {
		t.Error("height without a checkpoint should always verify")
	}
}

func TestCheckpointSet_LastBefore(t *testing.T) {
	cs := CheckpointSet{
		{Height: 100, Hash: types.Hash{0x01}},
		{Height: 200, Hash: types.Hash{0x02}},
	}
	got, ok := cs.LastBefore(150)
	if !ok || got.Height != 100 {
		t.Errorf("LastBefore(150) = %+v, %v; want height 100", got, ok)
	}

	_, ok = cs.LastBefore(50)
	if ok {
		t.Error("LastBefore(50) should find nothing")
	}
}

func TestSkipsScriptVerification(t *testing.T) {
	if !SkipsScriptVerification(true, 50, 100) {
		t.Error("height below last checkpoint should skip script verification")
	}
	if SkipsScriptVerification(true, 150, 100) {
		t.Error("height above last checkpoint should not skip")
	}
	if SkipsScriptVerification(false, 50, 100) {
		t.Error("disabled checkpoints should never skip")
	}
}
