package tx

import "testing"

func TestEstimateTxFee(t *testing.T) {
	const overhead = 4 + 4 + 4 + 4
	const perInput = 32 + 4 + 4 + typicalSigScriptSize + 4
	const perOutput = 8 + 4 + 25

	tests := []struct {
		name       string
		numInputs  int
		numOutputs int
		feeRate    uint64
	}{
		{"zero rate", 1, 2, 0},
		{"simple 1-in 2-out", 1, 2, 10},
		{"2-in 2-out", 2, 2, 10},
		{"consolidate 10-in 1-out", 10, 1, 10},
		{"rate 1", 1, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := uint64(overhead+perInput*tt.numInputs+perOutput*tt.numOutputs) * tt.feeRate
			got := EstimateTxFee(tt.numInputs, tt.numOutputs, tt.feeRate)
			if got != want {
				t.Errorf("EstimateTxFee(%d, %d, %d) = %d, want %d",
					tt.numInputs, tt.numOutputs, tt.feeRate, got, want)
			}
		})
	}
}

func TestEstimateTxFee_ExtraOutputBytes(t *testing.T) {
	base := EstimateTxFee(1, 1, 10)
	withExtra := EstimateTxFee(1, 1, 10, 40)
	if withExtra <= base {
		t.Error("extra output bytes should increase the estimate")
	}
}

func TestRequiredFee(t *testing.T) {
	transaction := &Transaction{Version: 1}
	fee := RequiredFee(transaction, 5)
	want := uint64(len(transaction.SigningBytes())) * 5
	if fee != want {
		t.Errorf("RequiredFee() = %d, want %d", fee, want)
	}
}
