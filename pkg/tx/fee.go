package tx

// typicalSigScriptSize approximates the serialized size of a spent
// pay-to-pubkey-hash input's script: a length byte, a 64-byte Schnorr
// signature and a 33-byte compressed public key.
const typicalSigScriptSize = 1 + 64 + 33

// EstimateTxFee returns the minimum fee for a transaction with the given
// number of inputs and outputs at the given fee rate (base units per byte),
// approximating each input as a spent pay-to-pubkey-hash input and each
// output as a pay-to-pubkey-hash output. Pass extraOutputBytes to widen
// the assumed script size of every output (e.g. for larger scripts).
func EstimateTxFee(numInputs, numOutputs int, feeRate uint64, extraOutputBytes ...int) uint64 {
	const overhead = 4 + 4 + 4 + 4                         // version + inputCount + outputCount + locktime
	const perInput = 32 + 4 + 4 + typicalSigScriptSize + 4 // txid + index + scriptLen + script + sequence
	const perOutput = 8 + 4 + 25                           // value + scriptLen + P2PKH script bytes

	extra := 0
	if len(extraOutputBytes) > 0 {
		extra = extraOutputBytes[0]
	}

	size := overhead + perInput*numInputs + (perOutput+extra)*numOutputs
	return uint64(size) * feeRate
}

// RequiredFee returns the exact minimum fee for a fully built transaction
// at the given fee rate (base units per byte of SigningBytes).
func RequiredFee(transaction *Transaction, feeRate uint64) uint64 {
	return uint64(len(transaction.SigningBytes())) * feeRate
}
