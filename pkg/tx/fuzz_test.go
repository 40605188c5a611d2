package tx

import (
	"encoding/json"
	"testing"
)

// FuzzTxUnmarshal tests that arbitrary JSON input does not panic
// when unmarshaled into a Transaction struct.
func FuzzTxUnmarshal(f *testing.F) {
	f.Add([]byte(`{"inputs":[{"prevout":{"txid":"0000000000000000000000000000000000000000000000000000000000000000","index":0},"script":"00"}],"outputs":[{"value":1000,"script":"76a914000000000000000000000000000000000000000088ac"}]}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`{"inputs":null,"outputs":null}`))
	f.Add([]byte(`{"inputs":[{"prevout":{"txid":"","index":0},"script":""}],"outputs":[{"value":0}]}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var tx Transaction
		if err := json.Unmarshal(data, &tx); err != nil {
			return
		}
		tx.Hash()
		tx.WTxHash()
		tx.SigningBytes()
		tx.Validate()
		tx.VerifySignatures()
	})
}
