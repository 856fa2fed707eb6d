package core

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// dedupEncMode uses Core Deterministic Encoding so equal parameter values
// always produce identical bytes, whatever their map iteration order.
var dedupEncMode cbor.EncMode

func init() {
	options := cbor.CoreDetEncOptions()
	options.TextMarshaler = cbor.TextMarshalerTextString
	mode, err := options.EncMode()
	if err != nil {
		panic("core: CBOR dedup encoder initialization failed: " + err.Error())
	}
	dedupEncMode = mode
}

type dedupMaterial struct {
	Type       string `cbor:"1,keyasint"`
	Controller string `cbor:"2,keyasint"`
	Parameters any    `cbor:"3,keyasint"`
}

// DedupKey digests the identity of cmd: its type, its controller and its
// parameters. Two commands with the same key are equivalent work.
func DedupKey(cmd Command) (string, error) {
	encoded, err := dedupEncMode.Marshal(dedupMaterial{
		Type:       string(cmd.Type),
		Controller: cmd.ControllerID(),
		Parameters: cmd.Parameters,
	})
	if err != nil {
		return "", fmt.Errorf("core: command parameters are not encodable: %w", err)
	}
	sum := blake3.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// uniqueKey is used for work that must never be shared.
func uniqueKey(prefix string) string {
	return prefix + ":" + uuid.NewString()
}
