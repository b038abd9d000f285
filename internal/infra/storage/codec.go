package storage

import (
	"fmt"

	"market_go/internal/domain"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
}

// EncodeAccount serializes a into a deterministic CBOR blob.
func EncodeAccount(a domain.Account) ([]byte, error) {
	data, err := encMode.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s %s to CBOR: %w", a.Kind(), a.Key(), err)
	}
	return data, nil
}

// DecodeAccount restores an account of the given kind.
func DecodeAccount(kind domain.Kind, data []byte) (domain.Account, error) {
	a, err := domain.NewAccount(kind)
	if err != nil {
		return nil, err
	}
	if err := cbor.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s from CBOR: %w", kind, err)
	}
	return a, nil
}
