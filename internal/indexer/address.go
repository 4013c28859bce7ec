package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const tronAddressPrefix = 0x41

// DisplayAddress converts a hex account address as emitted in contract events
// ("0x" + 20 bytes, or "41" + 20 bytes) into the base58check form wallets show.
// Addresses already in base58 form are returned unchanged.
func DisplayAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", errors.New("empty address")
	}
	if strings.HasPrefix(addr, "T") {
		return addr, nil
	}

	h := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	raw, err := hex.DecodeString(h)
	if err != nil {
		return "", errors.Wrapf(err, "invalid hex address %q", addr)
	}

	switch len(raw) {
	case 20:
		raw = append([]byte{tronAddressPrefix}, raw...)
	case 21:
		if raw[0] != tronAddressPrefix {
			return "", errors.Errorf("unexpected address prefix %#x in %q", raw[0], addr)
		}
	default:
		return "", errors.Errorf("unexpected address length %d in %q", len(raw), addr)
	}

	first := sha256.Sum256(raw)
	second := sha256.Sum256(first[:])
	return base58.Encode(append(raw, second[:4]...)), nil
}
