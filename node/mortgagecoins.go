package node

import (
	"encoding/hex"
	"fmt"

	"github.com/rubinchain/rubin-node/consensus"
	"github.com/rubinchain/rubin-node/node/store"
)

// LocalMortgageCoinSource implements miner.MortgageCoinSource by
// scanning the UTXO set for the mortgage coin whose key-id matches an
// operator's own KeyStore. It re-scans on every call rather than
// caching, since the set changes every block and a branch miner only
// calls SelectStakeCoin once per template build.
type LocalMortgageCoinSource struct {
	DB      *store.DB
	KeyID20 [20]byte
}

func (s *LocalMortgageCoinSource) SelectStakeCoin(branchID uint32) (consensus.Outpoint, consensus.UtxoEntry, error) {
	set, err := s.DB.LoadUTXOSet()
	if err != nil {
		return consensus.Outpoint{}, consensus.UtxoEntry{}, err
	}
	for point, entry := range set {
		if entry.CovenantType != consensus.COV_TYPE_MORTGAGE_COIN {
			continue
		}
		ms, err := consensus.ParseMortgageScript(entry.CovenantData)
		if err != nil || ms.Kind != consensus.MORTGAGE_SCRIPT_COIN {
			continue
		}
		if ms.KeyID == s.KeyID20 {
			return point, entry, nil
		}
	}
	return consensus.Outpoint{}, consensus.UtxoEntry{}, fmt.Errorf("no mortgage coin owned by key-id %x on branch %d", s.KeyID20, branchID)
}

// keyID20FromHex truncates a KeyStore's 32-byte SHA3-256 key_id to the
// 20-byte form mortgage-coin covenant scripts embed, matching
// ParseMortgageScript's KeyID field width.
func keyID20FromHex(keyIDHex string) ([20]byte, error) {
	var out [20]byte
	raw, err := hex.DecodeString(keyIDHex)
	if err != nil {
		return out, fmt.Errorf("key_id_hex: %w", err)
	}
	if len(raw) < 20 {
		return out, fmt.Errorf("key_id too short: %d bytes", len(raw))
	}
	copy(out[:], raw[:20])
	return out, nil
}
