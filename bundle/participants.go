package bundle

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ruteri/threshold-secret-registry/cryptoutils"
	"github.com/ruteri/threshold-secret-registry/interfaces"
	"sigs.k8s.io/yaml"
)

// ParticipantEntry is one line of a participants file. When Signature is set
// the entry is a signed key announcement and is verified on load.
type ParticipantEntry struct {
	Address   interfaces.Address `json:"address"`
	Pubkey    string             `json:"pubkey"`
	Signature string             `json:"signature,omitempty"`
}

// LoadParticipants reads a YAML or JSON participants file.
func LoadParticipants(path string) ([]Recipient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read participants file: %w", err)
	}
	return ParseParticipants(data)
}

// ParseParticipants decodes a list of participant entries, keeping file order.
// Zero, duplicate or missing entries fail the whole list. An entry whose key
// is malformed, or whose announcement does not verify, is returned with
// KeyErr set.
func ParseParticipants(data []byte) ([]Recipient, error) {
	jsonBytes, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert participants YAML to JSON: %w", err)
	}

	var entries []ParticipantEntry
	if err := json.Unmarshal(jsonBytes, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: participants list is empty", ErrInconsistentBundle)
	}

	recipients := make([]Recipient, 0, len(entries))
	seen := make(map[interfaces.Address]bool, len(entries))
	for i, e := range entries {
		if e.Address == interfaces.ZeroAddress {
			return nil, fmt.Errorf("entry %d: %w", i, interfaces.ErrZeroParticipant)
		}
		if seen[e.Address] {
			return nil, fmt.Errorf("entry %d: %w: %s", i, interfaces.ErrDuplicateParticipant, e.Address.Hex())
		}
		seen[e.Address] = true

		pub, err := e.publicKey()
		if err != nil {
			recipients = append(recipients, Recipient{
				Address: e.Address,
				KeyErr:  fmt.Errorf("entry %d (%s): %w", i, e.Address.Hex(), err),
			})
			continue
		}
		recipients = append(recipients, Recipient{Address: e.Address, Pubkey: pub})
	}
	return recipients, nil
}

func (e ParticipantEntry) publicKey() ([]byte, error) {
	if e.Signature != "" {
		announcement := cryptoutils.KeyAnnouncement{
			Address:          e.Address,
			EncryptionPubkey: e.Pubkey,
			Signature:        e.Signature,
		}
		pub, err := announcement.Verify()
		if err != nil {
			return nil, err
		}
		return []byte(cryptoutils.PublicKeyHex(pub)), nil
	}

	pub, err := cryptoutils.ParsePublicKey([]byte(e.Pubkey))
	if err != nil {
		return nil, err
	}
	return []byte(cryptoutils.PublicKeyHex(pub)), nil
}
