package trading

import (
	"encoding/base64"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

// Wallet holds the signing key.
type Wallet struct {
	key solanago.PrivateKey
}

// NewWallet parses a base58 encoded 64-byte private key.
func NewWallet(privateKey string) (*Wallet, error) {
	key, err := solanago.PrivateKeyFromBase58(privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Wallet{key: key}, nil
}

// NewRandomWallet creates a throwaway wallet.
func NewRandomWallet() (*Wallet, error) {
	key, err := solanago.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}
	return &Wallet{key: key}, nil
}

// PublicKey returns the base58 address.
func (w *Wallet) PublicKey() string {
	return w.key.PublicKey().String()
}

func (w *Wallet) publicKey() solanago.PublicKey {
	return w.key.PublicKey()
}

// sign signs tx and returns it base64 encoded for sendTransaction. Any
// placeholder signatures are replaced.
func (w *Wallet) sign(tx *solanago.Transaction) (string, error) {
	pub := w.key.PublicKey()
	tx.Signatures = nil
	_, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(pub) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
