package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"

	"github.com/DogukanGun/XReplyAgent/internal/chains"
)

// KeyPair is a freshly generated keypair in the family's stored encoding.
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// GenerateKeyPair creates a keypair for the family. Keys are stored the way
// the registration bot stores them: EVM and Aptos private keys as bare hex,
// Solana keys as base58.
func GenerateKeyPair(f chains.Family) (KeyPair, error) {
	switch f {
	case chains.FamilyEVM:
		key, err := crypto.GenerateKey()
		if err != nil {
			return KeyPair{}, fmt.Errorf("generate evm key: %w", err)
		}
		return KeyPair{
			PublicKey:  crypto.PubkeyToAddress(key.PublicKey).Hex(),
			PrivateKey: hex.EncodeToString(crypto.FromECDSA(key)),
		}, nil

	case chains.FamilySolana:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return KeyPair{}, fmt.Errorf("generate solana key: %w", err)
		}
		return KeyPair{PublicKey: base58.Encode(pub), PrivateKey: base58.Encode(priv)}, nil

	case chains.FamilyAptos:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return KeyPair{}, fmt.Errorf("generate aptos key: %w", err)
		}
		return KeyPair{
			PublicKey:  AptosAddress(pub),
			PrivateKey: hex.EncodeToString(priv.Seed()),
		}, nil
	}
	return KeyPair{}, fmt.Errorf("unsupported family %q", f)
}

// AptosAddress derives the single-signer account address for an ed25519
// public key: sha3-256(pubkey || 0x00), hex encoded with a 0x prefix.
func AptosAddress(pub ed25519.PublicKey) string {
	sum := sha3.Sum256(append(append([]byte{}, pub...), 0x00))
	return "0x" + hex.EncodeToString(sum[:])
}
