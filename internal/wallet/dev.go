package wallet

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DevAccountCount is the number of deterministic development accounts,
// matching the ten accounts a local Ganache node exposes.
const DevAccountCount = 10

// DevAccount is a deterministic development account. Never fund one on a
// public network: its key is derivable by anyone.
type DevAccount struct {
	Index   int
	Address common.Address
	Key     *ecdsa.PrivateKey
}

// DevAccounts returns accounts[0..n-1]. Account i has private key
// keccak256("tkn-dev-account-<i>").
func DevAccounts(n int) ([]DevAccount, error) {
	out := make([]DevAccount, 0, n)
	for i := 0; i < n; i++ {
		seed := crypto.Keccak256([]byte(fmt.Sprintf("tkn-dev-account-%d", i)))
		key, err := crypto.ToECDSA(seed)
		if err != nil {
			return nil, fmt.Errorf("dev account %d: %w", i, err)
		}
		out = append(out, DevAccount{
			Index:   i,
			Address: crypto.PubkeyToAddress(key.PublicKey),
			Key:     key,
		})
	}
	return out, nil
}

// DevAddresses returns only the addresses of DevAccounts(n).
func DevAddresses(n int) ([]common.Address, error) {
	accts, err := DevAccounts(n)
	if err != nil {
		return nil, err
	}
	addrs := make([]common.Address, len(accts))
	for i, a := range accts {
		addrs[i] = a.Address
	}
	return addrs, nil
}

// HexKey returns the account's private key as hex without 0x.
func (a DevAccount) HexKey() string {
	return fmt.Sprintf("%x", crypto.FromECDSA(a.Key))
}

// Signer returns an in-memory signer for the account.
func (a DevAccount) Signer() *KeySigner { return NewKeySigner(a.Key) }
