package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// TxSigner signs transactions for one wallet on one chain.
type TxSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
}

// NewTxSigner creates a signer for chainID.
func NewTxSigner(key *ecdsa.PrivateKey, chainID uint64) *TxSigner {
	return &TxSigner{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(new(big.Int).SetUint64(chainID)),
	}
}

// Address returns the wallet address derived from the key.
func (s *TxSigner) Address() common.Address {
	return s.address
}

// Sign signs tx.
func (s *TxSigner) Sign(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, s.signer, s.key)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign tx: %w: %v", domain.ErrSigningFailed, err)
	}
	return signed, nil
}

// Sender recovers the sender of a signed transaction.
func (s *TxSigner) Sender(tx *types.Transaction) (common.Address, error) {
	return types.Sender(s.signer, tx)
}
