package crypto

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Well-known test key (hardhat account #0).
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != testKey {
		t.Fatalf("round trip mismatch: %s", got)
	}
	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Fatal("expected failure with wrong password")
	}
}

func TestLoadKeySources(t *testing.T) {
	key, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKey})
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	if NewTxSigner(key, 137).Address() != testAddr {
		t.Fatal("raw key resolved to the wrong address")
	}

	blob, err := EncryptKey(testKey, "pw")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	key, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	if err != nil {
		t.Fatalf("load encrypted: %v", err)
	}
	if NewTxSigner(key, 137).Address() != testAddr {
		t.Fatal("encrypted key resolved to the wrong address")
	}

	if _, err := LoadKey(KeyConfig{}); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestTxSignerSigns(t *testing.T) {
	key, err := LoadKey(KeyConfig{RawPrivateKey: testKey})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s := NewTxSigner(key, 137)
	to := common.HexToAddress("0x794a61358D6845594F94dc1DB02A252b5b4814aD")
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, To: &to, Gas: 21000, GasPrice: big.NewInt(30e9), Value: big.NewInt(0)})

	signed, err := s.Sign(tx)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	from, err := s.Sender(signed)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	if from != testAddr {
		t.Fatalf("recovered %s, want %s", from.Hex(), testAddr.Hex())
	}
	if signed.ChainId().Uint64() != 137 {
		t.Fatalf("unexpected chain id %s", signed.ChainId())
	}
}
