package crypto

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}
	if len(signer.PrivateKeyHex()) != 64 {
		t.Errorf("private key hex length = %d, want 64", len(signer.PrivateKeyHex()))
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer1, _ := GenerateKey()
	privHex := signer1.PrivateKeyHex()

	for _, in := range []string{privHex, "0x" + privHex, " " + privHex + "\n"} {
		signer2, err := FromPrivateKeyHex(in)
		if err != nil {
			t.Fatalf("load %q: %v", in, err)
		}
		if signer2.Address() != signer1.Address() {
			t.Errorf("address = %s, want %s", signer2.Address().Hex(), signer1.Address().Hex())
		}
		if signer2.PrivateKeyHex() != privHex {
			t.Errorf("private key mismatch after reload")
		}
	}

	if _, err := FromPrivateKeyHex("zz"); err == nil {
		t.Error("garbage key accepted")
	}
}

func TestSignAndRecover(t *testing.T) {
	signer, _ := GenerateKey()
	digest := eth_crypto.Keccak256([]byte("obmonitor"))

	sig, err := signer.Sign(digest)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if len(sig) != SignatureLength {
		t.Errorf("signature length = %d, want %d", len(sig), SignatureLength)
	}

	got, err := RecoverAddress(digest, sig)
	if err != nil {
		t.Fatalf("failed to recover address: %v", err)
	}
	if got != signer.Address() {
		t.Errorf("recovered %s, want %s", got.Hex(), signer.Address().Hex())
	}

	// same signature over another digest names someone else
	other := eth_crypto.Keccak256([]byte("other"))
	if got, err := RecoverAddress(other, sig); err == nil && got == signer.Address() {
		t.Error("signature recovered the signer for a different digest")
	}

	if _, err := signer.Sign([]byte("short")); err == nil {
		t.Error("signed a digest that is not 32 bytes")
	}
}

func TestRecoverAddress_Invalid(t *testing.T) {
	signer, _ := GenerateKey()
	digest := eth_crypto.Keccak256([]byte("x"))
	sig, _ := signer.Sign(digest)

	badV := append([]byte(nil), sig...)
	badV[64] = 9

	tests := []struct {
		name   string
		digest []byte
		sig    []byte
	}{
		{"short signature", digest, sig[:64]},
		{"short digest", []byte("short"), sig},
		{"bad recovery id", digest, badV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RecoverAddress(tt.digest, tt.sig); !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("err = %v, want ErrInvalidSignature", err)
			}
		})
	}
}

func TestKeccak256Hasher(t *testing.T) {
	h := NewKeccak256()
	h.Write([]byte("Hello, "))
	h.Write([]byte("monitor"))
	got := h.Sum()

	want := eth_crypto.Keccak256Hash([]byte("Hello, monitor"))
	if got != want {
		t.Errorf("hasher = %s, want %s", got.Hex(), want.Hex())
	}
}
