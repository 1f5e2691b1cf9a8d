// Package enclave provides the simulated enclave: software attestation and
// sealing keyed by a platform secret, for development and tests.
package enclave

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
)

// PlatformKeySize is the size of a simulated platform secret.
const PlatformKeySize = 32

const (
	evidenceFormat = "simulated-evidence/v1"
	sealInfo       = "certifier-seal/v1"
)

// Evidence is the attestation produced by a simulated enclave.
type Evidence struct {
	Format       string `json:"format"`
	EnclaveType  string `json:"enclave_type"`
	Measurement  []byte `json:"measurement"`
	ClaimsDigest []byte `json:"claims_digest"`
	MAC          []byte `json:"mac"`
}

// Simulated is an enclave whose trust root is a platform key shared with the
// simulated certifier authority.
type Simulated struct {
	platformKey []byte
	measurement []byte
	sealKey     []byte
}

var _ ports.Enclave = (*Simulated)(nil)

// NewSimulated creates a simulated enclave reporting measurement.
func NewSimulated(platformKey, measurement []byte) (*Simulated, error) {
	if len(platformKey) < PlatformKeySize {
		return nil, errors.NewDomainError(errors.ErrInvalidArgument,
			fmt.Errorf("platform key must be at least %d bytes, got %d", PlatformKeySize, len(platformKey)))
	}
	if len(measurement) == 0 {
		return nil, errors.NewDomainError(errors.ErrInvalidArgument, fmt.Errorf("empty measurement"))
	}
	sealKey, err := deriveSealKey(platformKey, measurement)
	if err != nil {
		return nil, err
	}
	return &Simulated{
		platformKey: bytes.Clone(platformKey),
		measurement: bytes.Clone(measurement),
		sealKey:     sealKey,
	}, nil
}

// deriveSealKey binds the sealing key to both the platform and the code
// measurement, so another measurement cannot unseal.
func deriveSealKey(platformKey, measurement []byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, platformKey, measurement, []byte(sealInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}
	return key, nil
}

// Type implements ports.Enclave.
func (s *Simulated) Type() string { return ports.EnclaveSimulated }

// Measurement implements ports.Enclave.
func (s *Simulated) Measurement() []byte { return bytes.Clone(s.measurement) }

// Attest returns JSON evidence over the SHA-256 digest of claims.
func (s *Simulated) Attest(ctx context.Context, claims []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(claims)
	ev := Evidence{
		Format:       evidenceFormat,
		EnclaveType:  ports.EnclaveSimulated,
		Measurement:  bytes.Clone(s.measurement),
		ClaimsDigest: digest[:],
	}
	ev.MAC = evidenceMAC(s.platformKey, &ev)
	out, err := json.Marshal(&ev)
	if err != nil {
		return nil, fmt.Errorf("encode evidence: %w", err)
	}
	return out, nil
}

func evidenceMAC(platformKey []byte, ev *Evidence) []byte {
	mac := hmac.New(sha256.New, platformKey)
	for _, part := range [][]byte{[]byte(ev.Format), []byte(ev.EnclaveType), ev.Measurement, ev.ClaimsDigest} {
		fmt.Fprintf(mac, "%d:", len(part))
		mac.Write(part)
	}
	return mac.Sum(nil)
}

// VerifyEvidence checks evidence produced by a simulated enclave sharing
// platformKey and bound to claims. It returns the attested measurement.
func VerifyEvidence(platformKey, evidence, claims []byte) ([]byte, error) {
	var ev Evidence
	if err := json.Unmarshal(evidence, &ev); err != nil {
		return nil, fmt.Errorf("decode evidence: %w", err)
	}
	if ev.Format != evidenceFormat {
		return nil, fmt.Errorf("unsupported evidence format %q", ev.Format)
	}
	if !hmac.Equal(ev.MAC, evidenceMAC(platformKey, &ev)) {
		return nil, fmt.Errorf("evidence MAC mismatch")
	}
	digest := sha256.Sum256(claims)
	if !hmac.Equal(ev.ClaimsDigest, digest[:]) {
		return nil, fmt.Errorf("evidence does not cover the request claims")
	}
	return ev.Measurement, nil
}

// Seal encrypts data with XChaCha20-Poly1305. The output is nonce || ciphertext.
func (s *Simulated) Seal(data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.sealKey)
	if err != nil {
		return nil, errors.NewDomainError(errors.ErrSealFailed, err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(data)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.NewDomainError(errors.ErrSealFailed, fmt.Errorf("generate nonce: %w", err))
	}
	return aead.Seal(nonce, nonce, data, s.measurement), nil
}

// Unseal reverses Seal. Tampered data or a different measurement fails with
// ErrSealFailed.
func (s *Simulated) Unseal(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.sealKey)
	if err != nil {
		return nil, errors.NewDomainError(errors.ErrSealFailed, err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.NewDomainError(errors.ErrSealFailed, fmt.Errorf("sealed data too short"))
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, s.measurement)
	if err != nil {
		return nil, errors.NewDomainError(errors.ErrSealFailed, fmt.Errorf("unseal: %w", err))
	}
	return plaintext, nil
}

// GenerateKey creates an ed25519 key pair for signing keys and 32 random
// bytes for symmetric keys.
func (s *Simulated) GenerateKey(name, keyType string) (*ports.GeneratedKey, error) {
	switch keyType {
	case ports.KeyTypeSigning:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", name, err)
		}
		return &ports.GeneratedKey{Name: name, Private: priv, Public: pub}, nil
	case ports.KeyTypeSymmetric:
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate %s: %w", name, err)
		}
		return &ports.GeneratedKey{Name: name, Private: key}, nil
	default:
		return nil, errors.NewDomainError(errors.ErrInvalidArgument, fmt.Errorf("unsupported key type %q", keyType))
	}
}

// LoadPlatformKey reads a hex-encoded platform key from path.
func LoadPlatformKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read platform key: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode platform key %s: %w", path, err)
	}
	if len(key) < PlatformKeySize {
		return nil, fmt.Errorf("platform key %s is %d bytes, need %d", path, len(key), PlatformKeySize)
	}
	return key, nil
}

// GeneratePlatformKey writes a new hex-encoded platform key to path with mode
// 0600. An existing file is left untouched.
func GeneratePlatformKey(path string) ([]byte, error) {
	key := make([]byte, PlatformKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate platform key: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create platform key: %w", err)
	}
	if _, err := f.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("write platform key: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("write platform key: %w", err)
	}
	return key, nil
}
