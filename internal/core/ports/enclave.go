package ports

import "context"

// Sealer binds data to the enclave identity.
type Sealer interface {
	Seal(data []byte) ([]byte, error)
	Unseal(sealed []byte) ([]byte, error)
}

// Enclave is the trusted execution environment the node runs in. The core
// invokes it but never looks inside the evidence or keys it returns.
type Enclave interface {
	Sealer

	// Type names the enclave kind, e.g. "simulated-enclave".
	Type() string
	// Measurement identifies the code running in the enclave.
	Measurement() []byte
	// Attest produces evidence binding claims to the enclave measurement.
	Attest(ctx context.Context, claims []byte) ([]byte, error)
	// GenerateKey returns a new serialized key. keyType is opaque to the core.
	GenerateKey(name, keyType string) (*GeneratedKey, error)
}

// GeneratedKey is an opaque key produced by the enclave.
type GeneratedKey struct {
	Name string
	// Private is stored in the policy store and never leaves the node.
	Private []byte
	// Public is sent to certifier services; empty for symmetric keys.
	Public []byte
}

// Key types requested by the trust data.
const (
	KeyTypeSigning   = "ed25519"
	KeyTypeSymmetric = "xchacha20-poly1305"
)
