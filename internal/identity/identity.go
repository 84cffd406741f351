package identity

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/logging"
	"github.com/animus-hq/animus/internal/storage"
)

// Manager owns the agent's key bundle. Create generates and stores it,
// Unlock decrypts it from the store, and Sign produces the hybrid
// signature attached to outbound messages.
type Manager struct {
	store  *storage.IdentityStore
	keys   *KeyBundle
	logger *logging.Logger
}

// NewManager creates an identity manager. The bundle stays locked until
// Create or Unlock succeeds.
func NewManager(store *storage.IdentityStore) *Manager {
	return &Manager{
		store:  store,
		logger: logging.Component("identity"),
	}
}

// Create generates a fresh key bundle, encrypts it under the passphrase,
// and persists it. Fails if an identity already exists.
func (m *Manager) Create(passphrase string) error {
	exists, err := m.store.Exists()
	if err != nil {
		return err
	}
	if exists {
		return core.ErrIdentityExists
	}

	bundle, err := GenerateKeyBundle()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrKeyGenerationFailed, err)
	}

	serialized, err := bundle.Serialize(passphrase)
	if err != nil {
		return err
	}
	data, err := json.Marshal(serialized)
	if err != nil {
		return fmt.Errorf("failed to encode key bundle: %w", err)
	}
	if err := m.store.SaveBundle(string(data)); err != nil {
		return err
	}

	m.keys = bundle
	m.logger.Info("identity created, fingerprint %s", m.Fingerprint())
	return nil
}

// Unlock loads and decrypts the stored bundle.
func (m *Manager) Unlock(passphrase string) error {
	data, err := m.store.LoadBundle()
	if err != nil {
		if err == core.ErrRecordNotFound {
			return core.ErrIdentityNotFound
		}
		return err
	}

	var serialized SerializedKeyBundle
	if err := json.Unmarshal([]byte(data), &serialized); err != nil {
		return fmt.Errorf("failed to decode key bundle: %w", err)
	}

	bundle, err := serialized.Deserialize(passphrase)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrDecryptionFailed, err)
	}

	m.keys = bundle
	m.logger.Info("identity unlocked, fingerprint %s", m.Fingerprint())
	return nil
}

// Unlocked reports whether the key bundle is available in memory.
func (m *Manager) Unlocked() bool {
	return m.keys != nil
}

// Fingerprint is a short stable identifier derived from the classical
// public key. Empty while locked.
func (m *Manager) Fingerprint() string {
	if m.keys == nil {
		return ""
	}
	sum := sha256.Sum256(m.keys.Ed25519Public)
	return hex.EncodeToString(sum[:8])
}

// Sign produces the hybrid signature for outbound messages: the ed25519
// and ML-DSA signatures, base64-encoded and dot-joined.
func (m *Manager) Sign(data []byte) (string, error) {
	if m.keys == nil {
		return "", core.ErrIdentityNotFound
	}
	edSig, mldsaSig, err := m.keys.SignHybrid(data)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(edSig) + "." +
		base64.StdEncoding.EncodeToString(mldsaSig), nil
}

// Verify checks a signature produced by Sign against this identity.
func (m *Manager) Verify(data []byte, signature string) bool {
	if m.keys == nil {
		return false
	}
	parts := strings.SplitN(signature, ".", 2)
	if len(parts) != 2 {
		return false
	}
	edSig, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	mldsaSig, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	return m.keys.VerifyHybrid(data, edSig, mldsaSig)
}

// PublicKeys exports the public half of the bundle for sharing.
func (m *Manager) PublicKeys() (map[string]string, error) {
	if m.keys == nil {
		return nil, core.ErrIdentityNotFound
	}
	mldsaPub, _ := m.keys.MLDSAPublic.MarshalBinary()
	mlkemPub, _ := m.keys.MLKEMPublic.MarshalBinary()
	return map[string]string{
		"ed25519":  base64.StdEncoding.EncodeToString(m.keys.Ed25519Public),
		"mldsa65":  base64.StdEncoding.EncodeToString(mldsaPub),
		"mlkem768": base64.StdEncoding.EncodeToString(mlkemPub),
	}, nil
}
