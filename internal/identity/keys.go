// Package identity holds the agent's cryptographic identity: the key
// bundle that signs outbound messages and the last will. Private keys
// are encrypted at rest with a passphrase-derived key.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeyBundle is the full key material for one agent identity: a classical
// signing pair, a post-quantum signing pair (ML-DSA-65, FIPS 204), and a
// post-quantum KEM pair (ML-KEM-768, FIPS 203) for sealed exports.
type KeyBundle struct {
	Ed25519Public  ed25519.PublicKey
	Ed25519Private ed25519.PrivateKey

	MLDSAPublic  mldsa65.PublicKey
	MLDSAPrivate mldsa65.PrivateKey

	MLKEMPublic  mlkem768.PublicKey
	MLKEMPrivate mlkem768.PrivateKey
}

// SerializedKeyBundle is the storable form: public keys in the clear,
// private keys encrypted under the passphrase.
type SerializedKeyBundle struct {
	Ed25519Public string `json:"ed25519_public"`
	MLDSAPublic   string `json:"mldsa_public"`
	MLKEMPublic   string `json:"mlkem_public"`

	EncryptedPrivateKeys string `json:"encrypted_private_keys"`

	Salt      string `json:"salt"`
	Algorithm string `json:"algorithm"`
}

// GenerateKeyBundle creates fresh key material. Called once, when the
// agent is first configured.
func GenerateKeyBundle() (*KeyBundle, error) {
	bundle := &KeyBundle{}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ed25519 generation failed: %w", err)
	}
	bundle.Ed25519Public = pub
	bundle.Ed25519Private = priv

	mldsaPub, mldsaPriv, err := mldsa65.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ml-dsa generation failed: %w", err)
	}
	bundle.MLDSAPublic = *mldsaPub
	bundle.MLDSAPrivate = *mldsaPriv

	mlkemPub, mlkemPriv, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ml-kem generation failed: %w", err)
	}
	bundle.MLKEMPublic = *mlkemPub
	bundle.MLKEMPrivate = *mlkemPriv

	return bundle, nil
}

// argonKey derives the at-rest encryption key from the passphrase.
func argonKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 3, 64*1024, 4, 32)
}

// Serialize encrypts the private keys under the passphrase and returns
// the storable bundle.
func (kb *KeyBundle) Serialize(passphrase string) (*SerializedKeyBundle, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("salt generation failed: %w", err)
	}

	aead, err := chacha20poly1305.NewX(argonKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("cipher setup failed: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce generation failed: %w", err)
	}
	encrypted := aead.Seal(nonce, nonce, packPrivateKeys(kb), nil)

	mldsaPubBytes, _ := kb.MLDSAPublic.MarshalBinary()
	mlkemPubBytes, _ := kb.MLKEMPublic.MarshalBinary()

	return &SerializedKeyBundle{
		Ed25519Public:        base64.StdEncoding.EncodeToString(kb.Ed25519Public),
		MLDSAPublic:          base64.StdEncoding.EncodeToString(mldsaPubBytes),
		MLKEMPublic:          base64.StdEncoding.EncodeToString(mlkemPubBytes),
		EncryptedPrivateKeys: base64.StdEncoding.EncodeToString(encrypted),
		Salt:                 base64.StdEncoding.EncodeToString(salt),
		Algorithm:            "argon2id",
	}, nil
}

// Deserialize decrypts and reconstructs the bundle. A wrong passphrase
// fails the AEAD open.
func (skb *SerializedKeyBundle) Deserialize(passphrase string) (*KeyBundle, error) {
	salt, err := base64.StdEncoding.DecodeString(skb.Salt)
	if err != nil {
		return nil, fmt.Errorf("salt decode failed: %w", err)
	}

	aead, err := chacha20poly1305.NewX(argonKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("cipher setup failed: %w", err)
	}

	encrypted, err := base64.StdEncoding.DecodeString(skb.EncryptedPrivateKeys)
	if err != nil {
		return nil, fmt.Errorf("ciphertext decode failed: %w", err)
	}
	if len(encrypted) < aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce := encrypted[:aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, encrypted[aead.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong passphrase?): %w", err)
	}

	bundle, err := unpackPrivateKeys(plaintext)
	if err != nil {
		return nil, err
	}

	edPub, err := base64.StdEncoding.DecodeString(skb.Ed25519Public)
	if err != nil {
		return nil, fmt.Errorf("ed25519 public decode failed: %w", err)
	}
	bundle.Ed25519Public = edPub

	mldsaPubBytes, err := base64.StdEncoding.DecodeString(skb.MLDSAPublic)
	if err != nil {
		return nil, fmt.Errorf("ml-dsa public decode failed: %w", err)
	}
	mldsaPub := new(mldsa65.PublicKey)
	if err := mldsaPub.UnmarshalBinary(mldsaPubBytes); err != nil {
		return nil, fmt.Errorf("ml-dsa public unmarshal failed: %w", err)
	}
	bundle.MLDSAPublic = *mldsaPub

	mlkemPubBytes, err := base64.StdEncoding.DecodeString(skb.MLKEMPublic)
	if err != nil {
		return nil, fmt.Errorf("ml-kem public decode failed: %w", err)
	}
	mlkemPub := new(mlkem768.PublicKey)
	if err := mlkemPub.Unpack(mlkemPubBytes); err != nil {
		return nil, fmt.Errorf("ml-kem public unpack failed: %w", err)
	}
	bundle.MLKEMPublic = *mlkemPub

	return bundle, nil
}

// packPrivateKeys lays the three private keys out as
// [len:4][key] triples in a fixed order.
func packPrivateKeys(kb *KeyBundle) []byte {
	edBytes := []byte(kb.Ed25519Private)
	mldsaBytes, _ := kb.MLDSAPrivate.MarshalBinary()
	mlkemBytes, _ := kb.MLKEMPrivate.MarshalBinary()

	buf := make([]byte, 12+len(edBytes)+len(mldsaBytes)+len(mlkemBytes))
	offset := 0
	for _, part := range [][]byte{edBytes, mldsaBytes, mlkemBytes} {
		writeLen(buf[offset:], len(part))
		offset += 4
		copy(buf[offset:], part)
		offset += len(part)
	}
	return buf
}

func unpackPrivateKeys(data []byte) (*KeyBundle, error) {
	next := func(offset int) ([]byte, int, error) {
		if offset+4 > len(data) {
			return nil, 0, errors.New("private key data truncated")
		}
		n := readLen(data[offset:])
		offset += 4
		if offset+n > len(data) {
			return nil, 0, errors.New("private key data truncated")
		}
		return data[offset : offset+n], offset + n, nil
	}

	bundle := &KeyBundle{}
	edBytes, offset, err := next(0)
	if err != nil {
		return nil, err
	}
	bundle.Ed25519Private = make(ed25519.PrivateKey, len(edBytes))
	copy(bundle.Ed25519Private, edBytes)

	mldsaBytes, offset, err := next(offset)
	if err != nil {
		return nil, err
	}
	mldsaPriv := new(mldsa65.PrivateKey)
	if err := mldsaPriv.UnmarshalBinary(mldsaBytes); err != nil {
		return nil, fmt.Errorf("ml-dsa private unmarshal failed: %w", err)
	}
	bundle.MLDSAPrivate = *mldsaPriv

	mlkemBytes, _, err := next(offset)
	if err != nil {
		return nil, err
	}
	mlkemPriv := new(mlkem768.PrivateKey)
	if err := mlkemPriv.Unpack(mlkemBytes); err != nil {
		return nil, fmt.Errorf("ml-kem private unpack failed: %w", err)
	}
	bundle.MLKEMPrivate = *mlkemPriv

	return bundle, nil
}

func writeLen(buf []byte, length int) {
	buf[0] = byte(length >> 24)
	buf[1] = byte(length >> 16)
	buf[2] = byte(length >> 8)
	buf[3] = byte(length)
}

func readLen(buf []byte) int {
	return int(buf[0])<<24 | int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3])
}

// SignHybrid signs data with both schemes. A message is only considered
// signed when both signatures verify.
func (kb *KeyBundle) SignHybrid(data []byte) (ed25519Sig, mldsaSig []byte, err error) {
	ed25519Sig = ed25519.Sign(kb.Ed25519Private, data)

	mldsaSig = make([]byte, mldsa65.SignatureSize)
	if err := mldsa65.SignTo(&kb.MLDSAPrivate, data, nil, false, mldsaSig); err != nil {
		return nil, nil, fmt.Errorf("ml-dsa signing failed: %w", err)
	}
	return ed25519Sig, mldsaSig, nil
}

// VerifyHybrid verifies both signatures against the bundle's public keys.
func (kb *KeyBundle) VerifyHybrid(data, ed25519Sig, mldsaSig []byte) bool {
	return ed25519.Verify(kb.Ed25519Public, data, ed25519Sig) &&
		mldsa65.Verify(&kb.MLDSAPublic, data, nil, mldsaSig)
}

// SharedSecretSize is the ML-KEM shared secret length.
const SharedSecretSize = 32

// CiphertextSize is the ML-KEM-768 ciphertext length.
const CiphertextSize = 1088

// Encapsulate derives a shared secret for the recipient's public key,
// used to seal exports (the last will) to an operator.
func Encapsulate(recipientPublicKey *mlkem768.PublicKey) (ciphertext, sharedSecret []byte, err error) {
	ct := make([]byte, CiphertextSize)
	ss := make([]byte, SharedSecretSize)

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, nil, fmt.Errorf("seed generation failed: %w", err)
	}
	recipientPublicKey.EncapsulateTo(ct, ss, seed)
	return ct, ss, nil
}

// Decapsulate recovers a shared secret sealed to this bundle.
func (kb *KeyBundle) Decapsulate(ciphertext []byte) ([]byte, error) {
	ss := make([]byte, SharedSecretSize)
	kb.MLKEMPrivate.DecapsulateTo(ss, ciphertext)
	return ss, nil
}
