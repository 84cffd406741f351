package identity

import (
	"bytes"
	"testing"
)

func TestKeyBundleSerializeRoundTrip(t *testing.T) {
	bundle, err := GenerateKeyBundle()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	serialized, err := bundle.Serialize("passphrase")
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if serialized.Algorithm != "argon2id" {
		t.Fatalf("unexpected kdf: %s", serialized.Algorithm)
	}

	restored, err := serialized.Deserialize("passphrase")
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if !bytes.Equal(restored.Ed25519Private, bundle.Ed25519Private) {
		t.Fatal("ed25519 private key did not survive the round trip")
	}
	if !restored.MLDSAPublic.Equal(&bundle.MLDSAPublic) {
		t.Fatal("ml-dsa public key did not survive the round trip")
	}

	t.Run("wrong passphrase", func(t *testing.T) {
		if _, err := serialized.Deserialize("nope"); err == nil {
			t.Fatal("expected decryption to fail")
		}
	})
}

func TestHybridSignatures(t *testing.T) {
	bundle, err := GenerateKeyBundle()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	data := []byte("signed farewell")
	edSig, mldsaSig, err := bundle.SignHybrid(data)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !bundle.VerifyHybrid(data, edSig, mldsaSig) {
		t.Fatal("hybrid signature should verify")
	}
	if bundle.VerifyHybrid([]byte("other"), edSig, mldsaSig) {
		t.Fatal("hybrid signature should bind to the data")
	}

	t.Run("swapped halves fail", func(t *testing.T) {
		if bundle.VerifyHybrid(data, mldsaSig[:len(edSig)], mldsaSig) {
			t.Fatal("forged ed25519 half should fail verification")
		}
	})
}

func TestEncapsulation(t *testing.T) {
	recipient, err := GenerateKeyBundle()
	if err != nil {
		t.Fatalf("generate recipient: %v", err)
	}

	ciphertext, secret, err := Encapsulate(&recipient.MLKEMPublic)
	if err != nil {
		t.Fatalf("encapsulate: %v", err)
	}
	if len(ciphertext) != CiphertextSize {
		t.Fatalf("ciphertext size %d, want %d", len(ciphertext), CiphertextSize)
	}

	recovered, err := recipient.Decapsulate(ciphertext)
	if err != nil {
		t.Fatalf("decapsulate: %v", err)
	}
	if !bytes.Equal(secret, recovered) {
		t.Fatal("shared secrets disagree")
	}
}
