package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// PlaintextHash returns the hex SHA-256 of a serialized document
func PlaintextHash(plaintext []byte) string {
	sum := sha256.Sum256(plaintext)
	return hex.EncodeToString(sum[:])
}

// IntegrityVerifier proves that a blob decrypts back to the plaintext it was
// built from. It runs once before upload and once after.
type IntegrityVerifier struct {
	cipher *Cipher
}

// NewIntegrityVerifier creates a verifier that opens blobs with c
func NewIntegrityVerifier(c *Cipher) *IntegrityVerifier {
	return &IntegrityVerifier{cipher: c}
}

// VerifyLocal checks the blob still in memory against the expected hash
func (v *IntegrityVerifier) VerifyLocal(blob []byte, expectedHash string) error {
	actual, err := v.hashOf(blob)
	if err != nil {
		return &LocalVerificationError{ExpectedHash: expectedHash, Cause: err}
	}
	if actual != expectedHash {
		return &LocalVerificationError{ExpectedHash: expectedHash, ActualHash: actual}
	}
	return nil
}

// VerifyUploaded downloads name from store and checks it against the
// expected hash
func (v *IntegrityVerifier) VerifyUploaded(ctx context.Context, store ObjectStore, name string, expectedHash string) error {
	blob, err := store.Download(ctx, name)
	if err != nil {
		return &UploadVerificationError{Blob: name, ExpectedHash: expectedHash, Cause: err}
	}

	actual, err := v.hashOf(blob)
	if err != nil {
		return &UploadVerificationError{Blob: name, ExpectedHash: expectedHash, Cause: err}
	}
	if actual != expectedHash {
		return &UploadVerificationError{Blob: name, ExpectedHash: expectedHash, ActualHash: actual}
	}
	return nil
}

func (v *IntegrityVerifier) hashOf(blob []byte) (string, error) {
	plaintext, err := v.cipher.OpenPlaintext(blob)
	if err != nil {
		return "", err
	}
	if _, err := DecodeDocument(plaintext); err != nil {
		return "", err
	}
	return PlaintextHash(plaintext), nil
}
