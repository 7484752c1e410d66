package backup

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/scrypt"
)

// Blob layout: IV || GCM tag || ciphertext.
const (
	ivSize     = 16
	tagSize    = 16
	headerSize = ivSize + tagSize
	keySize    = 32
)

// scrypt parameters. Changing any of them makes existing blobs unreadable.
const (
	scryptN = 16384
	scryptR = 8
	scryptP = 1

	keySalt = "tenant-backup-salt"

	// MinPassphraseLength is the shortest accepted encryption passphrase
	MinPassphraseLength = 16
)

// DeriveKey derives the 32-byte AES key from the operator passphrase
func DeriveKey(passphrase string) ([]byte, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, NewConfigurationError(
			fmt.Sprintf("encryption passphrase must be at least %d characters", MinPassphraseLength), nil)
	}

	key, err := scrypt.Key([]byte(passphrase), []byte(keySalt), scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, NewEncryptionError("failed to derive encryption key", err)
	}
	return key, nil
}

// Cipher compresses and encrypts backup documents with AES-256-GCM. The key
// lives only inside the AEAD; a Cipher is built once per run.
type Cipher struct {
	aead   cipher.AEAD
	random io.Reader
}

// NewCipher derives the key from passphrase and builds a Cipher
func NewCipher(passphrase string) (*Cipher, error) {
	key, err := DeriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	defer clear(key)
	return NewCipherFromKey(key)
}

// NewCipherFromKey builds a Cipher from an already derived key
func NewCipherFromKey(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, NewEncryptionError(fmt.Sprintf("key must be %d bytes, got %d", keySize, len(key)), nil)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, NewEncryptionError("failed to create AES cipher", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, NewEncryptionError("failed to create GCM cipher", err)
	}

	return &Cipher{aead: aead, random: rand.Reader}, nil
}

// Encrypt seals data under a fresh random IV and returns IV || tag || ciphertext
func (c *Cipher) Encrypt(data []byte) ([]byte, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(c.random, iv); err != nil {
		return nil, NewEncryptionError("failed to generate IV", err)
	}

	// Seal appends the tag after the ciphertext.
	sealed := c.aead.Seal(nil, iv, data, nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	blob := make([]byte, 0, headerSize+len(ciphertext))
	blob = append(blob, iv...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)
	return blob, nil
}

// Decrypt splits the blob at the fixed offsets and opens it. Truncated or
// tampered blobs fail authentication and are reported as corrupt.
func (c *Cipher) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < headerSize {
		return nil, newCorruptBackupError("layout", fmt.Errorf("blob is %d bytes, shorter than the %d byte header", len(blob), headerSize))
	}

	iv := blob[:ivSize]
	tag := blob[ivSize:headerSize]
	ciphertext := blob[headerSize:]

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, newCorruptBackupError("authentication", err)
	}
	return plaintext, nil
}

// SealDocument serializes, compresses and encrypts doc. It returns the blob
// and the serialized plaintext the blob was built from.
func (c *Cipher) SealDocument(doc *BackupDocument) (blob []byte, plaintext []byte, err error) {
	plaintext, err = EncodeDocument(doc)
	if err != nil {
		return nil, nil, err
	}

	compressed, err := Compress(plaintext)
	if err != nil {
		return nil, nil, err
	}

	blob, err = c.Encrypt(compressed)
	if err != nil {
		return nil, nil, err
	}
	return blob, plaintext, nil
}

// OpenDocument is the exact inverse of SealDocument
func (c *Cipher) OpenDocument(blob []byte) (*BackupDocument, []byte, error) {
	plaintext, err := c.OpenPlaintext(blob)
	if err != nil {
		return nil, nil, err
	}

	doc, err := DecodeDocument(plaintext)
	if err != nil {
		return nil, nil, err
	}
	return doc, plaintext, nil
}

// OpenPlaintext decrypts and decompresses a blob without parsing it
func (c *Cipher) OpenPlaintext(blob []byte) ([]byte, error) {
	compressed, err := c.Decrypt(blob)
	if err != nil {
		return nil, err
	}
	return Decompress(compressed)
}

// Compress gzips data
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return nil, NewCompressionError("failed to create gzip writer", err)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, NewCompressionError("failed to write data to gzip writer", err)
	}

	if err := writer.Close(); err != nil {
		return nil, NewCompressionError("failed to close gzip writer", err)
	}

	return buf.Bytes(), nil
}

// Decompress gunzips data. Invalid input is corruption.
func Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, newCorruptBackupError("gzip", err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, newCorruptBackupError("gzip", err)
	}

	return decompressed, nil
}
