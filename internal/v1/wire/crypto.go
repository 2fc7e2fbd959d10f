package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

var (
	ErrShortCiphertext = errors.New("wire: ciphertext too short")
	ErrBadPadding      = errors.New("wire: bad pkcs7 padding")
)

// GenerateKeyPair produces a fresh X25519 keypair. The server generates one
// per connection during the handshake.
func GenerateKeyPair() (public, secret [32]byte, err error) {
	if _, err = rand.Read(secret[:]); err != nil {
		return public, secret, err
	}
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return public, secret, err
	}
	copy(public[:], pub)
	return public, secret, nil
}

// SharedSecret runs X25519 ECDH between our secret key and the peer's public
// key. Low-order peer points are rejected.
func SharedSecret(secret, peerPublic [32]byte) ([32]byte, error) {
	var shared [32]byte
	s, err := curve25519.X25519(secret[:], peerPublic[:])
	if err != nil {
		return shared, fmt.Errorf("wire: ecdh: %w", err)
	}
	copy(shared[:], s)
	return shared, nil
}

// Encrypt seals plaintext as IV || AES-256-CBC(key, pkcs7(plaintext)) with a
// fresh random IV per call.
func Encrypt(key [32]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

// Decrypt opens a frame sealed by Encrypt: reads the IV prefix, decrypts the
// remainder, and strips the padding.
func Decrypt(key [32]byte, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < 2*aes.BlockSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortCiphertext, len(ciphertext))
	}
	body := ciphertext[aes.BlockSize:]
	if len(body)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: body length %d not block aligned", ErrShortCiphertext, len(body))
	}
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, ciphertext[:aes.BlockSize]).CryptBlocks(plain, body)
	return pkcs7Unpad(plain, aes.BlockSize)
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	padded := make([]byte, len(b)+n)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, ErrBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, ErrBadPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-n], nil
}
