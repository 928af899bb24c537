package birdreport

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Keys published by the birdreport.cn web client.
const (
	PublicKeyBase64 = "MIGfMA0GCSqGSIb3DQEBAQUAA4GNADCBiQKBgQCvxXa98E1uWXnBzXkS2yHUfnBM6n3PCwLd" +
		"fIox03T91joBvjtoDqiQ5x3tTOfpHs3LtiqMMEafls6b0YWtgB1dse1W5m+FpeusVkCOkQxB4" +
		"SZDH6tuerIknnmB/Hsq5wgEkIvO5Pff9biig6AyoAkdWpSek/1/B7zYIepYY0lxKQIDAQAB"
	ResponseKey = "C8EB5514AF5ADDB94B2207B08C66601C"
	ResponseIV  = "55DD79C6F04E1A67"
)

// pkcs1Overhead is the minimum PKCS#1 v1.5 padding length per block.
const pkcs1Overhead = 11

// Cipher holds the immutable key material of the protocol. It has no mutable
// state and is safe for concurrent use.
type Cipher struct {
	pub    *rsa.PublicKey
	block  cipher.Block
	iv     []byte
	random io.Reader
}

// NewCipher parses a base64 PKIX RSA public key and the AES key/IV used for
// response decryption.
func NewCipher(publicKeyB64, aesKey, aesIV string) (*Cipher, error) {
	der, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want RSA", parsed)
	}
	return newCipher(pub, []byte(aesKey), []byte(aesIV))
}

// DefaultCipher returns the cipher configured with the service's published keys.
func DefaultCipher() (*Cipher, error) {
	return NewCipher(PublicKeyBase64, ResponseKey, ResponseIV)
}

func newCipher(pub *rsa.PublicKey, aesKey, iv []byte) (*Cipher, error) {
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("aes key: %w", err)
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("aes iv must be %d bytes, got %d", block.BlockSize(), len(iv))
	}
	return &Cipher{pub: pub, block: block, iv: append([]byte(nil), iv...), random: rand.Reader}, nil
}

// ChunkSize is the largest plaintext block one RSA operation can carry.
func (c *Cipher) ChunkSize() int {
	return c.pub.Size() - pkcs1Overhead
}

// EncryptRequest splits the UTF-8 plaintext into ChunkSize blocks, encrypts
// each with RSA PKCS#1 v1.5, and base64-encodes the concatenated ciphertext.
func (c *Cipher) EncryptRequest(plaintext string) (string, error) {
	data := []byte(plaintext)
	chunk := c.ChunkSize()
	out := make([]byte, 0, (len(data)/chunk+1)*c.pub.Size())
	for start := 0; start < len(data); start += chunk {
		end := min(start+chunk, len(data))
		//nolint:staticcheck // the endpoint only accepts PKCS#1 v1.5 blocks
		block, err := rsa.EncryptPKCS1v15(c.random, c.pub, data[start:end])
		if err != nil {
			return "", fmt.Errorf("rsa encrypt block at %d: %w", start, err)
		}
		out = append(out, block...)
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptResponse base64-decodes and AES-CBC decrypts a response "data"
// field, removing PKCS#7 padding.
func (c *Cipher) DecryptResponse(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode response data: %w", err)
	}
	size := c.block.BlockSize()
	if len(raw) == 0 || len(raw)%size != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of %d", len(raw), size)
	}
	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(plain, raw)
	return pkcs7Unpad(plain, size)
}

// encryptResponse is the inverse of DecryptResponse, used by tests and the
// local fake server.
func (c *Cipher) encryptResponse(plain []byte) string {
	padded := pkcs7Pad(plain, c.block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out)
}

func pkcs7Pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("pkcs7: empty input")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > size || n > len(data) {
		return nil, fmt.Errorf("pkcs7: invalid padding length %d", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("pkcs7: inconsistent padding")
		}
	}
	return data[:len(data)-n], nil
}

// Sign returns the hex MD5 digest of params, requestID and timestamp joined
// without separators.
func Sign(params, requestID, timestamp string) string {
	sum := md5.Sum([]byte(params + requestID + timestamp))
	return hex.EncodeToString(sum[:])
}
