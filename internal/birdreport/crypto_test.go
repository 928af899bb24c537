package birdreport

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func testPrivateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 1024)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	ci, err := newCipher(&testPrivateKey(t).PublicKey, []byte(ResponseKey), []byte(ResponseIV))
	if err != nil {
		t.Fatalf("newCipher: %v", err)
	}
	return ci
}

// decryptChunks reverses EncryptRequest using the private key.
func decryptChunks(t *testing.T, key *rsa.PrivateKey, body string) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	size := key.PublicKey.Size()
	if len(raw)%size != 0 {
		t.Fatalf("ciphertext length %d not a multiple of %d", len(raw), size)
	}
	var out []byte
	for start := 0; start < len(raw); start += size {
		plain, err := rsa.DecryptPKCS1v15(nil, key, raw[start:start+size])
		if err != nil {
			t.Fatalf("decrypt block %d: %v", start/size, err)
		}
		out = append(out, plain...)
	}
	return string(out)
}

func TestDefaultCipherParsesPublishedKey(t *testing.T) {
	ci, err := DefaultCipher()
	if err != nil {
		t.Fatalf("DefaultCipher: %v", err)
	}
	if ci.ChunkSize() != 117 {
		t.Fatalf("expected 117-byte chunks for a 1024-bit key, got %d", ci.ChunkSize())
	}
}

func TestChunkedRSARoundTrip(t *testing.T) {
	ci := testCipher(t)
	key := testPrivateKey(t)
	chunk := ci.ChunkSize()
	lengths := []int{0, 1, chunk - 1, chunk, chunk + 1, 2 * chunk, 2*chunk + 5, 1024, 4096, 6000}
	for _, n := range lengths {
		plain := strings.Repeat("a", n)
		body, err := ci.EncryptRequest(plain)
		if err != nil {
			t.Fatalf("encrypt %d bytes: %v", n, err)
		}
		if got := decryptChunks(t, key, body); got != plain {
			t.Fatalf("round trip mismatch for length %d", n)
		}
	}
}

func TestChunkedRSAHandlesMultibyteText(t *testing.T) {
	ci := testCipher(t)
	// 3-byte runes straddle chunk boundaries; the split is byte-wise.
	plain := `{"pointname":"` + strings.Repeat("奥林匹克森林公园", 30) + `"}`
	body, err := ci.EncryptRequest(plain)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if got := decryptChunks(t, testPrivateKey(t), body); got != plain {
		t.Fatal("multibyte round trip mismatch")
	}
}

func TestAESResponseRoundTrip(t *testing.T) {
	ci := testCipher(t)
	payload := []byte(`[{"taxonname":"大山雀","englishname":"Japanese Tit","latinname":"Parus minor"}]`)
	got, err := ci.DecryptResponse(ci.encryptResponse(payload))
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("unexpected plaintext %q", got)
	}
}

func TestDecryptResponseRejectsGarbage(t *testing.T) {
	ci := testCipher(t)
	if _, err := ci.DecryptResponse("not base64!"); err == nil {
		t.Fatal("expected base64 error")
	}
	if _, err := ci.DecryptResponse(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatal("expected block size error")
	}
}

func TestSignIsMD5OfConcatenation(t *testing.T) {
	// md5("abc") is the RFC 1321 test vector.
	if got := Sign("a", "b", "c"); got != "900150983cd24fb0d6963f7d28e17f72" {
		t.Fatalf("unexpected sign %q", got)
	}
}

func TestPublishedKeyIsPKIX(t *testing.T) {
	der, err := base64.StdEncoding.DecodeString(PublicKeyBase64)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := x509.ParsePKIXPublicKey(der); err != nil {
		t.Fatalf("parse: %v", err)
	}
}
