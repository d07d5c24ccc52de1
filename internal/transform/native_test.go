package transform

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"updateengine/internal/config"
	"updateengine/internal/failure"
)

func encryptCTR(t *testing.T, plain, password []byte) []byte {
	t.Helper()
	salt := []byte("01234567")
	key, iv := deriveKeyIV(password, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]byte, len(plain))
	cipher.NewCTR(block, iv).XORKeyStream(out, plain)
	return append(append([]byte(saltMagic), salt...), out...)
}

func writePassword(t *testing.T, value string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ota.pas")
	if err := os.WriteFile(path, []byte(value), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDeriveKeyIVLengths(t *testing.T) {
	key, iv := deriveKeyIV([]byte("secret"), []byte("saltsalt"))
	if len(key) != 32 || len(iv) != aes.BlockSize {
		t.Fatalf("unexpected lengths key=%d iv=%d", len(key), len(iv))
	}
	key2, iv2 := deriveKeyIV([]byte("secret"), []byte("saltsalt"))
	if !bytes.Equal(key, key2) || !bytes.Equal(iv, iv2) {
		t.Fatal("derivation is not deterministic")
	}
	other, _ := deriveKeyIV([]byte("secret"), []byte("tlastlas"))
	if bytes.Equal(key, other) {
		t.Fatal("salt does not influence key")
	}
}

func TestNativeEncryptedGzipRoundTrip(t *testing.T) {
	plain := bytes.Repeat([]byte("system image block "), 4096)
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write(plain)
	zw.Close()

	pw := writePassword(t, "hunter2\n")
	sealed := encryptCTR(t, gz.Bytes(), []byte("hunter2"))

	opts := Options{
		Codec:       Codec{Backend: config.BackendNative, PasswordFile: pw},
		Encryption:  EncryptionAES,
		Compression: "gz",
		Total:       int64(len(plain)),
		Digest:      true,
	}
	s, err := Open(bytes.NewReader(sealed), opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatal("round trip mismatch")
	}
}

func TestNativeRejectsMissingSaltHeader(t *testing.T) {
	pw := writePassword(t, "pw")
	opts := Options{Codec: Codec{Backend: config.BackendNative, PasswordFile: pw}, Encryption: EncryptionAES, Total: 4}
	_, err := Open(bytes.NewReader([]byte("plainly not encrypted")), opts)
	if !failure.Is(err, failure.CodeEncryption) {
		t.Fatalf("expected encryption failure, got %v", err)
	}
}

func TestNativeMatchesOpenSSL(t *testing.T) {
	openssl, err := exec.LookPath("openssl")
	if err != nil {
		t.Skip("openssl not installed")
	}
	dir := t.TempDir()
	plain := bytes.Repeat([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8}, 3000)
	in := filepath.Join(dir, "plain")
	out := filepath.Join(dir, "sealed")
	pw := writePassword(t, "device-pass\n")
	if err := os.WriteFile(in, plain, 0o600); err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command(openssl, "enc", "-aes-256-ctr", "-md", "sha256", "-pass", "file:"+pw, "-in", in, "-out", out)
	if msg, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("openssl cannot encrypt with aes-256-ctr: %v %s", err, msg)
	}
	sealed, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}

	opts := Options{Codec: Codec{Backend: config.BackendNative, PasswordFile: pw}, Encryption: EncryptionAES, Total: int64(len(plain)), Digest: true}
	s, err := Open(bytes.NewReader(sealed), opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatal("native decryption disagrees with openssl")
	}
}
