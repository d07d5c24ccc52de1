package transform

import (
	"bufio"
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"updateengine/internal/failure"
)

const (
	saltMagic = "Salted__"
	saltLen   = 8
	keyLen    = 32
)

type nativeDecoder struct {
	io.Reader
	closers []io.Closer
}

func (d *nativeDecoder) Close() error {
	var first error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func newNativeDecoder(src io.Reader, encryption int, compression Compression, passwordFile string) (io.ReadCloser, error) {
	d := &nativeDecoder{Reader: src}
	if encryption == EncryptionAES {
		password, err := readPassword(passwordFile)
		if err != nil {
			return nil, err
		}
		r, err := newCTRReader(src, password)
		if err != nil {
			return nil, err
		}
		d.Reader = r
	}
	if compression == CompressionGzip {
		zr, err := gzip.NewReader(d.Reader)
		if err != nil {
			return nil, failure.Wrap(failure.CodeDecompress, "open section", "Decompression error", err)
		}
		d.Reader = zr
		d.closers = append(d.closers, zr)
	}
	return d, nil
}

// readPassword returns the first line of the passphrase file, the same rule
// openssl applies to -pass file:.
func readPassword(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, failure.Wrap(failure.CodeEncryption, "open section", "cannot read OTA passphrase", err)
	}
	defer f.Close()
	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, failure.Wrap(failure.CodeEncryption, "open section", "cannot read OTA passphrase", err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// newCTRReader consumes the openssl salt header from src and returns a reader
// producing the AES-256-CTR plaintext.
func newCTRReader(src io.Reader, password []byte) (io.Reader, error) {
	header := make([]byte, len(saltMagic)+saltLen)
	if _, err := io.ReadFull(src, header); err != nil {
		return nil, failure.Wrap(failure.CodeEncryption, "open section", "encrypted section too short", err)
	}
	if !bytes.Equal(header[:len(saltMagic)], []byte(saltMagic)) {
		return nil, failure.New(failure.CodeEncryption, "open section", "encrypted section has no salt header")
	}
	key, iv := deriveKeyIV(password, header[len(saltMagic):])
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, failure.Wrap(failure.CodeEncryption, "open section", "init cipher", err)
	}
	return cipher.StreamReader{S: cipher.NewCTR(block, iv), R: src}, nil
}

// deriveKeyIV implements EVP_BytesToKey with SHA-256 and a single iteration.
func deriveKeyIV(password, salt []byte) (key, iv []byte) {
	need := keyLen + aes.BlockSize
	var material, prev []byte
	for len(material) < need {
		h := sha256.New()
		h.Write(prev)
		h.Write(password)
		h.Write(salt)
		prev = h.Sum(nil)
		material = append(material, prev...)
	}
	return material[:keyLen], material[keyLen:need]
}
