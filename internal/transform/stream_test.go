package transform_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"math/rand"
	"testing"

	"github.com/klauspost/compress/gzip"

	"updateengine/internal/config"
	"updateengine/internal/failure"
	"updateengine/internal/transform"
)

func payload(t *testing.T, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	rng := rand.New(rand.NewSource(int64(size)))
	rng.Read(data)
	return data
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func sha(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func nativeCodec() transform.Codec {
	return transform.Codec{Backend: config.BackendNative, FeedBlock: 2048}
}

func TestPassthroughStream(t *testing.T) {
	data := payload(t, 10_000)
	s, err := transform.Open(bytes.NewReader(data), nativeCodec().Section(0, "none", int64(len(data))))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("passthrough output differs from input")
	}
	if s.Digest() != sha(data) {
		t.Fatalf("digest %s, want %s", s.Digest(), sha(data))
	}
	if s.Tell() != int64(len(data)) {
		t.Fatalf("Tell = %d, want %d", s.Tell(), len(data))
	}
}

func TestReadToTargetProgress(t *testing.T) {
	data := payload(t, 5*4096+123)
	s, err := transform.Open(bytes.NewReader(gzipBytes(t, data)), nativeCodec().Section(0, "gz", int64(len(data))))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	var out bytes.Buffer
	var calls []int64
	if err := s.ReadToTarget(&out, 4096, func(n int64) { calls = append(calls, n) }); err != nil {
		t.Fatalf("ReadToTarget: %v", err)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatal("decoded output differs from input")
	}
	if len(calls) != 6 {
		t.Fatalf("expected 6 progress callbacks, got %d", len(calls))
	}
	for i := 1; i < len(calls); i++ {
		if calls[i] <= calls[i-1] {
			t.Fatalf("progress not increasing: %v", calls)
		}
	}
	if calls[len(calls)-1] != int64(len(data)) {
		t.Fatalf("final progress %d, want %d", calls[len(calls)-1], len(data))
	}
	if s.Digest() != sha(data) {
		t.Fatal("digest mismatch after ReadToTarget")
	}
}

func TestReadFillsBufferUntilTotal(t *testing.T) {
	data := payload(t, 1000)
	s, err := transform.Open(bytes.NewReader(gzipBytes(t, data)), nativeCodec().Section(0, "gzip", 900))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	buf := make([]byte, 400)
	for i, want := range []int{400, 400, 100} {
		n, err := s.Read(buf)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if n != want {
			t.Fatalf("read %d returned %d bytes, want %d", i, n, want)
		}
	}
	if n, err := s.Read(buf); n != 0 || err != io.EOF {
		t.Fatalf("expected EOF at declared total, got %d %v", n, err)
	}
	if s.Digest() != sha(data[:900]) {
		t.Fatal("digest should cover only returned bytes")
	}
}

func TestShortStreamIsDecompressionError(t *testing.T) {
	data := payload(t, 100)
	s, err := transform.Open(bytes.NewReader(gzipBytes(t, data)), nativeCodec().Section(0, "gz", 200))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	err = s.ReadToTarget(io.Discard, 64, nil)
	if !failure.Is(err, failure.CodeDecompress) {
		t.Fatalf("expected decompression failure, got %v", err)
	}
}

func TestUnsupportedSchemes(t *testing.T) {
	tests := []struct {
		name        string
		encryption  int
		compression string
		want        failure.Code
	}{
		{"encryption", 2, "gz", failure.CodeEncryption},
		{"compression", 0, "bz2", failure.CodeDecompress},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := transform.Open(bytes.NewReader(nil), nativeCodec().Section(tc.encryption, tc.compression, 1))
			if !failure.Is(err, tc.want) {
				t.Fatalf("expected code %d, got %v", tc.want, err)
			}
		})
	}
}

func TestCorruptGzipHeader(t *testing.T) {
	_, err := transform.Open(bytes.NewReader([]byte("not gzip at all")), nativeCodec().Section(0, "gz", 10))
	if !failure.Is(err, failure.CodeDecompress) {
		t.Fatalf("expected decompression failure, got %v", err)
	}
}

func TestParseCompression(t *testing.T) {
	cases := map[string]transform.Compression{
		"":     transform.CompressionNone,
		"none": transform.CompressionNone,
		"gz":   transform.CompressionGzip,
		"GZIP": transform.CompressionGzip,
	}
	for in, want := range cases {
		got, err := transform.ParseCompression(in)
		if err != nil || got != want {
			t.Fatalf("ParseCompression(%q) = %q %v, want %q", in, got, err, want)
		}
	}
}
