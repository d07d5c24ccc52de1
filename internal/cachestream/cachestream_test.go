package cachestream_test

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	"updateengine/internal/cachestream"
)

func source(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

type recorder struct{ calls []int64 }

func (r *recorder) advance(n int64) { r.calls = append(r.calls, n) }

func TestReadWithinCacheAndSeekBack(t *testing.T) {
	data := source(100)
	rec := &recorder{}
	r, err := cachestream.New(bytes.NewReader(data), 40, rec.advance)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buf := make([]byte, 10)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, data[:10]) {
		t.Fatal("first read mismatch")
	}
	if pos, err := r.Seek(2, io.SeekStart); err != nil || pos != 2 {
		t.Fatalf("Seek(2) = %d %v", pos, err)
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, data[2:12]) {
		t.Fatal("re-read after backward seek mismatch")
	}
	if len(rec.calls) != 2 || rec.calls[0] != 10 || rec.calls[1] != 12 {
		t.Fatalf("progress should fire only on advances, got %v", rec.calls)
	}
}

func TestSpliceAcrossCacheBoundary(t *testing.T) {
	data := source(100)
	r, err := cachestream.New(bytes.NewReader(data), 40, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Seek(30, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 20)
	n, err := r.Read(buf)
	if err != nil || n != 20 {
		t.Fatalf("Read = %d %v", n, err)
	}
	if !bytes.Equal(buf, data[30:50]) {
		t.Fatal("splice read mismatch")
	}
	if r.Fetched() != 50 {
		t.Fatalf("fetched = %d, want 50", r.Fetched())
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(rest, data[50:]) {
		t.Fatal("frontier read mismatch")
	}
}

func TestForwardSkipAndGap(t *testing.T) {
	data := source(200)
	rec := &recorder{}
	r, err := cachestream.New(bytes.NewReader(data), 50, rec.advance)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if pos, err := r.Seek(120, io.SeekStart); err != nil || pos != 120 {
		t.Fatalf("forward seek = %d %v", pos, err)
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, data[120:125]) {
		t.Fatal("read after forward skip mismatch")
	}

	if _, err := r.Seek(80, io.SeekStart); !errors.Is(err, cachestream.ErrInvalidSeek) {
		t.Fatalf("expected ErrInvalidSeek for gap, got %v", err)
	}
	if pos, err := r.Seek(125, io.SeekStart); err != nil || pos != 125 {
		t.Fatalf("seek to frontier = %d %v", pos, err)
	}

	if _, err := r.Seek(45, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Read(make([]byte, 10)); !errors.Is(err, cachestream.ErrInvalidRead) {
		t.Fatalf("expected ErrInvalidRead for splice after frontier moved, got %v", err)
	}
	if rec.calls[len(rec.calls)-1] != 125 {
		t.Fatalf("unexpected high-water mark %v", rec.calls)
	}
}

func TestShortSourceCache(t *testing.T) {
	data := source(10)
	r, err := cachestream.New(bytes.NewReader(data), 64, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.Cached() != 10 {
		t.Fatalf("cached = %d, want 10", r.Cached())
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("short source mismatch")
	}
}

// A random walk of legal operations must always agree with the source.
func TestRandomLegalWalk(t *testing.T) {
	data := source(4096)
	rng := rand.New(rand.NewSource(42))
	const cacheFirst = 1024
	r, err := cachestream.New(bytes.NewReader(data), cacheFirst, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var high int64
	frontier := int64(cacheFirst)
	for step := 0; step < 500 && frontier < int64(len(data)); step++ {
		var target int64
		switch rng.Intn(3) {
		case 0:
			target = int64(rng.Intn(cacheFirst))
		case 1:
			target = frontier
		default:
			target = frontier + int64(rng.Intn(64))
		}
		if target > int64(len(data)) {
			target = int64(len(data))
		}
		if _, err := r.Seek(target, io.SeekStart); err != nil {
			t.Fatalf("step %d: seek %d: %v", step, target, err)
		}
		if target >= frontier {
			frontier = target
		}
		length := rng.Intn(32) + 1
		if target < cacheFirst && target+int64(length) > cacheFirst && frontier != cacheFirst {
			length = int(cacheFirst - target)
		}
		buf := make([]byte, length)
		n, err := r.Read(buf)
		if err != nil && err != io.EOF {
			t.Fatalf("step %d: read at %d len %d: %v", step, target, length, err)
		}
		end := target + int64(n)
		if !bytes.Equal(buf[:n], data[target:end]) {
			t.Fatalf("step %d: data mismatch at %d", step, target)
		}
		if end > frontier {
			frontier = end
		}
		if end > high {
			high = end
		}
	}
	if r.Fetched() < high {
		t.Fatalf("fetched %d behind high-water %d", r.Fetched(), high)
	}
}
