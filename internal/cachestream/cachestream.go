// Package cachestream lets a consumer that seeks backward, such as the delta
// patch applier re-reading payload headers, sit on a forward-only stream.
//
// The first bytes of the source are held in memory. Positions inside that
// window can be revisited freely; beyond it the reader only moves forward.
package cachestream

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidSeek reports a seek into the region between the cache and the
	// read frontier, which is no longer available.
	ErrInvalidSeek = errors.New("invalid seek on cache stream")
	// ErrInvalidRead reports a read that is neither served by the cache nor at
	// the read frontier.
	ErrInvalidRead = errors.New("invalid read on cache stream")
)

// Reader is an io.ReadSeeker over a forward-only source.
type Reader struct {
	src       io.Reader
	cache     []byte
	fetched   int64
	pos       int64
	progress  int64
	onAdvance func(int64)
}

// New eagerly reads up to cacheFirst bytes from src. A source shorter than
// cacheFirst leaves a correspondingly shorter cache. onAdvance, if set, is
// called whenever the high-water mark moves forward.
func New(src io.Reader, cacheFirst int, onAdvance func(int64)) (*Reader, error) {
	if cacheFirst < 0 {
		cacheFirst = 0
	}
	cache := make([]byte, cacheFirst)
	n, err := io.ReadFull(src, cache)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("fill cache: %w", err)
	}
	return &Reader{
		src:       src,
		cache:     cache[:n],
		fetched:   int64(n),
		onAdvance: onAdvance,
	}, nil
}

// Cached returns the number of bytes held in memory.
func (r *Reader) Cached() int64 { return int64(len(r.cache)) }

// Fetched returns the number of bytes consumed from the source.
func (r *Reader) Fetched() int64 { return r.fetched }

func (r *Reader) setPos(pos int64) {
	r.pos = pos
	if pos > r.progress {
		r.progress = pos
		if r.onAdvance != nil {
			r.onAdvance(pos)
		}
	}
}

// Seek implements io.Seeker for io.SeekStart and io.SeekCurrent.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += r.pos
	default:
		return r.pos, fmt.Errorf("%w: whence %d not supported", ErrInvalidSeek, whence)
	}
	cached := int64(len(r.cache))
	switch {
	case offset < 0:
		return r.pos, fmt.Errorf("%w: negative offset %d", ErrInvalidSeek, offset)
	case offset < cached:
		r.setPos(offset)
	case offset == r.fetched:
		r.setPos(r.fetched)
	case offset > r.fetched:
		skipped, err := io.CopyN(io.Discard, r.src, offset-r.fetched)
		r.fetched += skipped
		if err != nil {
			r.setPos(r.fetched)
			return r.pos, fmt.Errorf("skip to %d: %w", offset, err)
		}
		r.setPos(offset)
	default:
		return r.pos, fmt.Errorf("%w: cache=%d offset=%d", ErrInvalidSeek, cached, offset)
	}
	return r.pos, nil
}

// Read serves bytes from the cache, from a cache and source splice, or from
// the source at the read frontier.
func (r *Reader) Read(p []byte) (int, error) {
	cached := int64(len(r.cache))
	length := int64(len(p))
	switch {
	case r.pos+length <= cached:
		n := copy(p, r.cache[r.pos:])
		r.setPos(r.pos + int64(n))
		return n, nil
	case r.pos < cached:
		if r.fetched != cached {
			return 0, fmt.Errorf("%w: cache=%d pos=%d length=%d", ErrInvalidRead, cached, r.pos, length)
		}
		n := copy(p, r.cache[r.pos:])
		m, err := r.readSource(p[n:])
		r.fetched += int64(m)
		r.setPos(r.fetched)
		if errors.Is(err, io.EOF) {
			err = nil
		}
		return n + m, err
	case r.pos == r.fetched:
		m, err := r.readSource(p)
		r.fetched += int64(m)
		r.setPos(r.fetched)
		return m, err
	default:
		return 0, fmt.Errorf("%w: cache=%d pos=%d length=%d", ErrInvalidRead, cached, r.pos, length)
	}
}

// readSource fills p from the source, reporting io.EOF only when nothing was
// read.
func (r *Reader) readSource(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := io.ReadFull(r.src, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	return n, err
}
