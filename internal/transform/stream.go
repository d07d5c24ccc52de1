package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"log/slog"
	"strings"

	"updateengine/internal/config"
	"updateengine/internal/failure"
	"updateengine/internal/logging"
)

// Encryption schemes understood by the manifest.
const (
	EncryptionNone = 0
	EncryptionAES  = 1
)

// Compression names a section compression scheme after normalization.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
)

// ParseCompression maps a manifest compression value onto a scheme.
func ParseCompression(value string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none":
		return CompressionNone, nil
	case "gz", "gzip":
		return CompressionGzip, nil
	default:
		return "", failure.Newf(failure.CodeDecompress, "open section", "Unsupported compression scheme %s", value)
	}
}

// Codec holds the device-wide decoder settings.
type Codec struct {
	Backend      string
	FeedBlock    int
	OpenSSL      string
	Gunzip       string
	PasswordFile string
	Logger       *slog.Logger
}

// NewCodec builds decoder settings from configuration.
func NewCodec(cfg *config.Config, logger *slog.Logger) Codec {
	return Codec{
		Backend:      cfg.Transfer.DecoderBackend,
		FeedBlock:    cfg.Transfer.HTTPBlockSize,
		OpenSSL:      cfg.Tools.OpenSSL,
		Gunzip:       cfg.Tools.Gunzip,
		PasswordFile: cfg.Paths.PasswordFile,
		Logger:       logger,
	}
}

// Section returns stream options for one manifest section with hashing on.
func (c Codec) Section(encryption int, compression string, total int64) Options {
	return Options{Codec: c, Encryption: encryption, Compression: compression, Total: total, Digest: true}
}

// Options describes one section stream.
type Options struct {
	Codec
	Encryption  int
	Compression string
	// Total is the declared number of decoded bytes.
	Total  int64
	Digest bool
}

// Stream is a pull-based source of decoded section bytes.
type Stream struct {
	decoder io.ReadCloser
	total   int64
	pos     int64
	sum     hash.Hash
	closed  bool
}

// Open starts decoding src according to opts.
func Open(src io.Reader, opts Options) (*Stream, error) {
	if opts.Total < 0 {
		return nil, failure.Newf(failure.CodeManifest, "open section", "negative section length %d", opts.Total)
	}
	decoder, err := newDecoder(src, opts)
	if err != nil {
		return nil, err
	}
	s := &Stream{decoder: decoder, total: opts.Total}
	if opts.Digest {
		s.sum = sha256.New()
	}
	return s, nil
}

func newDecoder(src io.Reader, opts Options) (io.ReadCloser, error) {
	if opts.Encryption != EncryptionNone && opts.Encryption != EncryptionAES {
		return nil, failure.Newf(failure.CodeEncryption, "open section", "Unsupported encryption scheme %d", opts.Encryption)
	}
	compression, err := ParseCompression(opts.Compression)
	if err != nil {
		return nil, err
	}
	if opts.Encryption == EncryptionNone && compression == CompressionNone {
		return io.NopCloser(src), nil
	}

	logger := logging.NewComponentLogger(opts.Logger, "transform")
	switch opts.Backend {
	case config.BackendNative:
		logger.Debug("native decoder selected",
			logging.Int("encryption", opts.Encryption),
			logging.String("compression", string(compression)),
		)
		return newNativeDecoder(src, opts.Encryption, compression, opts.PasswordFile)
	case config.BackendProcess, "":
		var argv [][]string
		if opts.Encryption == EncryptionAES {
			argv = append(argv, []string{opts.OpenSSL, "enc", "-d", "-aes-256-ctr", "-pass", "file:" + opts.PasswordFile})
		}
		if compression == CompressionGzip {
			argv = append(argv, []string{opts.Gunzip, "-dc"})
		}
		return startProcessDecoder(src, argv, opts.FeedBlock, logger)
	default:
		return nil, failure.Newf(failure.CodeDecompress, "open section", "unknown decoder backend %q", opts.Backend)
	}
}

// Read returns len(p) bytes unless the declared total has been reached. A
// decoder that runs dry before the total is a decompression failure.
func (s *Stream) Read(p []byte) (int, error) {
	remaining := s.total - s.pos
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := io.ReadFull(s.decoder, p)
	if n > 0 {
		if s.sum != nil {
			s.sum.Write(p[:n])
		}
		s.pos += int64(n)
	}
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return n, failure.Newf(failure.CodeDecompress, "decode section",
				"stream ended after %d of %d bytes", s.pos, s.total)
		}
		return n, failure.Wrap(failure.CodeDecompress, "decode section", "decoder failed", err)
	}
	return n, nil
}

// Digest returns the hex SHA-256 of every byte returned so far, or "" when
// hashing was not requested.
func (s *Stream) Digest() string {
	if s.sum == nil {
		return ""
	}
	return hex.EncodeToString(s.sum.Sum(nil))
}

// Tell returns the number of decoded bytes returned so far.
func (s *Stream) Tell() int64 {
	return s.pos
}

// Total returns the declared decoded length.
func (s *Stream) Total() int64 {
	return s.total
}

// ReadToTarget copies the rest of the stream to w in blockSize chunks and
// calls progress with the running byte count after every block.
func (s *Stream) ReadToTarget(w io.Writer, blockSize int, progress func(int64)) error {
	if blockSize <= 0 {
		blockSize = 32 * 1024
	}
	buf := make([]byte, blockSize)
	for s.pos < s.total {
		n, err := s.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return failure.Wrap(failure.CodeIO, "write section", "could not write decoded block", werr)
			}
			if progress != nil {
				progress(s.pos)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Close releases the decoder, terminating any child processes still running.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.decoder.Close()
}
