package transform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"updateengine/internal/failure"
	"updateengine/internal/logging"
)

const drainChunk = 64 * 1024

// processDecoder pumps a chain of child processes. The parent holds the write
// end of the first child's stdin and the read end of the last child's stdout,
// both non-blocking, and waits on them together with one poll per cycle.
type processDecoder struct {
	src     io.Reader
	cmds    []*exec.Cmd
	stderr  []*bytes.Buffer
	logger  *slog.Logger
	inFD    int
	outFD   int
	block   []byte
	feed    []byte
	srcDone bool
	out     []byte
	scratch []byte
	waited  bool
	err     error
}

func startProcessDecoder(src io.Reader, argv [][]string, feedBlock int, logger *slog.Logger) (*processDecoder, error) {
	if len(argv) == 0 {
		return nil, failure.New(failure.CodeDecompress, "open section", "no decoder commands")
	}
	if feedBlock <= 0 {
		feedBlock = 2048
	}

	var in, out [2]int
	if err := unix.Pipe2(in[:], unix.O_CLOEXEC); err != nil {
		return nil, failure.Wrap(failure.CodeDecoder, "start decoder", "create stdin pipe", err)
	}
	if err := unix.Pipe2(out[:], unix.O_CLOEXEC); err != nil {
		unix.Close(in[0])
		unix.Close(in[1])
		return nil, failure.Wrap(failure.CodeDecoder, "start decoder", "create stdout pipe", err)
	}

	d := &processDecoder{
		src:     src,
		logger:  logger,
		inFD:    in[1],
		outFD:   out[0],
		block:   make([]byte, feedBlock),
		scratch: make([]byte, drainChunk),
	}

	// Child-side ends are closed in the parent once every child has started.
	childFiles := []*os.File{os.NewFile(uintptr(in[0]), "decoder-stdin"), os.NewFile(uintptr(out[1]), "decoder-stdout")}
	defer func() {
		for _, f := range childFiles {
			f.Close()
		}
	}()

	stdin := childFiles[0]
	for i, args := range argv {
		cmd := exec.Command(args[0], args[1:]...) //nolint:gosec
		cmd.Stdin = stdin
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if i == len(argv)-1 {
			cmd.Stdout = childFiles[1]
		} else {
			r, w, err := os.Pipe()
			if err != nil {
				d.Close()
				return nil, failure.Wrap(failure.CodeDecoder, "start decoder", "create chain pipe", err)
			}
			childFiles = append(childFiles, r, w)
			cmd.Stdout = w
			stdin = r
		}
		if err := cmd.Start(); err != nil {
			d.Close()
			return nil, failure.Wrap(failure.CodeDecoder, "start decoder", "start "+args[0], err)
		}
		d.cmds = append(d.cmds, cmd)
		d.stderr = append(d.stderr, &stderr)
	}

	for _, fd := range []int{d.inFD, d.outFD} {
		if err := unix.SetNonblock(fd, true); err != nil {
			d.Close()
			return nil, failure.Wrap(failure.CodeDecoder, "start decoder", "set non-blocking", err)
		}
	}

	logger.Debug("decoder chain started", logging.String("command", describeChain(argv)))
	return d, nil
}

func (d *processDecoder) Read(p []byte) (int, error) {
	for len(d.out) == 0 {
		if d.err != nil {
			return 0, d.err
		}
		if d.outFD < 0 {
			d.err = d.wait()
			if d.err == nil {
				d.err = io.EOF
			}
			return 0, d.err
		}
		if err := d.cycle(); err != nil {
			d.err = err
			return 0, err
		}
	}
	n := copy(p, d.out)
	d.out = d.out[n:]
	return n, nil
}

// cycle performs one feed-and-drain round.
func (d *processDecoder) cycle() error {
	if len(d.feed) == 0 && !d.srcDone && d.inFD >= 0 {
		n, err := io.ReadFull(d.src, d.block)
		d.feed = d.block[:n]
		switch {
		case err == nil:
		case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
			d.srcDone = true
		default:
			return failure.Wrap(failure.CodeDownload, "read section", "source read failed", err)
		}
	}
	if len(d.feed) == 0 && d.srcDone {
		d.closeIn()
	}

	fds := make([]unix.PollFd, 0, 2)
	if d.inFD >= 0 && len(d.feed) > 0 {
		fds = append(fds, unix.PollFd{Fd: int32(d.inFD), Events: unix.POLLOUT})
	}
	fds = append(fds, unix.PollFd{Fd: int32(d.outFD), Events: unix.POLLIN})

	for {
		_, err := unix.Poll(fds, -1)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EINTR) {
			return failure.Wrap(failure.CodeDecoder, "decode section", "poll failed", err)
		}
	}

	for _, fd := range fds {
		if fd.Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			return failure.New(failure.CodeDecoder, "decode section", "Decompressor subprocess exceptional status")
		}
	}

	for _, fd := range fds {
		switch {
		case int(fd.Fd) == d.inFD && fd.Revents&unix.POLLOUT != 0:
			n, err := unix.Write(d.inFD, d.feed)
			if n > 0 {
				d.feed = d.feed[n:]
			}
			if err != nil && !errors.Is(err, unix.EAGAIN) {
				if errors.Is(err, unix.EPIPE) {
					return failure.New(failure.CodeDecoder, "decode section", "Decompressor subprocess exceptional status")
				}
				return failure.Wrap(failure.CodeDecoder, "decode section", "write to decoder", err)
			}
		case int(fd.Fd) == d.outFD && fd.Revents&(unix.POLLIN|unix.POLLHUP) != 0:
			n, err := unix.Read(d.outFD, d.scratch)
			if n > 0 {
				d.out = append(d.out[:0], d.scratch[:n]...)
			}
			if err != nil && !errors.Is(err, unix.EAGAIN) {
				return failure.Wrap(failure.CodeDecoder, "decode section", "read from decoder", err)
			}
			if n == 0 && err == nil {
				unix.Close(d.outFD)
				d.outFD = -1
			}
		}
	}
	return nil
}

func (d *processDecoder) closeIn() {
	if d.inFD >= 0 {
		unix.Close(d.inFD)
		d.inFD = -1
	}
}

// wait reaps every child and reports the first unsuccessful exit.
func (d *processDecoder) wait() error {
	if d.waited {
		return nil
	}
	d.waited = true
	d.closeIn()
	var first error
	for i, cmd := range d.cmds {
		if err := cmd.Wait(); err != nil && first == nil {
			msg := strings.TrimSpace(d.stderr[i].String())
			if msg == "" {
				msg = err.Error()
			}
			first = failure.Wrap(failure.CodeDecompress, "decode section", "Decompression error",
				fmt.Errorf("%s: %s", cmd.Path, msg))
		}
	}
	return first
}

// Close terminates any child still running and releases the pipes.
func (d *processDecoder) Close() error {
	d.closeIn()
	if d.outFD >= 0 {
		unix.Close(d.outFD)
		d.outFD = -1
	}
	if d.waited {
		return nil
	}
	d.waited = true
	for _, cmd := range d.cmds {
		if cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Kill(); err == nil {
			d.logger.Debug("terminated decoder", logging.String("command", cmd.Path))
		}
		_ = cmd.Wait()
	}
	return nil
}

func describeChain(argv [][]string) string {
	parts := make([]string, 0, len(argv))
	for _, args := range argv {
		parts = append(parts, strings.Join(args, " "))
	}
	return strings.Join(parts, " | ")
}
