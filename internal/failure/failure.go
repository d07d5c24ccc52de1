package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Code is the exit status reported for a failed update.
type Code int

const (
	// CodeEntryOrder means an archive entry appeared out of the expected order.
	CodeEntryOrder Code = 200
	// CodeManifest covers unsupported manifest versions and section layouts.
	CodeManifest Code = 201
	// CodeSlotControl means the slot selector tool failed.
	CodeSlotControl Code = 202
	// CodeDownload means the update URL could not be opened.
	CodeDownload Code = 203
	// CodeArchive means the download is not a readable archive.
	CodeArchive Code = 204
	// CodeDecompress covers unsupported compression and malformed streams.
	CodeDecompress Code = 205
	// CodePayload means the delta patch applier rejected the payload.
	CodePayload Code = 207
	// CodeIO covers device, mount and sync failures.
	CodeIO Code = 208
	// CodeIntegrity covers signature, digest and size mismatches.
	CodeIntegrity Code = 209
	// CodeEncryption means the section uses an unsupported encryption scheme.
	CodeEncryption Code = 210
	// CodeVersion means a delta does not apply to the running version.
	CodeVersion Code = 211
	// CodeDecoder means a decoder subprocess reported an exceptional status.
	CodeDecoder Code = 212
	// CodeUnknown is reported for errors that carry no code.
	CodeUnknown Code = 219
)

var codeNames = map[Code]string{
	CodeEntryOrder:  "entry_order",
	CodeManifest:    "manifest",
	CodeSlotControl: "slot_control",
	CodeDownload:    "download",
	CodeArchive:     "archive",
	CodeDecompress:  "decompress",
	CodePayload:     "payload",
	CodeIO:          "io",
	CodeIntegrity:   "integrity",
	CodeEncryption:  "encryption",
	CodeVersion:     "version",
	CodeDecoder:     "decoder",
	CodeUnknown:     "unknown",
}

// String returns a short, stable name for the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error is a fatal update failure.
type Error struct {
	Code Code
	// Op names the step that failed, e.g. "verify manifest".
	Op  string
	Msg string
	Err error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Op, e.Msg)
	if e.Err != nil {
		return detail + ": " + e.Err.Error()
	}
	return detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error without an underlying cause.
func New(code Code, op, msg string) error {
	return &Error{Code: code, Op: op, Msg: msg}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, op, format string, args ...any) error {
	return &Error{Code: code, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with a code and context. A nil err yields a plain Error. An
// err that already carries a code keeps it: the innermost classification wins.
func Wrap(code Code, op, msg string, err error) error {
	if err != nil {
		var existing *Error
		if errors.As(err, &existing) {
			code = existing.Code
		}
	}
	return &Error{Code: code, Op: op, Msg: msg, Err: err}
}

// CodeOf extracts the code from err, or CodeUnknown when err carries none.
func CodeOf(err error) Code {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func buildDetail(op, msg string) string {
	parts := make([]string, 0, 2)
	if op = strings.TrimSpace(op); op != "" {
		parts = append(parts, op)
	}
	if msg = strings.TrimSpace(msg); msg != "" {
		parts = append(parts, msg)
	}
	if len(parts) == 0 {
		return "update failure"
	}
	return strings.Join(parts, ": ")
}
