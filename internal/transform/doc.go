// Package transform turns an encrypted and/or compressed section stream into
// the plain image bytes written to a slot device.
//
// A Stream wraps a decoder, enforces the section's declared output length,
// and hashes everything it returns. Two decoder backends exist. The process
// backend runs the device's openssl and gzip as a child chain and pumps it
// from a single goroutine with unix.Poll over the chain's stdin and stdout,
// feeding one source block per cycle and draining whatever output is ready.
// The native backend decodes in-process with crypto/cipher and
// klauspost/compress.
package transform
