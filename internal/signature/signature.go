// Package signature verifies the update manifest against the device's OTA
// public key with openssl.
package signature

import (
	"context"
	"errors"

	"updateengine/internal/failure"
	"updateengine/internal/system"
)

// Result is the raw outcome of one verification.
type Result struct {
	OK       bool
	ExitCode int
	Stdout   string
	Stderr   string
}

// Verifier runs `openssl dgst -sha256 -verify <key> -signature <sig> <data>`.
type Verifier struct {
	OpenSSL   string
	PublicKey string
	Runner    system.Runner
}

// Verify checks sigPath against dataPath. The returned error is nil only when
// the signature is valid; a rejected signature carries failure code 209.
func (v Verifier) Verify(ctx context.Context, dataPath, sigPath string) (Result, error) {
	runner := v.Runner
	if runner == nil {
		runner = system.ExecRunner{}
	}
	if v.PublicKey == "" {
		return Result{}, failure.New(failure.CodeIntegrity, "verify manifest", "no public key configured")
	}
	out, err := runner.Run(ctx, v.OpenSSL, "dgst", "-sha256", "-verify", v.PublicKey, "-signature", sigPath, dataPath)
	if err != nil {
		return Result{ExitCode: -1}, failure.Wrap(failure.CodeIntegrity, "verify manifest", "could not run openssl", err)
	}
	result := Result{
		OK:       out.OK(),
		ExitCode: out.ExitCode,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
	}
	if !result.OK {
		detail := result.Stderr
		if detail == "" {
			detail = result.Stdout
		}
		return result, failure.Wrap(failure.CodeIntegrity, "verify manifest", "Manifest failed signature validation", errors.New(detail))
	}
	return result, nil
}
