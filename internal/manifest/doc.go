// Package manifest models the signed INI manifest at the head of an update
// package.
//
// The model is passive: Parse only rejects text that is not INI. Installation
// policy asks the model questions (Meta, CheckVersion, Payload) and decides
// what the answers mean. Two keys have process-wide defaults when absent:
// encryption (0) and cache (5 MiB).
package manifest
