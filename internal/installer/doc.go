// Package installer drives one update attempt from a package stream to an
// activated target slot.
//
// The engine is a sequential state machine:
//
//	Idle -> ManifestVerified -> Installing -> Synced -> SlotActivated -> Done
//
// with Failed reachable from every state. Before anything is written the
// target slot is marked unbootable and the first block of its boot and
// system partitions is zeroed, so an interrupted attempt can never be
// booted. The current slot is only ever opened read-only.
//
// Three installation modes are selected by the manifest:
//
//   - BootSystem writes full boot and system images. The boot image is
//     staged in a file and only copied to the target after both images
//     verified.
//   - Delta feeds a binary patch through a caching reader to the patch
//     applier, after checking that the running version is the patch base.
//   - Anki clones the running system, replaces the product subtree on the
//     mounted clone and rewrites build.prop, then clones the running boot.
//
// Every failure is returned as a *failure.Error; the engine never exits and
// never writes the error status file itself.
package installer
