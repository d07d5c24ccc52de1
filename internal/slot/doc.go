// Package slot resolves the running and target A/B slots and opens their
// partition devices.
//
// The running slot comes from the kernel command line (androidboot.slot_suffix).
// A device without a suffix is running the read-only factory image, slot "f",
// and always updates into slot "a".
//
// Devices hands out read-only handles for the current slot and write handles
// for the target slot only. Nothing in the engine can obtain a writable handle
// on the running slot or on the factory slot through this package.
package slot
