// Package failure defines the single error type threaded through the update
// engine. Every fatal condition carries a numeric Code that the command line
// driver writes to the status directory and uses as the process exit status.
//
// Components never exit on their own: they return a *Error built with New or
// Wrap, optionally after performing the defensive writes their failure
// demands (zeroing the target slot), and let the driver report it.
package failure
