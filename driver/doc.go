// Package driver defines the interface that native GPU backends implement.
//
// The rhi package performs all resource bookkeeping (containers, cycling,
// reference tracking, pass state, pooling) and hands fully resolved native
// objects to a driver. A driver therefore never sees containers or
// generations: it creates, records and destroys physical resources only.
//
// Backends register themselves from an init function:
//
//	func init() {
//	    driver.Register(&Driver{})
//	}
//
// and are selected by name or by priority with shader format negotiation
// (see Select).
package driver
