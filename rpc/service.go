// Package rpc defines the external contract the connection handler
// dispatches into: a Service exposes a fixed, ordered set of methods and
// is invoked once per decoded frame. Wire parsing and framing live in
// rpc/wire and rpc/server; this package only describes the boundary
// between the two.
package rpc

import "context"

// Service is implemented by whatever application code sits behind a
// bound endpoint. Invoke is called synchronously from the connection
// handler's goroutine — it must call reply before returning, or never
// call it at all; asynchronous dispatch is not supported.
type Service interface {
	Descriptor() Descriptor
	Invoke(ctx context.Context, methodIndex uint32, input []byte, reply func(out []byte, err error))
}

// Descriptor enumerates a Service's methods in the fixed order the wire
// frame's method_index indexes into.
type Descriptor struct {
	Methods []MethodDescriptor
}

// MethodDescriptor carries the per-method (de)serialization closures. The
// connection handler and client engine carry raw bytes and never call them.
type MethodDescriptor struct {
	Name       string
	Unpack     func([]byte) (any, error)
	Pack       func(any) ([]byte, error)
	PackedSize func(any) int
}
