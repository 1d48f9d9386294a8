// Package rpcerr defines the sentinel error kinds shared across the RPC
// runtime, so callers can classify failures with errors.Is instead of
// string matching.
package rpcerr

import "errors"

var (
	// ErrInvalidURL is returned when an endpoint URL doesn't match any
	// recognized scheme/grammar.
	ErrInvalidURL = errors.New("rpc: invalid endpoint url")

	// ErrInvalidAddress is returned when a URL's scheme is recognized but
	// its address portion doesn't parse (bad IPv4/IPv6 literal, bad port).
	ErrInvalidAddress = errors.New("rpc: invalid endpoint address")

	// ErrSocketError wraps failures from socket/bind/listen/connect.
	ErrSocketError = errors.New("rpc: socket error")

	// ErrReadError wraps failures reading from a connection.
	ErrReadError = errors.New("rpc: read error")

	// ErrSendError wraps failures writing to a connection.
	ErrSendError = errors.New("rpc: send error")

	// ErrProtocol covers a bad method index or a failure to unpack a
	// message body.
	ErrProtocol = errors.New("rpc: protocol error")

	// ErrTimeout is returned by the client when a reply doesn't arrive
	// within RPCTimeout.
	ErrTimeout = errors.New("rpc: timeout waiting for reply")

	// ErrConnectionClosed indicates the peer closed the connection.
	ErrConnectionClosed = errors.New("rpc: connection closed")
)
