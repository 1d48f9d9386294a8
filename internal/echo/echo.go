// Package echo is a minimal rpc.Service used by cmd/gorpcd's start
// command and the integration tests: one method that returns its input
// unchanged. Real deployments supply their own Service; this exists so
// the daemon and test suite have something concrete to bind to a socket.
package echo

import (
	"context"

	"github.com/marmos91/gorpcd/rpc"
)

// MethodEcho is the only method index this service answers.
const MethodEcho = 0

// Service implements rpc.Service by echoing every request body back as
// the response body.
type Service struct{}

// New returns an echo Service.
func New() *Service {
	return &Service{}
}

func (s *Service) Descriptor() rpc.Descriptor {
	return rpc.Descriptor{
		Methods: []rpc.MethodDescriptor{
			{
				Name:       "Echo",
				Unpack:     func(b []byte) (any, error) { return b, nil },
				Pack:       func(v any) ([]byte, error) { return v.([]byte), nil },
				PackedSize: func(v any) int { return len(v.([]byte)) },
			},
		},
	}
}

func (s *Service) Invoke(_ context.Context, methodIndex uint32, input []byte, reply func(out []byte, err error)) {
	reply(input, nil)
}
