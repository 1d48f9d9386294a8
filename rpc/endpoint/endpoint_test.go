package endpoint

import (
	"errors"
	"net"
	"testing"

	"github.com/marmos91/gorpcd/rpc/rpcerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Unix(t *testing.T) {
	ep, err := Parse("unix:///tmp/t.sock")
	require.NoError(t, err)
	assert.Equal(t, Unix, ep.Family)
	assert.Equal(t, "/tmp/t.sock", ep.Path)
	assert.Equal(t, "unix", ep.Network())
}

func TestParse_UnixWithSuffix(t *testing.T) {
	ep, err := Parse("unix:///tmp/t.sock:ignored")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/t.sock", ep.Path)
}

func TestParse_UnixRelativePathFails(t *testing.T) {
	_, err := Parse("unix://relative/path")
	require.Error(t, err)
	assert.True(t, errors.Is(err, rpcerr.ErrInvalidAddress))
}

func TestParse_IPv4(t *testing.T) {
	ep, err := Parse("tcp://127.0.0.1:45001")
	require.NoError(t, err)
	assert.Equal(t, IPv4, ep.Family)
	assert.True(t, ep.IP.Equal(net.ParseIP("127.0.0.1")))
	assert.Equal(t, uint16(45001), ep.Port)
	assert.Equal(t, "tcp4", ep.Network())
}

func TestParse_IPv4WithSuffix(t *testing.T) {
	ep, err := Parse("tcp://127.0.0.1:45001:extra")
	require.NoError(t, err)
	assert.Equal(t, uint16(45001), ep.Port)
}

func TestParse_IPv6(t *testing.T) {
	ep, err := Parse("tcp://[::1]:45001")
	require.NoError(t, err)
	assert.Equal(t, IPv6, ep.Family)
	assert.True(t, ep.IP.Equal(net.ParseIP("::1")))
	assert.Equal(t, uint16(45001), ep.Port)
	assert.Equal(t, "tcp6", ep.Network())
}

func TestParse_InvalidScheme(t *testing.T) {
	_, err := Parse("http://127.0.0.1:80")
	require.Error(t, err)
	assert.True(t, errors.Is(err, rpcerr.ErrInvalidURL))
}

func TestParse_InvalidIPv4(t *testing.T) {
	_, err := Parse("tcp://999.999.999.999:80")
	require.Error(t, err)
	assert.True(t, errors.Is(err, rpcerr.ErrInvalidAddress))
}

func TestParse_MissingPort(t *testing.T) {
	_, err := Parse("tcp://127.0.0.1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, rpcerr.ErrInvalidAddress))
}

func TestParse_IPv6MissingBracket(t *testing.T) {
	_, err := Parse("tcp://::1:80")
	require.Error(t, err)
}

func TestEqual(t *testing.T) {
	a, _ := Parse("tcp://127.0.0.1:9000")
	b, _ := Parse("tcp://127.0.0.1:9000")
	c, _ := Parse("tcp://127.0.0.1:9001")

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}

func TestString_RoundTrip(t *testing.T) {
	cases := []string{
		"unix:///tmp/t.sock",
		"tcp://127.0.0.1:45001",
		"tcp://[::1]:45001",
	}

	for _, url := range cases {
		ep, err := Parse(url)
		require.NoError(t, err)
		reparsed, err := Parse(ep.String())
		require.NoError(t, err)
		assert.True(t, Equal(ep, reparsed), "round trip through String() for %q", url)
	}
}
