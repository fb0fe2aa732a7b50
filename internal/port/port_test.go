package port

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const host = "127.0.0.1"

// findRun returns a base port where base..base+n are all free.
func findRun(t *testing.T, n int) int {
	t.Helper()
	for base := 20000; base < 60000; base += 17 {
		ok := true
		for p := base; p <= base+n; p++ {
			if !Free(host, p) {
				ok = false
				break
			}
		}
		if ok {
			return base
		}
	}
	t.Skip("no contiguous free port range")
	return 0
}

func hold(t *testing.T, p int) {
	t.Helper()
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
}

func TestAllocatePreferredFree(t *testing.T) {
	base := findRun(t, 0)
	got, err := Allocate(host, base)
	require.NoError(t, err)
	assert.Equal(t, base, got)
}

func TestAllocateSkipsBoundPorts(t *testing.T) {
	base := findRun(t, 3)
	hold(t, base)
	hold(t, base+1)
	hold(t, base+2)

	got, err := Allocate(host, base)
	require.NoError(t, err)
	assert.Equal(t, base+3, got)
	assert.True(t, Free(host, got), "probe listener must be released")
}

func TestAllocateInvalid(t *testing.T) {
	_, err := Allocate(host, 0)
	require.Error(t, err)
	_, err = Allocate(host, 70000)
	require.Error(t, err)
}
