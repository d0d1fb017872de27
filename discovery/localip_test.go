package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubnet24SplitsPrefixAndLastOctet(t *testing.T) {
	prefix, last, ok := subnet24("192.168.1.42")
	assert.True(t, ok)
	assert.Equal(t, "192.168.1.", prefix)
	assert.Equal(t, 42, last)
}

func TestSubnet24RejectsInvalidIP(t *testing.T) {
	_, _, ok := subnet24("not-an-ip")
	assert.False(t, ok)
}

func TestLocalIPReturnsAnAddress(t *testing.T) {
	ip := LocalIP()
	assert.NotEmpty(t, ip)
}
