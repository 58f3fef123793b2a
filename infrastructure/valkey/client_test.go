package valkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClient_Key(t *testing.T) {
	c := &Client{keyPrefix: "azbookings:"}

	assert.Equal(t, "azbookings:lock:notifications:batch", c.Key("lock:notifications:batch"))
	assert.Equal(t, "azbookings:a:b", c.Key("a", "b"))
	assert.Equal(t, "azbookings", c.Key())
	assert.Equal(t, "azbookings:", c.KeyPrefix())
}

func TestClient_KeyWithoutPrefix(t *testing.T) {
	c := &Client{}
	assert.Equal(t, "lock", c.Key("lock"))
}
