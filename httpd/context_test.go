package httpd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_ServiceRootValidation(t *testing.T) {
	_, err := NewContext("http://device.local", "")
	assert.NoError(t, err)

	for _, root := range []string{
		"https://device.local",
		"device.local",
		"http://device.local/",
	} {
		_, err := NewContext(root, "")
		assert.ErrorIs(t, err, ErrBadLocalURL, "root %q", root)
	}
}

func TestContext_RelayURIGuard(t *testing.T) {
	c, err := NewContext("http://relay.example:8080", "myDomain")
	require.NoError(t, err)

	c.SetRequestURI("/myDomain/x")
	assert.Equal(t, "/myDomain/x", c.RequestURI())

	// A bare domain URI gets a trailing slash so prefix stripping
	// never yields an empty remainder.
	c.SetRequestURI("/myDomain")
	assert.Equal(t, "/myDomain/", c.RequestURI())
}

func TestContext_BuildRequestURIs(t *testing.T) {
	c, err := NewContext("http://relay.example:8080", "myDomain")
	require.NoError(t, err)
	assert.Equal(t, "/myDomain/led", c.BuildRequestURI("/led"))
	assert.Equal(t, "http://relay.example:8080/myDomain/led", c.BuildAbsoluteRequestURI("/led"))

	direct, err := NewContext("http://device.local", "")
	require.NoError(t, err)
	assert.Equal(t, "/led", direct.BuildRequestURI("/led"))
	assert.Equal(t, "http://device.local/led", direct.BuildAbsoluteRequestURI("/led"))
}

func TestContext_RequestStringDecode(t *testing.T) {
	c, err := NewContext("http://device.local", "")
	require.NoError(t, err)

	s, ok := c.RequestString()
	assert.True(t, ok)
	assert.Empty(t, s)

	c.RequestBody = []byte("21.5")
	s, ok = c.RequestString()
	require.True(t, ok)
	assert.Equal(t, "21.5", s)

	// Invalid UTF-8 is a soft failure, not a panic or error value.
	c.RequestBody = []byte{0xff, 0xfe}
	_, ok = c.RequestString()
	assert.False(t, ok)
}

func TestContext_SetResponse(t *testing.T) {
	c, err := NewContext("http://device.local", "")
	require.NoError(t, err)

	c.SetResponse("hello", "text/plain")
	assert.Equal(t, 200, c.Status())
	assert.Equal(t, "text/plain", c.ContentType())
	assert.Equal(t, "hello", string(c.ResponseBody()))
	assert.Equal(t, -1, c.MaxAge())
}

func TestContext_ContractPanics(t *testing.T) {
	c, err := NewContext("http://device.local", "")
	require.NoError(t, err)

	assert.Panics(t, func() { c.SetStatus(99) })
	assert.Panics(t, func() { c.SetStatus(600) })
	assert.NotPanics(t, func() { c.SetStatus(100) })
	assert.NotPanics(t, func() { c.SetStatus(599) })

	assert.Panics(t, func() { c.SetContentType("") })
	assert.Panics(t, func() { c.SetContentType("text/\nplain") })
}

func TestContext_MaxAge(t *testing.T) {
	c, err := NewContext("http://device.local", "")
	require.NoError(t, err)

	c.SetMaxAge(60)
	assert.Equal(t, 60, c.MaxAge())
	c.SetMaxAge(-5)
	assert.Equal(t, -1, c.MaxAge())
}
