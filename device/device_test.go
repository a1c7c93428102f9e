package device

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embhttp/embhttp/httpd"
)

type readOnlySensor struct{ v string }

func (s readOnlySensor) Get() (string, bool) { return s.v, true }

type failingSink struct{}

func (failingSink) Put(string) error { return errors.New("value out of range") }

func newTestContext(t *testing.T) *httpd.Context {
	t.Helper()
	c, err := httpd.NewContext("http://device.local:8080", "")
	require.NoError(t, err)
	return c
}

func TestExchange(t *testing.T) {
	var x Exchange
	_, ok := x.Get()
	assert.False(t, ok, "empty exchange reported a value")

	require.NoError(t, x.Put("21.5"))
	v, ok := x.Get()
	assert.True(t, ok)
	assert.Equal(t, "21.5", v)

	// Overwrite: only the newest value survives.
	require.NoError(t, x.Put("22.0"))
	require.NoError(t, x.Put("22.5"))
	v, _ = x.Get()
	assert.Equal(t, "22.5", v)
}

func TestExpose_Capabilities(t *testing.T) {
	routes := httpd.NewRouter()

	// An Exchange can be read and written, so it gets both routes.
	ids, err := Expose(routes, "/temperature", &Exchange{}, "text/plain")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Equal(t, 2, routes.Len())

	// A bare Source only gets the GET route.
	ids, err = Expose(routes, "/serial", readOnlySensor{v: "A-1"}, "")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Equal(t, 3, routes.Len())

	// No capability at all is a configuration error.
	_, err = Expose(routes, "/nothing", struct{}{}, "")
	assert.ErrorIs(t, err, ErrNoCapability)
	assert.Equal(t, 3, routes.Len())
}

func TestExpose_RoutesAreRemovable(t *testing.T) {
	routes := httpd.NewRouter()
	ids, err := Expose(routes, "/led", &Exchange{}, "")
	require.NoError(t, err)
	for _, id := range ids {
		require.NoError(t, routes.Remove(id))
	}
	assert.Equal(t, 0, routes.Len())
}

func TestGetHandler(t *testing.T) {
	var x Exchange
	h := GetHandler(&x, "application/json")

	c := newTestContext(t)
	h.ServeHTTP(c)
	assert.Equal(t, 404, c.Status())
	assert.Equal(t, "404 error - no value sampled yet", string(c.ResponseBody()))

	require.NoError(t, x.Put(`{"celsius":21.5}`))
	c = newTestContext(t)
	h.ServeHTTP(c)
	assert.Equal(t, 200, c.Status())
	assert.Equal(t, "application/json", c.ContentType())
	assert.Equal(t, `{"celsius":21.5}`, string(c.ResponseBody()))
}

func TestPutHandler(t *testing.T) {
	var x Exchange
	h := PutHandler(&x)

	c := newTestContext(t)
	c.RequestBody = []byte("on")
	h.ServeHTTP(c)
	assert.Equal(t, 200, c.Status())
	assert.Equal(t, "OK", string(c.ResponseBody()))
	v, ok := x.Get()
	assert.True(t, ok)
	assert.Equal(t, "on", v)

	// Undecodable body.
	c = newTestContext(t)
	c.RequestBody = []byte{0xff, 0xfe}
	h.ServeHTTP(c)
	assert.Equal(t, 400, c.Status())

	// Sink rejection surfaces as 400 with the sink's message.
	c = newTestContext(t)
	c.RequestBody = []byte("9000")
	PutHandler(failingSink{}).ServeHTTP(c)
	assert.Equal(t, 400, c.Status())
	assert.Contains(t, string(c.ResponseBody()), "value out of range")
}
