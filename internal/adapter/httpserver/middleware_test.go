package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satoshiwasHere/alx-polly/internal/platform/correlation"
)

func TestCorrelationMiddleware_EchoesInboundID(t *testing.T) {
	srv := newTestServer(t, &mockPollService{})

	rec := doRequest(t, srv, http.MethodGet, "/health/live", "", map[string]string{correlation.HeaderName: "req-123"})

	assert.Equal(t, "req-123", rec.Header().Get(correlation.HeaderName))
}

func TestCorrelationMiddleware_GeneratesID(t *testing.T) {
	srv := newTestServer(t, &mockPollService{})

	first := doRequest(t, srv, http.MethodGet, "/health/live", "", nil)
	second := doRequest(t, srv, http.MethodGet, "/health/live", "", nil)

	assert.NotEmpty(t, first.Header().Get(correlation.HeaderName))
	assert.NotEqual(t, first.Header().Get(correlation.HeaderName), second.Header().Get(correlation.HeaderName))
}

func TestCorrelationMiddleware_StoresIDOnContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(correlation.HeaderName, "abc")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	h := correlationMiddleware(func(c echo.Context) error {
		seen, _ = correlation.ID(c.Request().Context())
		return nil
	})

	require.NoError(t, h(c))
	assert.Equal(t, "abc", seen)
}

func TestUserID(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(userIDHeader, "  alice ")
	c := e.NewContext(req, httptest.NewRecorder())

	id, err := userID(c)
	require.NoError(t, err)
	assert.Equal(t, "alice", id)
	assert.Equal(t, "alice", c.Get("userID"))

	anon := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	id, err = userID(anon)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Nil(t, anon.Get("userID"))
}
