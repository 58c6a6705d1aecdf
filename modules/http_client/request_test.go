package http_client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

func newUnit(t *testing.T, args registry.Args) unit.Unit {
	t.Helper()
	r := registry.New()
	(&Module{}).Register(r)
	u, err := r.NewUnit("http_request", "req", args)
	require.NoError(t, err)
	return u
}

func TestRequest_RoundTrip(t *testing.T) {
	// --- Arrange ---
	var gotMethod, gotHeader, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Test")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "created")
	}))
	defer srv.Close()

	u := newUnit(t, registry.Args{
		"url":     cty.StringVal(srv.URL),
		"method":  cty.StringVal("post"),
		"body":    cty.StringVal(`{"a":1}`),
		"headers": cty.MapVal(map[string]cty.Value{"X-Test": cty.StringVal("yes")}),
	})

	// --- Act ---
	out, err := u.Execute(ctxlog.Discard(context.Background()), execctx.New(), unit.NewInputs())

	// --- Assert ---
	require.NoError(t, err)
	resp := out["response"][0].Data
	assert.True(t, resp.Type().Equals(ResponseType))
	assert.True(t, resp.GetAttr("status_code").Equals(cty.NumberIntVal(201)).True())
	assert.Equal(t, "created", resp.GetAttr("body").AsString())
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "yes", gotHeader)
	assert.Equal(t, `{"a":1}`, gotBody)
}

func TestRequest_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	u := newUnit(t, registry.Args{"url": cty.StringVal(srv.URL), "timeout": cty.StringVal("50ms")})
	assert.Equal(t, 50*time.Millisecond, u.EstimateResources().Duration)

	_, err := u.Execute(ctxlog.Discard(context.Background()), execctx.New(), unit.NewInputs())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseArgs(t *testing.T) {
	ra, err := parseArgs("req", registry.Args{"url": cty.StringVal("http://x")})
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, ra.Method)
	assert.Equal(t, DefaultTimeout, ra.Timeout)

	_, err = parseArgs("req", nil)
	require.Error(t, err)
	_, err = parseArgs("req", registry.Args{"url": cty.StringVal("http://x"), "timeout": cty.StringVal("later")})
	require.Error(t, err)
}
