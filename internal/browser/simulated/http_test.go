package simulated

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPHandler(t *testing.T) {
	srv := httptest.NewServer(HTTPHandler(PageOptions{}, 200*time.Millisecond))
	t.Cleanup(srv.Close)

	get := func() string {
		resp, err := http.Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	first, second := get(), get()
	assert.Contains(t, first, "function PerformSearch()")
	assert.Contains(t, first, "}, 200);")
	assert.Contains(t, first, `"No issued licenses were found using your search criteria."`)
	assert.NotEqual(t, first, second, "field suffixes change per load")
	assert.Contains(t, first, "cell.textContent = text;")
	assert.NotContains(t, first, "innerHTML", "criteria are never parsed as markup")

	resp, err := http.Post(srv.URL, "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTPHandler_AppendsPageScript(t *testing.T) {
	extra := `window.extraLoaded = true;`
	srv := httptest.NewServer(HTTPHandler(PageOptions{Script: extra}, 0))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	page := string(body)
	assert.Contains(t, page, "function PerformSearch()")
	assert.Contains(t, page, extra)
	assert.Less(t, strings.Index(page, "function PerformSearch()"), strings.Index(page, extra))
}
