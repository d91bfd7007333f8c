package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Config{Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestGetCapturesBodyAndHeaders(t *testing.T) {
	t.Parallel()

	var gotHeader, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Accept-Language")
		if c, err := r.Cookie("SESSDATA"); err == nil {
			gotCookie = c.Value
		}
		_, _ = w.Write([]byte("<html><body>hi</body></html>"))
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp, err := c.Get(context.Background(), srv.URL,
		WithHeaders(map[string]string{"Accept-Language": "zh-CN"}),
		WithCookies(map[string]string{"SESSDATA": "token"}),
	)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "hi")
	require.Equal(t, "zh-CN", gotHeader)
	require.Equal(t, "token", gotCookie)
}

func TestGetNoRedirectExposesStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/agecheck", http.StatusFound)
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp, err := c.Get(context.Background(), srv.URL, NoRedirect())
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestGetJSONWithQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "170001", r.URL.Query().Get("aid"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"message":"0"}`))
	}))
	defer srv.Close()

	c := newTestClient(t)
	var out struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	err := c.GetJSON(context.Background(), srv.URL, &out, WithQuery(url.Values{"aid": {"170001"}}))
	require.NoError(t, err)
	require.Equal(t, 0, out.Code)
}

func TestPostJSONRoundTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"data":{"answer":42}}`))
	}))
	defer srv.Close()

	c := newTestClient(t)
	var out struct {
		Data struct {
			Answer int `json:"answer"`
		} `json:"data"`
	}
	err := c.PostJSON(context.Background(), srv.URL, map[string]string{"query": "{}"}, &out)
	require.NoError(t, err)
	require.Equal(t, 42, out.Data.Answer)
}

func TestRedirectLocation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://www.bilibili.com/video/av170001")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	c := newTestClient(t)
	loc, err := c.RedirectLocation(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "https://www.bilibili.com/video/av170001", loc)
}

func TestRedirectLocationMissing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.RedirectLocation(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestDecodeFailureIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := newTestClient(t)
	var out map[string]any
	err := c.GetJSON(context.Background(), srv.URL, &out)
	require.Error(t, err)
}
