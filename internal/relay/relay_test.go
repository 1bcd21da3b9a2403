package relay

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtorres47/practice-tracker/internal/metrics"
)

type seen struct {
	method      string
	rawQuery    string
	contentType string
	body        string
}

func newUpstream(t *testing.T, status int, reply string) (*httptest.Server, *seen) {
	t.Helper()
	s := &seen{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		s.method = r.Method
		s.rawQuery = r.URL.RawQuery
		s.contentType = r.Header.Get("Content-Type")
		s.body = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, s
}

func newRelay(upstream string) *Relay {
	return New(upstream, nil, metrics.New(prometheus.NewRegistry()))
}

func assertCORS(t *testing.T, h http.Header) {
	t.Helper()
	assert.Equal(t, "*", h.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET,POST,OPTIONS", h.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", h.Get("Access-Control-Allow-Headers"))
}

func TestOptions(t *testing.T) {
	up, s := newUpstream(t, 200, "")
	rec := httptest.NewRecorder()
	newRelay(up.URL).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/proxy", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assertCORS(t, rec.Header())
	assert.Empty(t, s.method, "preflight must not reach upstream")
}

func TestGetForwardsQueryVerbatim(t *testing.T) {
	up, s := newUpstream(t, 200, `{"total":5}`)
	rec := httptest.NewRecorder()
	newRelay(up.URL).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/proxy?action=summary&userId=a%20b", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"total":5}`, rec.Body.String())
	assert.Equal(t, http.MethodGet, s.method)
	assert.Equal(t, "action=summary&userId=a%20b", s.rawQuery)
	assertCORS(t, rec.Header())
}

func TestUpstreamStatusIsRelayedAs200(t *testing.T) {
	up, _ := newUpstream(t, 500, "script error")
	rec := httptest.NewRecorder()
	newRelay(up.URL).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/proxy", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "script error", rec.Body.String())
}

func TestPostFormPassesThrough(t *testing.T) {
	up, s := newUpstream(t, 200, `{"status":"ok"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/proxy", strings.NewReader("action=submit&count=3"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	newRelay(up.URL).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, http.MethodPost, s.method)
	assert.Equal(t, "application/x-www-form-urlencoded", s.contentType)
	assert.Equal(t, "action=submit&count=3", s.body)
}

func TestPostJSONBecomesForm(t *testing.T) {
	up, s := newUpstream(t, 200, `{"status":"ok"}`)
	body := `{"name":"An","dharmaName":"Tâm Minh","count":108,"done":true,"note":null}`
	req := httptest.NewRequest(http.MethodPost, "/api/proxy", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newRelay(up.URL).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-www-form-urlencoded", s.contentType)
	form, err := url.ParseQuery(s.body)
	require.NoError(t, err)
	assert.Equal(t, "An", form.Get("name"))
	assert.Equal(t, "Tâm Minh", form.Get("dharmaName"))
	assert.Equal(t, "108", form.Get("count"))
	assert.Equal(t, "true", form.Get("done"))
	assert.Equal(t, "null", form.Get("note"))
}

func TestJSONToFormKeepsNullAndEmptyApart(t *testing.T) {
	enc, err := jsonToForm([]byte(`{"a":null,"b":"","c":"null","d":[1,2],"e":{"x":1}}`))
	require.NoError(t, err)
	form, err := url.ParseQuery(enc)
	require.NoError(t, err)
	assert.Equal(t, "null", form.Get("a"))
	assert.Equal(t, "", form.Get("b"))
	assert.Equal(t, "null", form.Get("c"))
	assert.Equal(t, "[1,2]", form.Get("d"))
	assert.Equal(t, `{"x":1}`, form.Get("e"))
}

func TestPostJSONArrayRejected(t *testing.T) {
	up, s := newUpstream(t, 200, "")
	req := httptest.NewRequest(http.MethodPost, "/api/proxy", strings.NewReader(`[1,2]`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newRelay(up.URL).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.method)
}

func TestPostBodyTooLarge(t *testing.T) {
	up, _ := newUpstream(t, 200, "")
	req := httptest.NewRequest(http.MethodPost, "/api/proxy", strings.NewReader(strings.Repeat("a", MaxBody+1)))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	newRelay(up.URL).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOtherMethods(t *testing.T) {
	up, _ := newUpstream(t, 200, "")
	for _, m := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		rec := httptest.NewRecorder()
		newRelay(up.URL).ServeHTTP(rec, httptest.NewRequest(m, "/api/proxy", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, m)
		assert.JSONEq(t, `{"error":"Method Not Allowed"}`, rec.Body.String())
		assertCORS(t, rec.Header())
	}
}

func TestUpstreamDown(t *testing.T) {
	up, _ := newUpstream(t, 200, "")
	up.Close()

	rec := httptest.NewRecorder()
	newRelay(up.URL).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/proxy?x=1", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assertCORS(t, rec.Header())
}
