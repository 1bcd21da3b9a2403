// Package relay forwards browser calls to the script endpoint so the page
// never talks to it cross-origin.
package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dtorres47/practice-tracker/internal/metrics"
)

// MaxBody caps the request body read from the browser.
const MaxBody = 1 << 20

type Relay struct {
	upstream string
	client   *http.Client
	metrics  *metrics.Metrics
}

// New returns a relay to the fixed upstream URL. A nil client uses
// http.DefaultClient.
func New(upstream string, client *http.Client, m *metrics.Metrics) *Relay {
	if client == nil {
		client = http.DefaultClient
	}
	return &Relay{upstream: upstream, client: client, metrics: m}
}

func setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w.Header())

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		rl.metrics.RelayRequest(r.Method, http.StatusOK)
	case http.MethodGet:
		target := rl.upstream
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		rl.forward(w, r, http.MethodGet, target, nil)
	case http.MethodPost:
		form, err := formBody(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			rl.metrics.RelayRequest(r.Method, http.StatusBadRequest)
			return
		}
		rl.forward(w, r, http.MethodPost, rl.upstream, strings.NewReader(form))
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		rl.metrics.RelayRequest(r.Method, http.StatusMethodNotAllowed)
	}
}

func (rl *Relay) forward(w http.ResponseWriter, r *http.Request, method, target string, body io.Reader) {
	start := time.Now()
	req, err := http.NewRequestWithContext(r.Context(), method, target, body)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "build upstream request")
		rl.metrics.RelayRequest(r.Method, http.StatusInternalServerError)
		return
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := rl.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("method", method).Msg("relay upstream failed")
		writeJSONError(w, http.StatusBadGateway, "upstream unavailable")
		rl.metrics.RelayRequest(r.Method, http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	rl.metrics.ObserveUpstream("relay", start)

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "read upstream response")
		rl.metrics.RelayRequest(r.Method, http.StatusBadGateway)
		return
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(text)
	rl.metrics.RelayRequest(r.Method, http.StatusOK)

	log.Debug().
		Str("method", method).
		Int("upstream_status", resp.StatusCode).
		Int("bytes", len(text)).
		Dur("duration", time.Since(start)).
		Msg("relayed")
}

// formBody returns the POST body as an urlencoded string. Form bodies pass
// through untouched; a JSON object is flattened to one field per key.
func formBody(r *http.Request) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, MaxBody+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if len(raw) > MaxBody {
		return "", fmt.Errorf("body exceeds %d bytes", MaxBody)
	}

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	trimmed := bytes.TrimSpace(raw)
	if mt != "application/json" && !(mt == "" || mt == "text/plain") {
		return string(raw), nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if mt == "application/json" {
			return "", fmt.Errorf("json body must be an object")
		}
		return string(raw), nil
	}
	return jsonToForm(trimmed)
}

func jsonToForm(b []byte) (string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return "", fmt.Errorf("decode json body: %w", err)
	}
	form := url.Values{}
	for k, v := range obj {
		// null goes out as the text "null", like any other non-string value
		var s string
		if string(v) != "null" && json.Unmarshal(v, &s) == nil {
			form.Set(k, s)
			continue
		}
		form.Set(k, string(v))
	}
	return form.Encode(), nil
}
