package daemon_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

type providerCall struct {
	Method string
	Path   string
	Query  string
	Body   map[string]interface{}
}

// fakeProvider answers zone lookups and purge calls like the Cloudflare v4 API
type fakeProvider struct {
	mu        sync.Mutex
	calls     []providerCall
	zones     string
	purgeBody string
	server    *httptest.Server
}

func newFakeProvider() *fakeProvider {
	p := &fakeProvider{
		zones:     `{"success":true,"errors":[],"result":[{"id":"zone-1","name":"example.com","status":"active"}]}`,
		purgeBody: `{"success":true,"errors":[],"result":{"id":"zone-1"}}`,
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	return p
}

func (p *fakeProvider) BaseURL() string {
	return p.server.URL + "/client/v4/"
}

func (p *fakeProvider) Close() {
	p.server.Close()
}

func (p *fakeProvider) SetZones(body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.zones = body
}

func (p *fakeProvider) SetPurgeResponse(body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purgeBody = body
}

func (p *fakeProvider) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	call := providerCall{
		Method: r.Method,
		Path:   strings.TrimPrefix(r.URL.Path, "/client/v4/"),
		Query:  r.URL.RawQuery,
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &call.Body)
	}

	p.mu.Lock()
	p.calls = append(p.calls, call)
	zones, purge := p.zones, p.purgeBody
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && call.Path == "zones":
		_, _ = w.Write([]byte(zones))
	case r.Method == http.MethodDelete && strings.HasSuffix(call.Path, "/purge_cache"):
		_, _ = w.Write([]byte(purge))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"errors":[{"code":7003,"message":"No route for that URI"}]}`))
	}
}

func (p *fakeProvider) Calls() []providerCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]providerCall, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *fakeProvider) CallsTo(method, pathSuffix string) []providerCall {
	var out []providerCall
	for _, c := range p.Calls() {
		if c.Method == method && strings.HasSuffix(c.Path, pathSuffix) {
			out = append(out, c)
		}
	}
	return out
}

func files(call providerCall) []string {
	raw, _ := call.Body["files"].([]interface{})
	out := make([]string, 0, len(raw))
	for _, f := range raw {
		if s, ok := f.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
