package hookserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"

	"github.com/edgecomet/cfpurge/internal/purge/nonce"
	"github.com/edgecomet/cfpurge/internal/purge/orchestrator"
	"github.com/edgecomet/cfpurge/internal/purge/triggers"
	"github.com/edgecomet/cfpurge/pkg/types"
)

const testAuthKey = "internal-key"

type fakePurger struct {
	mu        sync.Mutex
	actions   []triggers.Action
	result    bool
	notice    *orchestrator.Notice
	manual    int
	delay     time.Duration // simulated provider latency
	cancelled int
}

func (f *fakePurger) Dispatch(ctx context.Context, action triggers.Action) bool {
	f.mu.Lock()
	f.actions = append(f.actions, action)
	result := f.result
	f.mu.Unlock()

	if !f.wait(ctx) {
		return false
	}
	return result
}

func (f *fakePurger) ManualPurge(ctx context.Context) *orchestrator.Notice {
	f.mu.Lock()
	f.manual++
	notice := f.notice
	f.mu.Unlock()

	if !f.wait(ctx) {
		return nil
	}
	return notice
}

func (f *fakePurger) wait(ctx context.Context) bool {
	if f.delay <= 0 {
		return true
	}
	select {
	case <-time.After(f.delay):
		return true
	case <-ctx.Done():
		f.mu.Lock()
		f.cancelled++
		f.mu.Unlock()
		return false
	}
}

func (f *fakePurger) cancelledCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

type fakeZones struct {
	id       string
	cached   bool
	err      error
	resetErr error
	resets   int
}

func (f *fakeZones) Cached(context.Context) (string, bool, error) {
	return f.id, f.cached, f.err
}

func (f *fakeZones) Reset(context.Context) error {
	f.resets++
	return f.resetErr
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupAPI(purger *fakePurger, zones *fakeZones) (*API, fasthttp.RequestHandler) {
	api := NewAPI(purger, zones, nonce.NewGenerator("nonce-secret", time.Hour),
		"https://example.com/wp-admin/", "purge-1", zap.NewNop())
	s := NewServer(testAuthKey, nil, zap.NewNop())
	api.Register(s)
	return api, s.Handler()
}

func serve(t *testing.T, handler fasthttp.RequestHandler, method, uri string, body []byte, auth bool) (int, apiResponse) {
	t.Helper()
	key := ""
	if auth {
		key = testAuthKey
	}
	ctx := newRequestCtx(method, uri, key, body)
	handler(ctx)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	return ctx.Response.StatusCode(), resp
}

func decodePurged(t *testing.T, resp apiResponse) bool {
	t.Helper()
	var pr PurgeResponse
	require.NoError(t, json.Unmarshal(resp.Data, &pr))
	return pr.Purged
}

func TestAPI_FullPurgeHooks(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		body        []byte
		wantTrigger string
	}{
		{"switch theme without body", PathSwitchTheme, nil, triggers.SwitchThemeTrigger},
		{"switch theme with body", PathSwitchTheme, []byte(`{"theme":"twentytwenty"}`), triggers.SwitchThemeTrigger},
		{"cache purged", PathCachePurged, []byte(`{"source":"autoptimize"}`), triggers.CachePurgedTrigger},
		{"cache purged without body", PathCachePurged, nil, triggers.CachePurgedTrigger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			purger := &fakePurger{result: true}
			_, handler := setupAPI(purger, &fakeZones{})

			status, resp := serve(t, handler, fasthttp.MethodPost, tt.path, tt.body, true)
			assert.Equal(t, fasthttp.StatusAccepted, status)
			assert.True(t, resp.Success)
			assert.True(t, decodePurged(t, resp))

			require.Len(t, purger.actions, 1)
			assert.True(t, purger.actions[0].Full)
			assert.Equal(t, tt.wantTrigger, purger.actions[0].Trigger)
		})
	}
}

func TestAPI_TransitionPostStatus(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantDispatch bool
	}{
		{
			name:         "publish to draft purges",
			body:         `{"old_status":"publish","new_status":"draft","post":{"id":42,"type":"post"}}`,
			wantDispatch: true,
		},
		{
			name:         "draft to publish purges",
			body:         `{"old_status":"draft","new_status":"publish","post":{"id":42,"type":"post"}}`,
			wantDispatch: true,
		},
		{
			name:         "future to trash purges",
			body:         `{"old_status":"future","new_status":"trash","post":{"id":42,"type":"post"}}`,
			wantDispatch: true,
		},
		{
			name:         "draft resaved as draft is ignored",
			body:         `{"old_status":"draft","new_status":"draft","post":{"id":42,"type":"post"}}`,
			wantDispatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			purger := &fakePurger{result: true}
			_, handler := setupAPI(purger, &fakeZones{})

			status, resp := serve(t, handler, fasthttp.MethodPost, PathTransitionPostStatus, []byte(tt.body), true)
			assert.Equal(t, fasthttp.StatusAccepted, status)
			assert.Equal(t, tt.wantDispatch, decodePurged(t, resp))

			if !tt.wantDispatch {
				assert.Empty(t, purger.actions)
				return
			}
			require.Len(t, purger.actions, 1)
			assert.False(t, purger.actions[0].Full)
			assert.Equal(t, triggers.TransitionPostStatusTrigger, purger.actions[0].Trigger)
			require.Len(t, purger.actions[0].Contents, 1)
			assert.Equal(t, int64(42), purger.actions[0].Contents[0].ID)
		})
	}
}

func TestAPI_ScheduledDelete(t *testing.T) {
	purger := &fakePurger{result: false}
	_, handler := setupAPI(purger, &fakeZones{})

	status, resp := serve(t, handler, fasthttp.MethodPost, PathScheduledDelete,
		[]byte(`{"posts":[{"id":1,"type":"post"},{"id":2,"type":"page"}]}`), true)
	assert.Equal(t, fasthttp.StatusAccepted, status)
	assert.False(t, decodePurged(t, resp))

	require.Len(t, purger.actions, 1)
	assert.Equal(t, triggers.ScheduledDeleteTrigger, purger.actions[0].Trigger)
	assert.Equal(t, []types.ChangedContent{
		{ID: 1, Type: "post"},
		{ID: 2, Type: "page"},
	}, purger.actions[0].Contents)
}

func TestAPI_ContentChanged(t *testing.T) {
	t.Run("known hook dispatches", func(t *testing.T) {
		purger := &fakePurger{result: true}
		_, handler := setupAPI(purger, &fakeZones{})

		status, resp := serve(t, handler, fasthttp.MethodPost, PathContentChanged,
			[]byte(`{"hook":"save_post","post":{"id":7,"type":"post"}}`), true)
		assert.Equal(t, fasthttp.StatusAccepted, status)
		assert.True(t, decodePurged(t, resp))
		require.Len(t, purger.actions, 1)
		assert.Equal(t, triggers.HookSavePost, purger.actions[0].Trigger)
	})

	t.Run("unknown hook is accepted without purge", func(t *testing.T) {
		purger := &fakePurger{result: true}
		_, handler := setupAPI(purger, &fakeZones{})

		status, resp := serve(t, handler, fasthttp.MethodPost, PathContentChanged,
			[]byte(`{"hook":"wp_login","post":{"id":7}}`), true)
		assert.Equal(t, fasthttp.StatusAccepted, status)
		assert.False(t, decodePurged(t, resp))
		assert.Empty(t, purger.actions)
	})
}

func TestAPI_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		path string
		body []byte
	}{
		{"transition without body", PathTransitionPostStatus, nil},
		{"transition with invalid json", PathTransitionPostStatus, []byte(`{"old_status":`)},
		{"scheduled delete with invalid json", PathScheduledDelete, []byte(`[`)},
		{"content changed without body", PathContentChanged, nil},
		{"switch theme with invalid json", PathSwitchTheme, []byte(`not json`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			purger := &fakePurger{result: true}
			_, handler := setupAPI(purger, &fakeZones{})

			status, resp := serve(t, handler, fasthttp.MethodPost, tt.path, tt.body, true)
			assert.Equal(t, fasthttp.StatusBadRequest, status)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Message)
			assert.Empty(t, purger.actions)
		})
	}
}

func TestAPI_AdminMenu(t *testing.T) {
	purger := &fakePurger{}
	api, handler := setupAPI(purger, &fakeZones{})

	status, resp := serve(t, handler, fasthttp.MethodGet, PathAdminMenu+"?user=admin", nil, true)
	require.Equal(t, fasthttp.StatusOK, status)

	var node MenuNode
	require.NoError(t, json.Unmarshal(resp.Data, &node))
	assert.Equal(t, "cloudflare-full-page-caching-purge-zone", node.ID)
	assert.Equal(t, "Purge Cloudflare", node.Title)
	assert.Equal(t, "Purge Cloudflare", node.Meta.Title)

	href, err := url.Parse(node.Href)
	require.NoError(t, err)
	assert.Equal(t, "example.com", href.Host)
	assert.Equal(t, "/wp-admin/", href.Path)
	assert.Equal(t, "1", href.Query().Get(PurgeZoneParam))
	assert.True(t, api.nonces.Verify(href.Query().Get(NonceParam), PurgeZoneAction, "admin"))
	assert.False(t, api.nonces.Verify(href.Query().Get(NonceParam), PurgeZoneAction, "editor"))

	status, _ = serve(t, handler, fasthttp.MethodGet, PathAdminMenu, nil, true)
	assert.Equal(t, fasthttp.StatusBadRequest, status)
}

func TestAPI_AdminPurge(t *testing.T) {
	gen := nonce.NewGenerator("nonce-secret", time.Hour)
	token := gen.Create(PurgeZoneAction, "admin")

	purgeURI := func(user, token string) string {
		q := url.Values{}
		q.Set(PurgeZoneParam, "1")
		q.Set(NonceParam, token)
		q.Set(UserParam, user)
		return PathAdminPurge + "?" + q.Encode()
	}

	t.Run("valid nonce returns success notice", func(t *testing.T) {
		purger := &fakePurger{notice: &orchestrator.Notice{
			Level:   orchestrator.NoticeSuccess,
			Message: "Cloudflare cache purge request sent - may take a minute.",
		}}
		_, handler := setupAPI(purger, &fakeZones{})

		status, resp := serve(t, handler, fasthttp.MethodGet, purgeURI("admin", token), nil, false)
		assert.Equal(t, fasthttp.StatusOK, status)
		assert.True(t, resp.Success)
		assert.Equal(t, "Cloudflare cache purge request sent - may take a minute.", resp.Message)
		assert.Equal(t, 1, purger.manual)
	})

	t.Run("failure notice is reported with success false", func(t *testing.T) {
		purger := &fakePurger{notice: &orchestrator.Notice{
			Level:   orchestrator.NoticeError,
			Message: "Cloudflare cache purge request FAILED. Try again in a couple minutes. Message: boom",
		}}
		_, handler := setupAPI(purger, &fakeZones{})

		status, resp := serve(t, handler, fasthttp.MethodGet, purgeURI("admin", token), nil, false)
		assert.Equal(t, fasthttp.StatusOK, status)
		assert.False(t, resp.Success)

		var notice orchestrator.Notice
		require.NoError(t, json.Unmarshal(resp.Data, &notice))
		assert.Equal(t, orchestrator.NoticeError, notice.Level)
	})

	t.Run("silent abort has no message", func(t *testing.T) {
		purger := &fakePurger{}
		_, handler := setupAPI(purger, &fakeZones{})

		status, resp := serve(t, handler, fasthttp.MethodGet, purgeURI("admin", token), nil, false)
		assert.Equal(t, fasthttp.StatusOK, status)
		assert.False(t, resp.Success)
		assert.Empty(t, resp.Message)
		assert.Equal(t, 1, purger.manual)
	})

	t.Run("nonce for another user is rejected", func(t *testing.T) {
		purger := &fakePurger{}
		_, handler := setupAPI(purger, &fakeZones{})

		status, _ := serve(t, handler, fasthttp.MethodGet, purgeURI("editor", token), nil, false)
		assert.Equal(t, fasthttp.StatusForbidden, status)
		assert.Zero(t, purger.manual)
	})

	t.Run("missing marker parameter", func(t *testing.T) {
		purger := &fakePurger{}
		_, handler := setupAPI(purger, &fakeZones{})

		status, _ := serve(t, handler, fasthttp.MethodGet, PathAdminPurge+"?user=admin&_wpnonce="+token, nil, false)
		assert.Equal(t, fasthttp.StatusBadRequest, status)
		assert.Zero(t, purger.manual)
	})
}

func TestAPI_ZoneReset(t *testing.T) {
	zones := &fakeZones{}
	_, handler := setupAPI(&fakePurger{}, zones)

	status, resp := serve(t, handler, fasthttp.MethodPost, PathAdminZoneReset, nil, true)
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, zones.resets)

	zones.resetErr = errors.New("store down")
	status, resp = serve(t, handler, fasthttp.MethodPost, PathAdminZoneReset, nil, true)
	assert.Equal(t, fasthttp.StatusInternalServerError, status)
	assert.False(t, resp.Success)
}

func TestAPI_Status(t *testing.T) {
	tests := []struct {
		name       string
		zones      *fakeZones
		wantZoneID string
		wantCached bool
	}{
		{"cached zone", &fakeZones{id: "zone-123", cached: true}, "zone-123", true},
		{"nothing cached", &fakeZones{}, "", false},
		{"store error", &fakeZones{err: errors.New("down")}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, handler := setupAPI(&fakePurger{}, tt.zones)

			status, resp := serve(t, handler, fasthttp.MethodGet, PathStatus, nil, true)
			require.Equal(t, fasthttp.StatusOK, status)

			var sr StatusResponse
			require.NoError(t, json.Unmarshal(resp.Data, &sr))
			assert.Equal(t, "purge-1", sr.DaemonID)
			assert.Equal(t, tt.wantZoneID, sr.ZoneID)
			assert.Equal(t, tt.wantCached, sr.ZoneCached)
			assert.GreaterOrEqual(t, sr.UptimeSeconds, 0.0)
		})
	}
}

func TestAPI_SlowPurgeStillAccepted(t *testing.T) {
	purger := &fakePurger{result: true, delay: 2 * time.Second}
	api, handler := setupAPI(purger, &fakeZones{})
	api.WithTimeout(50 * time.Millisecond)

	start := time.Now()
	status, resp := serve(t, handler, fasthttp.MethodPost, PathSwitchTheme, nil, true)

	assert.Equal(t, fasthttp.StatusAccepted, status)
	assert.True(t, resp.Success)
	assert.False(t, decodePurged(t, resp))
	assert.Less(t, time.Since(start), time.Second)
	require.Eventually(t, func() bool { return purger.cancelledCount() == 1 }, 2*time.Second, 5*time.Millisecond,
		"the abandoned purge is cancelled")
}

func TestAPI_PurgeWithinTimeout(t *testing.T) {
	purger := &fakePurger{result: true, delay: 10 * time.Millisecond}
	api, handler := setupAPI(purger, &fakeZones{})
	api.WithTimeout(2 * time.Second)

	status, resp := serve(t, handler, fasthttp.MethodPost, PathCachePurged, nil, true)
	assert.Equal(t, fasthttp.StatusAccepted, status)
	assert.True(t, decodePurged(t, resp))
	assert.Zero(t, purger.cancelledCount())
}

func TestAPI_SlowManualPurge(t *testing.T) {
	purger := &fakePurger{
		delay:  2 * time.Second,
		notice: &orchestrator.Notice{Level: orchestrator.NoticeSuccess, Message: "sent"},
	}
	api, handler := setupAPI(purger, &fakeZones{})
	api.WithTimeout(50 * time.Millisecond)

	q := url.Values{}
	q.Set(PurgeZoneParam, "1")
	q.Set(NonceParam, api.nonces.Create(PurgeZoneAction, "admin"))
	q.Set(UserParam, "admin")

	status, resp := serve(t, handler, fasthttp.MethodGet, PathAdminPurge+"?"+q.Encode(), nil, false)
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.Message)
}

func TestServer_SlowPurgeOverConnection(t *testing.T) {
	purger := &fakePurger{result: true, delay: 2 * time.Second}
	api := NewAPI(purger, &fakeZones{}, nonce.NewGenerator("nonce-secret", time.Hour),
		"https://example.com/wp-admin/", "purge-1", zap.NewNop()).WithTimeout(100 * time.Millisecond)
	s := NewServer(testAuthKey, nil, zap.NewNop())
	api.Register(s)

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	client := &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI("http://hooks.local" + PathSwitchTheme)
	req.Header.Set(AuthHeader, testAuthKey)

	require.NoError(t, client.DoTimeout(req, resp, 5*time.Second))
	assert.Equal(t, fasthttp.StatusAccepted, resp.StatusCode())

	var body apiResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &body))
	assert.False(t, decodePurged(t, body))
}
