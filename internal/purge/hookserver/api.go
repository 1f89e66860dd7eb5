// Package hookserver exposes the purge triggers and admin actions over HTTP.
package hookserver

import (
	"context"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/cfpurge/internal/common/httputil"
	"github.com/edgecomet/cfpurge/internal/purge/nonce"
	"github.com/edgecomet/cfpurge/internal/purge/orchestrator"
	"github.com/edgecomet/cfpurge/internal/purge/triggers"
)

// Routes
const (
	PathSwitchTheme          = "/hooks/switch-theme"
	PathCachePurged          = "/hooks/cache-purged"
	PathTransitionPostStatus = "/hooks/transition-post-status"
	PathScheduledDelete      = "/hooks/scheduled-delete"
	PathContentChanged       = "/hooks/content-changed"
	PathAdminMenu            = "/admin/menu"
	PathAdminPurge           = "/admin/purge"
	PathAdminZoneReset       = "/admin/zone/reset"
	PathStatus               = "/status"
)

// Admin purge link parameters and nonce action, as rendered by the host
const (
	PurgeZoneParam  = "cloudflare_full_page_caching_purge_zone"
	NonceParam      = "_wpnonce"
	UserParam       = "user"
	PurgeZoneAction = "cloudflare-full-page-caching-purge-zone"
	menuTitle       = "Purge Cloudflare"
)

// Purger executes trigger actions
type Purger interface {
	Dispatch(ctx context.Context, action triggers.Action) bool
	ManualPurge(ctx context.Context) *orchestrator.Notice
}

// ZoneAdmin inspects and resets the cached zone id
type ZoneAdmin interface {
	Cached(ctx context.Context) (string, bool, error)
	Reset(ctx context.Context) error
}

// API holds the handlers behind the hook server routes.
type API struct {
	purger    Purger
	zones     ZoneAdmin
	nonces    *nonce.Generator
	publicURL string
	daemonID  string
	timeout   time.Duration // 0 = purges are bounded only by the provider client
	startTime time.Time
	logger    *zap.Logger
}

func NewAPI(purger Purger, zones ZoneAdmin, nonces *nonce.Generator, publicURL, daemonID string, logger *zap.Logger) *API {
	return &API{
		purger:    purger,
		zones:     zones,
		nonces:    nonces,
		publicURL: publicURL,
		daemonID:  daemonID,
		startTime: time.Now().UTC(),
		logger:    logger,
	}
}

// WithTimeout bounds each purge run by a handler. A purge that outlasts it is
// cancelled and answered as not purged.
func (a *API) WithTimeout(timeout time.Duration) *API {
	a.timeout = timeout
	return a
}

// Register wires every route into s.
func (a *API) Register(s *Server) {
	s.RegisterHandler(fasthttp.MethodPost, PathSwitchTheme, a.handleSwitchTheme)
	s.RegisterHandler(fasthttp.MethodPost, PathCachePurged, a.handleCachePurged)
	s.RegisterHandler(fasthttp.MethodPost, PathTransitionPostStatus, a.handleTransitionPostStatus)
	s.RegisterHandler(fasthttp.MethodPost, PathScheduledDelete, a.handleScheduledDelete)
	s.RegisterHandler(fasthttp.MethodPost, PathContentChanged, a.handleContentChanged)
	s.RegisterHandler(fasthttp.MethodGet, PathAdminMenu, a.handleAdminMenu)
	s.RegisterHandler(fasthttp.MethodPost, PathAdminZoneReset, a.handleZoneReset)
	s.RegisterHandler(fasthttp.MethodGet, PathStatus, a.handleStatus)
	s.RegisterPublicHandler(fasthttp.MethodGet, PathAdminPurge, a.handleAdminPurge)
}

func (a *API) handleSwitchTheme(ctx *fasthttp.RequestCtx) {
	var req SwitchThemeRequest
	if !a.decodeOptional(ctx, &req) {
		return
	}
	action, _ := triggers.SwitchTheme()
	a.logger.Debug("Theme switched", zap.String("theme", req.Theme))
	a.dispatch(ctx, action, true)
}

func (a *API) handleCachePurged(ctx *fasthttp.RequestCtx) {
	var req CachePurgedRequest
	if !a.decodeOptional(ctx, &req) {
		return
	}
	action, _ := triggers.CachePurged(req.Source)
	a.logger.Debug("Upstream cache purged", zap.String("source", req.Source))
	a.dispatch(ctx, action, true)
}

func (a *API) handleTransitionPostStatus(ctx *fasthttp.RequestCtx) {
	var req TransitionPostStatusRequest
	if err := httputil.DecodeBody(ctx, &req); err != nil {
		httputil.JSONError(ctx, err.Error(), fasthttp.StatusBadRequest)
		return
	}
	action, ok := triggers.TransitionPostStatus(req.OldStatus, req.NewStatus, req.Post)
	a.dispatch(ctx, action, ok)
}

func (a *API) handleScheduledDelete(ctx *fasthttp.RequestCtx) {
	var req ScheduledDeleteRequest
	if err := httputil.DecodeBody(ctx, &req); err != nil {
		httputil.JSONError(ctx, err.Error(), fasthttp.StatusBadRequest)
		return
	}
	action, ok := triggers.ScheduledDelete(req.Posts)
	a.dispatch(ctx, action, ok)
}

func (a *API) handleContentChanged(ctx *fasthttp.RequestCtx) {
	var req ContentChangedRequest
	if err := httputil.DecodeBody(ctx, &req); err != nil {
		httputil.JSONError(ctx, err.Error(), fasthttp.StatusBadRequest)
		return
	}
	action, ok := triggers.ContentChanged(req.Hook, req.Post)
	if !ok {
		a.logger.Debug("Ignoring unknown content hook", zap.String("hook", req.Hook))
	}
	a.dispatch(ctx, action, ok)
}

// dispatch runs the action, if any, and always answers 202
func (a *API) dispatch(ctx *fasthttp.RequestCtx, action triggers.Action, ok bool) {
	purged := false
	if ok {
		var result bool
		if a.run(action.Trigger, func(runCtx context.Context) {
			result = a.purger.Dispatch(runCtx, action)
		}) {
			purged = result
		}
	}
	httputil.JSONData(ctx, PurgeResponse{Purged: purged}, fasthttp.StatusAccepted)
}

// run calls fn under the purge timeout and reports whether it finished. fn
// must only write state the caller reads after a true return.
func (a *API) run(trigger string, fn func(ctx context.Context)) bool {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if a.timeout > 0 {
		runCtx, cancel = context.WithTimeout(context.Background(), a.timeout)
	} else {
		runCtx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(runCtx)
	}()

	select {
	case <-done:
		return true
	case <-runCtx.Done():
		a.logger.Warn("Purge did not finish within request timeout",
			zap.String("trigger", trigger),
			zap.Duration("timeout", a.timeout))
		return false
	}
}

func (a *API) decodeOptional(ctx *fasthttp.RequestCtx, v interface{}) bool {
	if len(ctx.Request.Body()) == 0 {
		return true
	}
	if err := httputil.DecodeBody(ctx, v); err != nil {
		httputil.JSONError(ctx, err.Error(), fasthttp.StatusBadRequest)
		return false
	}
	return true
}

func (a *API) handleAdminMenu(ctx *fasthttp.RequestCtx) {
	user := string(ctx.QueryArgs().Peek(UserParam))
	if user == "" {
		httputil.JSONError(ctx, "user is required", fasthttp.StatusBadRequest)
		return
	}

	href, err := a.PurgeLink(user)
	if err != nil {
		a.logger.Error("Failed to build purge link", zap.Error(err))
		httputil.JSONError(ctx, "invalid public url", fasthttp.StatusInternalServerError)
		return
	}

	httputil.JSONData(ctx, MenuNode{
		ID:    PurgeZoneAction,
		Title: menuTitle,
		Href:  href,
		Meta:  MenuMeta{Title: menuTitle},
	}, fasthttp.StatusOK)
}

// PurgeLink adds the purge marker and a fresh nonce for user to the public URL.
func (a *API) PurgeLink(user string) (string, error) {
	u, err := url.Parse(a.publicURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(PurgeZoneParam, "1")
	q.Set(NonceParam, a.nonces.Create(PurgeZoneAction, user))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (a *API) handleAdminPurge(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()
	if !args.Has(PurgeZoneParam) {
		httputil.JSONError(ctx, PurgeZoneParam+" is required", fasthttp.StatusBadRequest)
		return
	}

	user := string(args.Peek(UserParam))
	token := string(args.Peek(NonceParam))
	if user == "" || !a.nonces.Verify(token, PurgeZoneAction, user) {
		a.logger.Warn("Rejected manual purge with invalid nonce",
			zap.String("user", user),
			zap.String("remote_addr", ctx.RemoteAddr().String()))
		httputil.JSONError(ctx, "invalid nonce", fasthttp.StatusForbidden)
		return
	}

	a.logger.Info("Manual purge requested", zap.String("user", user))
	var (
		result *orchestrator.Notice
		notice *orchestrator.Notice
	)
	if a.run(triggers.ManualPurgeTrigger, func(runCtx context.Context) {
		result = a.purger.ManualPurge(runCtx)
	}) {
		notice = result
	}
	if notice == nil {
		httputil.JSONResponse(ctx, false, "", nil, fasthttp.StatusOK)
		return
	}
	httputil.JSONResponse(ctx, notice.Level == orchestrator.NoticeSuccess, notice.Message, notice, fasthttp.StatusOK)
}

func (a *API) handleZoneReset(ctx *fasthttp.RequestCtx) {
	if err := a.zones.Reset(ctx); err != nil {
		a.logger.Error("Failed to reset zone id", zap.Error(err))
		httputil.JSONError(ctx, "failed to reset zone id", fasthttp.StatusInternalServerError)
		return
	}
	httputil.JSONSuccess(ctx, "zone id cleared", fasthttp.StatusOK)
}

func (a *API) handleStatus(ctx *fasthttp.RequestCtx) {
	resp := StatusResponse{
		DaemonID:      a.daemonID,
		UptimeSeconds: time.Since(a.startTime).Seconds(),
	}

	zoneID, cached, err := a.zones.Cached(ctx)
	if err != nil {
		a.logger.Warn("Failed to read cached zone id", zap.Error(err))
	} else if cached {
		resp.ZoneID = zoneID
		resp.ZoneCached = true
	}

	httputil.JSONData(ctx, resp, fasthttp.StatusOK)
}
