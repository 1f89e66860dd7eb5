package hookserver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/cfpurge/internal/common/httputil"
	"github.com/edgecomet/cfpurge/internal/purge/metrics"
)

// AuthHeader carries the shared key on internal routes
const AuthHeader = "X-Internal-Auth"

const unmatchedRoute = "unmatched"

type route struct {
	handler fasthttp.RequestHandler
	public  bool
}

// Server routes hook and admin requests by exact method and path.
// Every route requires X-Internal-Auth unless registered as public.
type Server struct {
	authKey string
	routes  map[string]map[string]route // method -> path -> route
	metrics metrics.Recorder
	logger  *zap.Logger

	mu     sync.Mutex
	server *fasthttp.Server
	ln     net.Listener
}

func NewServer(authKey string, recorder metrics.Recorder, logger *zap.Logger) *Server {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Server{
		authKey: authKey,
		routes:  make(map[string]map[string]route),
		metrics: recorder,
		logger:  logger,
	}
}

// RegisterHandler adds an authenticated route.
func (s *Server) RegisterHandler(method, path string, handler fasthttp.RequestHandler) {
	s.register(method, path, route{handler: handler})
}

// RegisterPublicHandler adds a route that skips X-Internal-Auth; the handler
// must authorize the request itself.
func (s *Server) RegisterPublicHandler(method, path string, handler fasthttp.RequestHandler) {
	s.register(method, path, route{handler: handler, public: true})
}

func (s *Server) register(method, path string, r route) {
	if s.routes[method] == nil {
		s.routes[method] = make(map[string]route)
	}
	if _, exists := s.routes[method][path]; exists {
		s.logger.Warn("Overwriting existing handler registration",
			zap.String("method", method),
			zap.String("path", path))
	}
	s.routes[method][path] = r
}

// Start listens on address and serves until Shutdown.
func (s *Server) Start(address string) error {
	ln, err := net.Listen("tcp4", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return s.Serve(ln)
}

// Serve handles connections from ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &fasthttp.Server{
		Handler:            s.Handler(),
		Name:               "CFPurge-Hooks",
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		MaxRequestBodySize: 4 * 1024 * 1024,
		TCPKeepalive:       true,
	}

	s.mu.Lock()
	s.ln = ln
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("Hook server started", zap.String("address", ln.Addr().String()))
	return srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("Shutting down hook server")
	return srv.ShutdownWithContext(ctx)
}

// Addr returns the bound address once serving has begun.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Handler returns the routing handler without a listener.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		method := string(ctx.Method())
		path := string(ctx.Path())

		r, found := s.routes[method][path]
		label := path
		if !found {
			label = unmatchedRoute
		}
		defer func() {
			s.metrics.RecordHookRequest(label, ctx.Response.StatusCode())
		}()

		if !(found && r.public) && !s.authenticate(ctx) {
			return
		}

		if found {
			r.handler(ctx)
			return
		}

		for _, methodRoutes := range s.routes {
			if _, ok := methodRoutes[path]; ok {
				label = path
				httputil.JSONError(ctx, "method not allowed", fasthttp.StatusMethodNotAllowed)
				return
			}
		}

		httputil.JSONError(ctx, "not found", fasthttp.StatusNotFound)
	}
}

func (s *Server) authenticate(ctx *fasthttp.RequestCtx) bool {
	key := string(ctx.Request.Header.Peek(AuthHeader))
	if key == "" || key != s.authKey {
		s.logger.Warn("Unauthorized hook request",
			zap.String("remote_addr", ctx.RemoteAddr().String()),
			zap.String("path", string(ctx.Path())),
			zap.Bool("header_present", key != ""))
		httputil.JSONError(ctx, "unauthorized", fasthttp.StatusUnauthorized)
		return false
	}
	return true
}
