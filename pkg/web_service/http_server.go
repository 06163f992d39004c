package web_service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/pzhenzhou/respcli/pkg/common"
	"github.com/pzhenzhou/respcli/pkg/metrics"
	"github.com/pzhenzhou/respcli/pkg/mockserver"
	"github.com/samber/lo"
	"github.com/soheilhy/cmux"
)

type HttpMethod string

const (
	GET    HttpMethod = "GET"
	POST   HttpMethod = "POST"
	PUT    HttpMethod = "PUT"
	DELETE HttpMethod = "DELETE"
)

const (
	StateKeyMockServer = "MockServer"
)

type ApiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

var (
	logger = common.InitLogger().WithName("web")
)

type WebHandler interface {
	Path() string
	Method() HttpMethod
	Handler(ctx *gin.Context)
}

type WebServer struct {
	r        *gin.Engine
	server   *http.Server
	handlers []WebHandler
}

// NewWebServer builds the admin server of a running mock server. collector
// may be nil, in which case no metrics endpoint is registered.
func NewWebServer(config *common.ServerConfig, srv *mockserver.Server, collector metrics.ClientMetricsCollector) *WebServer {
	allHandler := []WebHandler{
		&HealthCheckHandler{},
		&KeyspaceStatsHandler{},
		&SeedKeyHandler{},
		&FlushKeyspaceHandler{},
	}
	if collector != nil {
		allHandler = append(allHandler, NewMetricsHandler(config.Metrics.MetricsPath, collector))
	}
	return NewWebServerWithHandlers(config, srv, allHandler)
}

func NewWebServerWithHandlers(config *common.ServerConfig, srv *mockserver.Server, handlers []WebHandler) *WebServer {
	s := initWebServer(config, srv)
	for _, handler := range handlers {
		s.registerHandler(handler)
	}
	return s
}

func GlobalMockServer(srv *mockserver.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(StateKeyMockServer, srv)
		c.Next()
	}
}

func initWebServer(config *common.ServerConfig, srv *mockserver.Server) *WebServer {
	if common.IsProdRuntime() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	zapLogger := common.RawZapLogger()
	r.Use(GlobalMockServer(srv))
	r.Use(ginzap.RecoveryWithZap(zapLogger, true))
	r.Use(ginzap.GinzapWithConfig(zapLogger, &ginzap.Config{
		UTC:        true,
		TimeFormat: time.RFC3339,
		Skipper: func(c *gin.Context) bool {
			if strings.HasPrefix(c.Request.URL.Path, "/debug") {
				return true
			}
			return c.Request.URL.Path == "/healthz" && c.Request.Method == "GET"
		},
	}))
	if config.WebServer.EnablePprof {
		pprof.Register(r)
	}
	return &WebServer{
		r:        r,
		handlers: make([]WebHandler, 0),
	}
}

// Engine exposes the router, mostly for tests.
func (s *WebServer) Engine() *gin.Engine {
	return s.r
}

func (s *WebServer) Start(m cmux.CMux) error {
	httpL := m.Match(cmux.HTTP1Fast())
	httpServer := &http.Server{
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.server = httpServer
	logger.Info("WebServer starting.")
	if err := httpServer.Serve(httpL); err != nil {
		if errors.Is(err, http.ErrServerClosed) || errors.Is(err, cmux.ErrListenerClosed) {
			return nil
		}
		logger.Error(err, "Failed to start web server")
		return err
	}
	return nil
}

func (s *WebServer) Shutdown(ctx context.Context) {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			logger.Error(err, "Failed to shutdown web server")
		} else {
			logger.Info("WebServer stopped.")
		}
	}
}

func (s *WebServer) registerHandler(handler WebHandler) {
	_, ok := lo.Find(s.handlers, func(item WebHandler) bool {
		return item.Path() == handler.Path() && item.Method() == handler.Method()
	})
	if ok {
		logger.Info("handler already registered", "Path", handler.Path(),
			"Method", handler.Method())
		return
	}
	logger.Info("WebServer register handler", "Path", handler.Path(),
		"Method", handler.Method())
	switch handler.Method() {
	case GET:
		s.r.GET(handler.Path(), handler.Handler)
	case POST:
		s.r.POST(handler.Path(), handler.Handler)
	case PUT:
		s.r.PUT(handler.Path(), handler.Handler)
	case DELETE:
		s.r.DELETE(handler.Path(), handler.Handler)
	}
	s.handlers = append(s.handlers, handler)
}

var _ WebHandler = &HealthCheckHandler{}

type HealthCheckHandler struct {
}

func (h *HealthCheckHandler) Path() string {
	return "/healthz"
}

func (h *HealthCheckHandler) Method() HttpMethod {
	return GET
}

func (h *HealthCheckHandler) Handler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

var _ WebHandler = (*MetricsHandler)(nil)

type MetricsHandler struct {
	path    string
	handler gin.HandlerFunc
}

func NewMetricsHandler(path string, collector metrics.ClientMetricsCollector) *MetricsHandler {
	if path == "" {
		path = "/metrics"
	}
	return &MetricsHandler{path: path, handler: collector.Handler()}
}

func (m *MetricsHandler) Path() string {
	return m.path
}

func (m *MetricsHandler) Method() HttpMethod {
	return GET
}

func (m *MetricsHandler) Handler(ctx *gin.Context) {
	m.handler(ctx)
}
