package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
	"github.com/trezcool/feeledger/core/gateway"
	"github.com/trezcool/feeledger/core/payment"
	"github.com/trezcool/feeledger/core/report"
	"github.com/trezcool/feeledger/core/tenant"
	"github.com/trezcool/feeledger/core/user"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc    *user.Service
		Resolver   *tenant.Resolver
		FeeSvc     *fee.Service
		Recorder   *payment.Recorder
		Reconciler *gateway.Reconciler
		ReportSvc  *report.Service

		DisableReqLogs bool
	}

	Server struct {
		deps     ServerDeps
		auth     *Auth
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		auth:     NewAuth(deps.Conf),
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode
	s.app.HideBanner = true

	s.app.GET("/", s.home)

	v1 := s.app.Group("/api/v1")
	jwt := middleware.JWTWithConfig(s.auth.jwtConfig())
	tenantScope := tenantMiddleware(s.deps.Resolver)

	registerUserAPI(v1, jwt, tenantScope, s.auth, s.deps.UserSvc, s.deps.Validate)
	registerFeeAPI(v1, jwt, tenantScope, s.deps.FeeSvc, s.deps.Recorder, s.deps.Reconciler, s.deps.Validate)
	registerPaymentAPI(v1, jwt, tenantScope, s.deps.Reconciler)
	registerGatewayAPI(v1, s.deps.Reconciler, conf.FrontendBaseURL, s.deps.Logger)
	registerReportAPI(v1, jwt, tenantScope, s.deps.FeeSvc, s.deps.ReportSvc)
}

// Start listens until the server is shut down; errors are reported on Errors().
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
