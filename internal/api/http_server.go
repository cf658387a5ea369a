package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"busticket/internal/config"
	"busticket/internal/domain"
	"busticket/internal/models"
	"busticket/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the HTTP layer dispatches to.
type Deps struct {
	App                config.AppConfig
	API                config.APIConfig
	CancellationWindow time.Duration
	Currency           string
	Location           *time.Location

	Bookings *service.BookingService
	Payments *service.PaymentService
	Vehicles *service.VehicleService
	Auth     *service.AuthService

	// Store is probed by the readiness endpoint; Degraded marks the file fallback.
	Store    domain.Store
	Degraded bool

	Logger *zerolog.Logger
}

// HTTPServer exposes the booking REST API.
type HTTPServer struct {
	cfg    config.APIConfig
	engine *gin.Engine
	server *http.Server

	bookings *service.BookingService
	payments *service.PaymentService
	vehicles *service.VehicleService
	auth     *service.AuthService
	store    domain.Store
	degraded bool

	currency      string
	loc           *time.Location
	production    bool
	windowMessage string
	logger        *zerolog.Logger
}

func NewHTTPServer(deps Deps) *HTTPServer {
	registerValidators()
	if deps.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}

	srv := &HTTPServer{
		cfg:           deps.API,
		bookings:      deps.Bookings,
		payments:      deps.Payments,
		vehicles:      deps.Vehicles,
		auth:          deps.Auth,
		store:         deps.Store,
		degraded:      deps.Degraded,
		currency:      deps.Currency,
		loc:           loc,
		production:    deps.App.IsProduction(),
		windowMessage: fmt.Sprintf("Cannot cancel booking within %s of departure", describeWindow(deps.CancellationWindow)),
		logger:        deps.Logger,
	}

	engine := gin.New()
	engine.Use(
		requestID(),
		srv.accessLog(),
		srv.recovery(),
		corsMiddleware(deps.API.CORSOrigins),
		newRateLimiter(deps.API.RateLimit).middleware(),
	)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, envelope{Message: "Route not found"})
	})

	engine.GET("/healthz", srv.handleHealth)
	engine.GET("/readyz", srv.handleReady)
	engine.GET("/api/health", srv.handleReady)

	// /api is kept for clients of the original route layout.
	srv.registerRoutes(engine.Group("/api/v1"))
	srv.registerRoutes(engine.Group("/api"))

	srv.engine = engine
	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.API.HTTP.Port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) registerRoutes(rg *gin.RouterGroup) {
	admin := s.requireAdmin()
	superAdmin := s.requireRole(models.RoleSuperAdmin)

	vehicles := rg.Group("/vehicles")
	vehicles.GET("", s.handleListVehicles)
	vehicles.GET("/:id", s.handleGetVehicle)
	vehicles.GET("/:id/seats", s.handleSeatMap)
	vehicles.POST("", admin, s.handleCreateVehicle)
	vehicles.PUT("/:id", admin, s.handleUpdateVehicle)
	vehicles.DELETE("/:id", admin, s.handleDeleteVehicle)

	bookings := rg.Group("/bookings")
	bookings.POST("", s.handleCreateBooking)
	bookings.POST("/verify-payment", s.handleVerifyPayment)
	bookings.POST("/payhere-notify", s.handlePayHereNotify)
	bookings.GET("/ticket/:ticketNumber", s.handleGetByTicket)
	bookings.GET("/ticket/:ticketNumber/qr", s.handleTicketQR)
	bookings.GET("/ticket/:ticketNumber/pdf", s.handleTicketPDF)
	bookings.PUT("/:id/cancel", s.handleCancelBooking)
	bookings.POST("/:id/payment", s.handleRetryPayment)
	bookings.GET("", admin, s.handleListBookings)
	bookings.GET("/stats", admin, s.handleStatistics)
	bookings.GET("/export", admin, s.handleExportBookings)
	bookings.GET("/:id", admin, s.handleGetBooking)

	auth := rg.Group("/auth")
	auth.POST("/login", s.handleLogin)
	auth.GET("/profile", admin, s.handleProfile)
	auth.POST("/admins", admin, superAdmin, s.handleCreateAdmin)
	auth.POST("/create-admin", admin, superAdmin, s.handleCreateAdmin)
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func describeWindow(d time.Duration) string {
	if d <= 0 {
		return "0 hours"
	}
	if d%time.Hour == 0 {
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
