package handlers

import (
	"context"
	"html/template"

	"Raksha/internal/domain"
	"Raksha/internal/emergency"
	"Raksha/internal/livestream"
	"Raksha/internal/models"
	"Raksha/pkg/i18n"
	"Raksha/pkg/metrics"
	"Raksha/pkg/middleware"
	"Raksha/pkg/sse"
	"Raksha/pkg/websocket"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Emergency is the orchestration core as the API sees it.
type Emergency interface {
	Trigger(ctx context.Context, t domain.Trigger) (domain.Alert, bool, error)
	Resolve(ctx context.Context, by string) (bool, error)
	ResolveAlert(ctx context.Context, alertID, by string) (bool, error)
	Status() emergency.Status
}

type AlertBook interface {
	Alert(ctx context.Context, id string) (domain.Alert, error)
	Alerts(ctx context.Context, userID string, limit int) ([]domain.Alert, error)
	Actions(ctx context.Context, alertID string) ([]models.AlertAction, error)
}

type ContactBook interface {
	Contacts(ctx context.Context, userID string) ([]domain.Contact, error)
	AddContact(ctx context.Context, c domain.Contact) (domain.Contact, error)
	RemoveContact(ctx context.Context, userID, id string) error
}

type PositionSink interface {
	Update(p domain.Position) error
}

// Relay delivers signals to the members of an alert room.
type Relay interface {
	Notify(alertID string, sig websocket.Signal) (int, error)
}

type DashboardConfig struct {
	User     string
	Password string
	Secret   string
}

type Deps struct {
	DB        *gorm.DB
	UserID    string
	Emergency Emergency
	Alerts    AlertBook
	Contacts  ContactBook
	Device    PositionSink
	Relay     Relay
	Hub       *websocket.Hub
	Links     *livestream.LinkSigner
	Events    *sse.Hub
	Metrics   *metrics.Metrics
	Limiter   *middleware.RateLimiter
	I18n      *i18n.I18nSupport
	Dashboard DashboardConfig
}

type Handlers struct {
	Deps
}

func NewHandlers(deps Deps) *Handlers {
	return &Handlers{Deps: deps}
}

func (h *Handlers) Register(engine *gin.Engine) {
	engine.SetHTMLTemplate(template.Must(template.New("watch").Parse(watchPage)))
	if h.Metrics != nil {
		engine.Use(metrics.Middleware(h.Metrics))
		engine.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	secret := h.Dashboard.Secret
	if secret == "" {
		secret = "raksha-dev-session"
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 12 * 3600, HttpOnly: true})
	engine.Use(sessions.Sessions(sessionName, store))

	r := engine.Group("/api")
	if h.I18n != nil {
		r.Use(middleware.LanguageMiddleware(h.I18n, "en"))
	}
	h.registerSystemRoutes(r)
	h.registerEmergencyRoutes(r)
	h.registerAlertRoutes(r)
	h.registerContactRoutes(r)
	h.registerDashboardRoutes(engine)
	h.registerStreamRoutes(engine)
}

func (h *Handlers) registerEmergencyRoutes(r *gin.RouterGroup) {
	em := r.Group("emergency")
	limited := em.Group("")
	if h.Limiter != nil {
		limited.Use(h.Limiter.Middleware())
	}
	{
		limited.POST("/trigger", h.handleTrigger)

		limited.POST("/resolve", h.handleResolve)

		em.GET("/status", h.handleStatus)
	}
	r.POST("/location", h.handleLocation)
}

func (h *Handlers) registerAlertRoutes(r *gin.RouterGroup) {
	alerts := r.Group("alerts")
	{
		alerts.GET("", h.handleListAlerts)

		alerts.GET("/:id", h.handleGetAlert)
	}
}

func (h *Handlers) registerContactRoutes(r *gin.RouterGroup) {
	contacts := r.Group("contacts")
	{
		contacts.GET("", h.handleListContacts)

		contacts.POST("", h.handleAddContact)

		contacts.DELETE("/:id", h.handleRemoveContact)
	}
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)
	}
}

func (h *Handlers) registerDashboardRoutes(engine *gin.Engine) {
	dash := engine.Group("dashboard")
	{
		dash.POST("/login", h.handleDashboardLogin)

		dash.POST("/logout", h.handleDashboardLogout)

		dash.GET("/events", h.GuardianRequired, h.handleDashboardEvents)

		dash.GET("/status", h.GuardianRequired, h.handleStatus)

		dash.POST("/alerts/:id/resolve", h.GuardianRequired, h.handleGuardianResolve)
	}
}

func (h *Handlers) registerStreamRoutes(engine *gin.Engine) {
	engine.GET("/watch/:token", h.handleWatch)
	if h.Hub != nil {
		websocket.RegisterRoutes(engine, websocket.NewHandler(h.Hub, h.authorizeStream))
	}
}
