// Package bootstrap assembles the emergency core, its adapters and the HTTP
// surface from the loaded configuration.
package bootstrap

import (
	"context"
	"io"
	"net/http"
	"time"

	"Raksha/internal/domain"
	"Raksha/internal/emergency"
	"Raksha/internal/events"
	"Raksha/internal/fanout"
	"Raksha/internal/geo"
	handlers "Raksha/internal/handler"
	"Raksha/internal/keyword"
	"Raksha/internal/listeners"
	"Raksha/internal/livestream"
	"Raksha/internal/media"
	"Raksha/internal/ports"
	"Raksha/internal/retention"
	"Raksha/internal/store"
	"Raksha/pkg/cache"
	"Raksha/pkg/config"
	"Raksha/pkg/errors"
	"Raksha/pkg/i18n"
	"Raksha/pkg/metrics"
	"Raksha/pkg/middleware"
	"Raksha/pkg/scheduler"
	"Raksha/pkg/sse"
	"Raksha/pkg/storage"
	"Raksha/pkg/util"
	"Raksha/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	cfg *config.Config
	log *zap.Logger

	db      *gorm.DB
	cache   cache.Cache
	sched   *scheduler.Scheduler
	cron    *scheduler.Cron
	bus     *events.Bus
	hub     *websocket.Hub
	machine *emergency.Machine
	spotter *keyword.Spotter
	server  *http.Server
	closers []io.Closer
}

func New(ctx context.Context, cfg *config.Config, lg *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, log: lg}
	ok := false
	defer func() {
		if !ok {
			a.release()
		}
	}()

	loc, err := time.LoadLocation(cfg.Emergency.Timezone)
	if err != nil {
		lg.Warn("unknown timezone, using local", zap.String("timezone", cfg.Emergency.Timezone), zap.Error(err))
		loc = time.Local
	}
	tr, err := i18n.NewI18nSupport(cfg.Emergency.Language)
	if err != nil {
		return nil, errors.Wrap(err, "load locales")
	}

	if a.db, err = util.InitDatabase(cfg.DBDriver, cfg.DSN, cfg.Mode == "development"); err != nil {
		return nil, err
	}
	if a.cache, err = cache.NewCache(cfg.Cache); err != nil {
		return nil, errors.Wrap(err, "init cache")
	}
	st, err := store.New(a.db, a.cache)
	if err != nil {
		return nil, err
	}
	blobs, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, errors.Wrap(err, "init clip storage")
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	dashboard := sse.NewHub(0, 0)
	sink := ports.MultiSink{handlers.NewDashboardSink(dashboard)}

	// fan-out
	senderOpts, mail := senders(cfg.Senders, cfg.Emergency.UserName, cfg.Emergency.Language, tr, m, lg)
	fan := fanout.New(fanout.NewTemplateRenderer(tr, loc), fanout.Config{
		Stagger:     cfg.Fanout.Stagger,
		SendTimeout: cfg.Fanout.SendTimeout,
	}, append(senderOpts,
		fanout.WithSink(sink),
		fanout.WithObserver(m),
		fanout.WithLogger(lg.Named("fanout")),
	)...)

	// capture
	a.sched = scheduler.New()
	capture := media.NewManager(media.NewFFmpegDevice(media.FFmpegConfig{
		Command:     cfg.Capture.FFmpeg,
		VideoFormat: cfg.Capture.VideoFormat,
		AudioFormat: cfg.Capture.AudioFormat,
		Container:   media.Container(cfg.Capture.Container),
		Bitrate:     cfg.Capture.Bitrate,
	}), a.sched, media.Config{
		ChunkInterval:   cfg.Capture.ChunkInterval,
		CompactInterval: cfg.Capture.CompactInterval,
		MaxBytes:        cfg.Capture.MaxBytes,
		ReplayBytes:     int(cfg.Capture.ReplayBytes),
	}, media.WithObserver(m), media.WithLogger(lg.Named("media")))

	constraints := domain.DefaultConstraints()
	constraints.Video = cfg.Capture.Video
	constraints.AudioDevice = cfg.Capture.AudioDevice
	constraints.VideoDevice = cfg.Capture.VideoDevice

	// relay and livestream
	a.hub = websocket.NewHub(websocket.LoadConfigFromEnv(), websocket.WithViewerObserver(m.ViewerCount))
	links, session, err := a.livestream(cfg.Livestream, capture, sink)
	if err != nil {
		return nil, err
	}

	// location
	device := geo.NewDeviceLocator(0)
	chain := geo.Chain{Locators: []ports.Locator{device}, Step: cfg.Emergency.GeoTimeout / 2}
	if cfg.GeoIPPath != "" {
		reader, err := geo.OpenGeoIP(cfg.GeoIPPath)
		if err != nil {
			lg.Warn("geoip database unavailable", zap.String("path", cfg.GeoIPPath), zap.Error(err))
		} else {
			a.closers = append(a.closers, reader)
			chain.Locators = append(chain.Locators, geo.NewGeoIPLocator(reader, geo.EchoIPSource(cfg.PublicIPURL, nil), cfg.GeoIPCacheTTL))
		}
	}

	// lifecycle events
	a.bus = events.NewBus(lg.Named("events"))
	guardian := listeners.NewGuardianListener(listeners.GuardianConfig{
		UserName: cfg.Emergency.UserName,
		Lang:     cfg.Emergency.Language,
		Location: loc,
		Aliases:  cfg.Senders.GuardianAliases,
	}, tr, guardianPusher(cfg.Senders.JPush), guardianMailer(mail), st, cfg.Emergency.UserID)
	if err := listeners.InitGuardianListeners(ctx, a.bus, guardian); err != nil {
		return nil, err
	}

	opts := []emergency.Option{
		emergency.WithContacts(st),
		emergency.WithLocator(chain),
		emergency.WithCapture(capture),
		emergency.WithNotifier(fan),
		emergency.WithUploader(storage.NewUploader(blobs)),
		emergency.WithPublisher(a.bus),
		emergency.WithSink(sink),
		emergency.WithObserver(m),
		emergency.WithLogger(lg.Named("emergency")),
	}
	if session != nil {
		opts = append(opts, emergency.WithLivestream(session))
	}
	a.machine = emergency.New(emergency.Config{
		UserID:      cfg.Emergency.UserID,
		UserName:    cfg.Emergency.UserName,
		Lang:        cfg.Emergency.Language,
		GeoTimeout:  cfg.Emergency.GeoTimeout,
		Constraints: constraints,
	}, st, opts...)

	if cfg.Keyword.Enabled {
		if a.spotter, err = a.keywordSpotter(ctx, cfg, sink); err != nil {
			return nil, err
		}
	}

	a.cron = scheduler.NewCron(loc, lg)
	if err := retention.Schedule(a.cron, cfg.RetentionSchedule, retention.NewJob(st, blobs, cfg.RetentionDays, m)); err != nil {
		return nil, err
	}

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:       cfg.RateLimit,
		Identifier: "ip",
		AddHeaders: true,
	}, nil).WithObserver(middleware.NewPrometheusObserver(reg))

	deps := handlers.Deps{
		DB:        a.db,
		UserID:    cfg.Emergency.UserID,
		Emergency: a.machine,
		Alerts:    st,
		Contacts:  st,
		Device:    device,
		Relay:     a.hub,
		Hub:       a.hub,
		Links:     links,
		Events:    dashboard,
		Limiter:   limiter,
		I18n:      tr,
		Dashboard: handlers.DashboardConfig{
			User:     cfg.DashboardUser,
			Password: cfg.DashboardPassword,
			Secret:   cfg.SessionSecret,
		},
	}
	if cfg.MetricsEnabled {
		deps.Metrics = m
	}

	if cfg.Mode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	handlers.NewHandlers(deps).Register(engine)
	a.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ok = true
	return a, nil
}

// livestream returns nil links and session when streaming is disabled.
func (a *App) livestream(cfg config.LivestreamConfig, tap livestream.Tap, sink ports.EventSink) (*livestream.LinkSigner, *livestream.Session, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	secret := cfg.Secret
	if secret == "" {
		a.log.Warn("LIVESTREAM_SECRET not set, viewer links will not survive a restart")
		secret = uuid.NewString()
	}
	links, err := livestream.NewLinkSigner(secret, cfg.PublicBase, cfg.LinkTTL)
	if err != nil {
		return nil, nil, err
	}

	lg := a.log.Named("livestream")
	var pub livestream.Publisher
	switch cfg.Publisher {
	case "webrtc":
		if media.Container(a.cfg.Capture.Container) != media.ContainerIVF {
			lg.Warn("webrtc publisher expects CAPTURE_CONTAINER=ivf", zap.String("container", a.cfg.Capture.Container))
		}
		if pub, err = livestream.NewWebRTCPublisher(tap, livestream.WebRTCConfig{ICEServers: cfg.ICEServers}, lg); err != nil {
			return nil, nil, err
		}
	default:
		pub = livestream.NewChunkPublisher(tap, 0, lg)
	}

	dialer := &livestream.RelayDialer{BaseURL: cfg.Relay, Tokens: links, Log: lg}
	session := livestream.NewSession(dialer, pub, links,
		livestream.WithSessionSink(sink),
		livestream.WithSessionLogger(lg),
	)
	return links, session, nil
}

// Run serves HTTP and the background jobs until ctx ends or the listener
// fails.
func (a *App) Run(ctx context.Context) error {
	a.cron.Start()
	if a.spotter != nil {
		if err := a.spotter.Start(ctx); err != nil {
			a.log.Warn("keyword spotting not started", zap.Error(err))
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serveErr:
		return err
	}
}

// Shutdown stops accepting requests, closes the active alert's devices and
// releases every resource. An active alert stays unresolved.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.spotter != nil {
		a.spotter.Stop()
	}
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, errors.Wrap(err, "http shutdown"))
	}
	a.machine.Close(ctx)
	a.cron.Stop()
	if err := a.release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) release() error {
	var errs []error
	if a.hub != nil {
		a.hub.Close()
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.sched != nil {
		a.sched.Stop()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
