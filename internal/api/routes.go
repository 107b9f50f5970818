package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Ariya-rithvik/cardiosim-ai/internal/ai"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/artifact"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/cascade"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/config"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/content"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/store"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/util"
)

const (
	serviceName     = "CardioSim AI"
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// Config defines server dependencies. Only App is required; the remaining
// fields replace what NewServer would otherwise build from App.
type Config struct {
	App       *config.Config
	Version   string
	Content   *content.Store
	Registry  *cascade.Registry
	Artifacts artifact.Store
	Database  *store.Database
	// ControllerOptions are applied after the options derived from App.
	ControllerOptions []cascade.Option
}

// Server wires HTTP handlers to the cascade controller and its collaborators.
type Server struct {
	cfg            *config.Config
	version        string
	content        *content.Store
	controller     *cascade.Controller
	artifacts      artifact.Store
	local          *artifact.Local
	db             *store.Database
	ownsDB         bool
	audit          *auditRecorder
	notifier       *EventNotifier
	allowedOrigins []string
}

var jsonFieldNames sync.Once

// registerFieldNames makes validation errors report json/form field names.
func registerFieldNames() {
	jsonFieldNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return field.Name
		})
	})
}

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("configuration required")
	}
	registerFieldNames()
	app := cfg.App
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	fallback := cfg.Content
	if fallback == nil {
		loaded, err := content.Load()
		if err != nil {
			return nil, err
		}
		fallback = loaded
	}

	artifacts := cfg.Artifacts
	var local *artifact.Local
	if artifacts == nil {
		built, err := BuildArtifactStore(app.Artifacts)
		if err != nil {
			return nil, err
		}
		artifacts = built
	}
	if l, ok := artifacts.(*artifact.Local); ok {
		local = l
	}

	db := cfg.Database
	ownsDB := false
	if db == nil && strings.TrimSpace(app.AuditDBPath) != "" {
		opened, err := store.Open(app.AuditDBPath, app.SilentDB)
		if err != nil {
			return nil, fmt.Errorf("open audit database: %w", err)
		}
		db = opened
		ownsDB = true
	}
	if db == nil {
		logrus.Info("resolution audit disabled - no database path configured")
	}

	registry := cfg.Registry
	if registry == nil {
		built, err := BuildRegistry(app, artifacts)
		if err != nil {
			return nil, fmt.Errorf("provider registry: %w", err)
		}
		registry = built
	}

	notifier := NewEventNotifier()
	opts := []cascade.Option{
		cascade.WithLogger(logrus.StandardLogger()),
		cascade.WithObserver(notifier),
		cascade.WithOffline(app.Offline),
		cascade.WithBreaker(app.Resilience.BreakerFailures, app.Resilience.BreakerCooldown),
		cascade.WithTextCache(app.Resilience.TextCacheSize),
		cascade.WithPollBudget(ai.CapabilityVideo, app.Video.PollInterval, app.Video.MaxPolls),
		cascade.WithPollBudget(ai.CapabilityImage, app.Image.PollInterval, app.Image.MaxPolls),
	}
	opts = append(opts, cfg.ControllerOptions...)
	controller, err := cascade.NewController(registry, fallback, opts...)
	if err != nil {
		notifier.Close()
		return nil, fmt.Errorf("cascade controller: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"providers":        app.ConfiguredProviders(),
		"registered":       registry.Names(),
		"artifact_backend": app.Artifacts.Backend,
		"audit":            db != nil,
	}).Info("cascade controller ready")

	return &Server{
		cfg:            app,
		version:        version,
		content:        fallback,
		controller:     controller,
		artifacts:      artifacts,
		local:          local,
		db:             db,
		ownsDB:         ownsDB,
		audit:          newAuditRecorder(db),
		notifier:       notifier,
		allowedOrigins: app.AllowedOrigins,
	}, nil
}

// BuildArtifactStore opens the configured media backend.
func BuildArtifactStore(cfg config.ArtifactConfig) (artifact.Store, error) {
	if cfg.Backend == "s3" {
		s3, err := artifact.NewS3(context.Background(), artifact.S3Config{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 artifact store: %w", err)
		}
		return s3, nil
	}
	local, err := artifact.NewLocal(cfg.Dir, cfg.PublicPath)
	if err != nil {
		return nil, fmt.Errorf("local artifact store: %w", err)
	}
	return local, nil
}

// Close stops background workers and releases the audit database.
func (s *Server) Close() error {
	s.notifier.Close()
	s.audit.Close()
	if s.ownsDB && s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", requestIDHeader}
	corsCfg.ExposeHeaders = []string{requestIDHeader}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(corsCfg))
	r.Use(requestIDMiddleware())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/api/config", s.handleConfig)

	api := r.Group("/api")
	{
		api.POST("/analyze", s.handleAnalyze)
		api.POST("/explain", s.handleExplain)
		api.POST("/mentor", s.handleMentor)
		api.POST("/emergency", s.handleEmergency)
		api.POST("/emergency/analyze-image", s.handleAnalyzeImage)
		api.POST("/image-generation", s.handleImageGeneration)
		api.POST("/video-generation", s.handleVideoGeneration)
		api.POST("/video-generation/stream", s.handleVideoFrame)
		api.GET("/video-generation/templates", s.handleTemplates)
		api.POST("/video-generation/analyze-technique", s.handleAnalyzeTechnique)
		api.GET("/video-generation/files/:name", s.handleFile)
		api.GET("/resolutions", s.handleResolutions)
		api.GET("/events", s.handleEvents)
	}

	return r, nil
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Server) handleHealth(c *gin.Context) {
	var modelID *string
	if !s.cfg.MedGemmaMock {
		id := s.cfg.MedGemma.ModelID
		modelID = &id
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:                 "ok",
		Service:                serviceName,
		Version:                s.version,
		MockMode:               s.cfg.MedGemmaMock,
		ModelID:                modelID,
		GeminiEnabled:          s.cfg.Gemini.APIKey != "",
		VideoGenerationEnabled: s.cfg.VideoGenerationEnabled,
		ImageGenerationEnabled: s.cfg.ImageGenerationEnabled,
		Providers:              nonNil(s.cfg.ConfiguredProviders()),
	})
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"config":  s.cfg.Redacted(),
		"offline": s.cfg.OfflineDomains(),
		"version": s.version,
		"service": serviceName,
	})
}

func (s *Server) handleResolutions(c *gin.Context) {
	if s.db == nil {
		s.renderError(c, http.StatusServiceUnavailable, errors.New("resolution audit disabled"))
		return
	}
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	if pageSize <= 0 {
		pageSize = 25
	}
	if pageSize > 500 {
		pageSize = 500
	}
	domain := strings.TrimSpace(c.Query("domain"))

	rows, total, err := s.db.ListResolutions(store.ResolutionQuery{
		Domain:     domain,
		Provenance: strings.TrimSpace(c.Query("provenance")),
		RequestID:  strings.TrimSpace(c.Query("request_id")),
		Offset:     page * pageSize,
		Limit:      pageSize,
	})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	summary, err := s.db.ProvenanceCounts()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	rate, err := s.db.FallbackRate(domain)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	items := make([]ResolutionDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, ResolutionFromModel(row))
	}
	if summary == nil {
		summary = []store.ProvenanceCount{}
	}
	c.JSON(http.StatusOK, ResolutionsResponse{Items: items, Total: total, Summary: summary, FallbackRate: rate})
}

func (s *Server) handleEvents(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				return true
			}
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.notifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("event websocket connected")
	defer s.notifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("event websocket closed")
			} else {
				logrus.WithError(err).Warn("event websocket unexpected close")
			}
			break
		}
	}
}

// resolve runs one cascade resolution and queues it for audit.
func (s *Server) resolve(c *gin.Context, req ai.Request) cascade.Resolution {
	res := s.controller.Resolve(c.Request.Context(), req)
	s.audit.Record(req, res)
	return res
}

func (s *Server) meta(c *gin.Context, res cascade.Resolution, timer util.Timer) Meta {
	return Meta{
		RequestID:      requestID(c),
		Provenance:     res.Provenance,
		Mock:           res.Fallback(),
		Cached:         res.Cached,
		InferenceTimeS: timer.Seconds(),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
}

// bind decodes the request into dst with the given binding and renders
// validation failures. It reports whether the handler should continue.
func (s *Server) bind(c *gin.Context, dst interface{}, query bool) bool {
	var err error
	if query {
		err = c.ShouldBindQuery(dst)
	} else {
		err = c.ShouldBindJSON(dst)
	}
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return false
	}
	status := http.StatusBadRequest
	fields := make([]gin.H, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() != "required" {
			status = http.StatusUnprocessableEntity
		}
		entry := gin.H{"field": fe.Field(), "rule": fe.Tag()}
		if fe.Param() != "" {
			entry["param"] = fe.Param()
		}
		fields = append(fields, entry)
	}
	c.JSON(status, gin.H{"error": "validation failed", "fields": fields})
	return false
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
