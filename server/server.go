package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/eezybuild/eezybuild/internal/models"
	"github.com/eezybuild/eezybuild/pkg/ingest"
	"github.com/eezybuild/eezybuild/pkg/logger"
)

// Answerer answers one chat message, optionally scoped to a project.
type Answerer interface {
	Answer(ctx context.Context, message string, scope *models.ProjectContext) (*models.ChatAnswer, error)
}

// Refresher runs the regulations ingestion job.
type Refresher interface {
	RefreshRegulationsIndex(ctx context.Context, sourceURL string) (models.IngestionResult, error)
}

type Config struct {
	Port      string
	Mode      string
	SourceURL string
	// IngestInterval schedules RefreshRegulationsIndex; zero disables it.
	IngestInterval  time.Duration
	ShutdownTimeout time.Duration
}

// Server exposes chat and ingestion over HTTP and websocket. A nil chat or
// ingest dependency is reported to callers as missing configuration.
type Server struct {
	config Config
	chat   Answerer
	ingest Refresher
	log    *logger.Logger
	router *gin.Engine
}

func New(config Config, chat Answerer, ingest Refresher, log *logger.Logger) *Server {
	if config.Port == "" {
		config.Port = "8080"
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 15 * time.Second
	}
	if config.Mode == gin.ReleaseMode || config.Mode == gin.TestMode || config.Mode == gin.DebugMode {
		gin.SetMode(config.Mode)
	}

	s := &Server{
		config: config,
		chat:   chat,
		ingest: ingest,
		log:    log.With("component", "server"),
	}
	s.router = s.newRouter()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("eezybuild"))
	router.Use(RequestID())
	router.Use(RequestLogger(s.log))
	router.Use(CORS())

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	router.POST("/building-regulations-chat", s.handleChat)
	router.POST("/building-regs-updater", s.handleIngest)
	router.GET("/ws", s.handleWebSocket)

	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully. The
// ingestion schedule runs alongside when configured.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.config.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("starting server", "port", s.config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		s.log.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	if s.config.IngestInterval > 0 && s.ingest != nil {
		g.Go(func() error {
			s.schedule(gctx)
			return nil
		})
	}

	return g.Wait()
}

func (s *Server) schedule(ctx context.Context) {
	ticker := time.NewTicker(s.config.IngestInterval)
	defer ticker.Stop()

	s.log.Info("ingestion scheduled", "interval", s.config.IngestInterval, "source_url", s.config.SourceURL)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.ingest.RefreshRegulationsIndex(ctx, s.config.SourceURL)
			switch {
			case errors.Is(err, ingest.ErrRunInProgress):
				s.log.Info("scheduled ingestion skipped, run in progress")
			case err != nil:
				s.log.Error("scheduled ingestion failed", "error", err)
			default:
				s.log.Info("scheduled ingestion completed", "vectors", result.VectorsCreated)
			}
		}
	}
}
