package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/victornm/tquiz/internal/api"
	"github.com/victornm/tquiz/internal/event"
	"github.com/victornm/tquiz/internal/leaderboard"
	"github.com/victornm/tquiz/internal/results"
	"github.com/victornm/tquiz/internal/session"
	"github.com/victornm/tquiz/internal/telemetry"
	"github.com/victornm/tquiz/internal/trivia"
	"github.com/victornm/tquiz/internal/tts"
)

type Config struct {
	HTTP struct {
		Port int32
		// AllowedOrigins for session streams. Empty means same origin only.
		AllowedOrigins []string
	}

	// GRPC serves the health service only. Port 0 disables it.
	GRPC struct {
		Port int32
	}

	Quiz struct {
		IdleTTL         time.Duration
		JanitorInterval time.Duration
	}

	Trivia struct {
		BaseURL string
		Timeout time.Duration
	}

	TTS struct {
		Endpoint string
		APIKey   string
		Timeout  time.Duration
	}

	// Redis enables the leaderboard and pub/sub notifications when Addrs is set.
	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	// Postgres enables the results archive when Addr is set.
	Postgres struct {
		Addr    string
		User    string
		Pass    string
		Name    string
		Migrate bool
	}
}

func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Quiz.IdleTTL = 2 * time.Hour
	c.Quiz.JanitorInterval = time.Minute
	c.Trivia.BaseURL = trivia.DefaultBaseURL
	c.Trivia.Timeout = 10 * time.Second
	c.TTS.Endpoint = tts.DefaultEndpoint
	c.TTS.Timeout = 30 * time.Second
	c.Redis.Prefix = "tquiz"
	return c
}

type Server struct {
	c Config

	eb      *event.Bus
	metrics *telemetry.Metrics

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	service struct {
		session     *session.Service
		results     *results.Service
		leaderboard *leaderboard.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server

	ctx    context.Context
	cancel context.CancelFunc
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.eb = event.NewBus()
	s.metrics = telemetry.NewMetrics()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	if err := s.initAPI(); err != nil {
		return nil, fmt.Errorf("server: init api: %w", err)
	}

	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	if len(s.c.Redis.Addrs) == 0 {
		slog.Info("server: redis not configured, leaderboard and notifications disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initPostgres() error {
	if s.c.Postgres.Addr == "" {
		slog.Info("server: postgres not configured, results archive disabled")
		return nil
	}

	db, err := ConnectPostgres(context.Background(), s.c)
	if err != nil {
		return err
	}

	s.infra.postgres = db
	return nil
}

// ConnectPostgres opens and pings a pool for the configured database.
func ConnectPostgres(ctx context.Context, c Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	p := c.Postgres
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", p.User, p.Pass, p.Addr, p.Name))
	if err != nil {
		return nil, err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (s *Server) initService() error {
	s.service.session = session.NewService(session.Config{
		Source: trivia.NewClient(trivia.Config{
			BaseURL: s.c.Trivia.BaseURL,
			Timeout: s.c.Trivia.Timeout,
		}),
		EventBus:        s.eb,
		IdleTTL:         s.c.Quiz.IdleTTL,
		JanitorInterval: s.c.Quiz.JanitorInterval,
	})

	if s.infra.postgres != nil {
		s.service.results = results.NewService(results.Config{
			EventBus: s.eb,
			DB:       s.infra.postgres,
		})

		if s.c.Postgres.Migrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := s.service.results.Migrate(ctx); err != nil {
				return err
			}
		}
	}

	if s.infra.redis != nil {
		s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
			EventBus: s.eb,
			Redis:    s.infra.redis,
			Prefix:   s.c.Redis.Prefix,
		})
	}

	s.metrics.Observe(s.eb)
	return s.metrics.Register(prometheus.DefaultRegisterer, s.service.session.Count)
}

func (s *Server) initAPI() error {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.GinMiddleware(s.metrics))

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())
	s.health = telemetry.RegisterHealth(s.grpc, "tquiz")

	c := api.Config{
		Router:   e,
		EventBus: s.eb,
		Session:  s.service.session,
		TTS: tts.NewClient(tts.Config{
			Endpoint: s.c.TTS.Endpoint,
			APIKey:   s.c.TTS.APIKey,
			Timeout:  s.c.TTS.Timeout,
		}),
		Results:        s.service.results,
		Leaderboard:    s.service.leaderboard,
		PubsubPrefix:   s.c.Redis.Prefix,
		AllowedOrigins: s.c.HTTP.AllowedOrigins,
	}
	if s.infra.redis != nil {
		c.Redis = s.infra.redis
	}
	api.New(c)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}

	return nil
}

// Start serves until Shutdown is called or a listener fails.
func (s *Server) Start() {
	eg, ctx := errgroup.WithContext(s.ctx)

	eg.Go(func() error {
		return s.service.session.Run(ctx)
	})

	if s.c.GRPC.Port > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
		if err != nil {
			slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
			s.cancel()
			return
		}

		eg.Go(func() error {
			slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
			return s.grpc.Serve(lis)
		})
	}

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.cancel()

	s.service.session.Stop()
	s.eb.Stop()

	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
