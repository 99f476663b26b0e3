package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/rateroom/internal/auth"
	"github.com/victornm/rateroom/internal/ballot"
	"github.com/victornm/rateroom/internal/event"
	"github.com/victornm/rateroom/internal/registry"
	"github.com/victornm/rateroom/internal/room"
	"github.com/victornm/rateroom/internal/store"
	"github.com/victornm/rateroom/internal/telemetry"
	"github.com/victornm/rateroom/internal/ws"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Store struct {
		// Backend selects the persistence adapter: "redis" or "postgres".
		Backend string
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	Auth struct {
		Secret string
		TTL    time.Duration
	}

	Vote struct {
		// Policy for a repeat vote in one session: "reject" or "overwrite".
		Policy string
	}
}

type Server struct {
	c Config

	eb  *event.Bus
	reg *registry.Registry

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	store store.Store

	service struct {
		room   *room.Service
		ballot *ballot.Service
		auth   *auth.Manager
	}

	dispatcher *ws.Dispatcher

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()
	s.reg = registry.New()

	if err := s.initStore(); err != nil {
		return nil, fmt.Errorf("server: init store: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initStore() error {
	switch s.c.Store.Backend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    s.c.Redis.Addrs,
			Password: s.c.Redis.Pass,
		})
		if err := telemetry.MonitorRedis(r); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		if err := r.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: ping: %w", err)
		}

		s.infra.redis = r
		s.store = store.NewRedis(r, s.c.Redis.Prefix)
		return nil

	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s",
			s.c.Postgres.User, s.c.Postgres.Pass, s.c.Postgres.Addr, s.c.Postgres.Name))
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: ping: %w", err)
		}

		pg := store.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}

		s.infra.postgres = db
		s.store = pg
		return nil

	default:
		return fmt.Errorf("unknown store backend %q", s.c.Store.Backend)
	}
}

func (s *Server) initService() {
	s.service.auth = auth.NewManager(auth.Config{
		Secret: s.c.Auth.Secret,
		TTL:    s.c.Auth.TTL,
	})

	s.service.room = room.NewService(room.Config{
		Store:    s.store,
		EventBus: s.eb,
	})

	s.service.ballot = ballot.NewService(ballot.Config{
		Store:    s.store,
		EventBus: s.eb,
		Policy:   ballot.Policy(s.c.Vote.Policy),
	})
}

func (s *Server) initAPI() {
	s.dispatcher = ws.New(ws.Config{
		Registry: s.reg,
		EventBus: s.eb,
		Room:     s.service.room,
		Ballot:   s.service.ballot,
	})

	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	e.POST("/create-room", s.handleCreateRoom)
	e.GET("/api/is-host/:roomId/:clientId", s.handleIsHost)
	e.GET("/ws", ws.Handler(s.dispatcher, s.reg, s.service.auth))

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
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

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.service.room.Close()
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
