package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/absmach/fedcoord"
	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/manager"
	"github.com/absmach/fedcoord/manager/api"
	"github.com/absmach/fedcoord/manager/middleware"
	"github.com/absmach/fedcoord/pkg/channel"
	"github.com/absmach/fedcoord/pkg/cron"
	"github.com/absmach/fedcoord/pkg/jaeger"
	"github.com/absmach/fedcoord/pkg/mqtt"
	"github.com/absmach/fedcoord/pkg/prometheus"
	"github.com/absmach/fedcoord/pkg/storage"
	"github.com/absmach/fedcoord/registry"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName       = "manager"
	defHTTPPort   = "7070"
	envPrefix     = "MANAGER_"
	envPrefixHTTP = "MANAGER_HTTP_"
	envPrefixMQTT = "MANAGER_MQTT_"
	pathEnv       = ".env"
	stopTimeout   = 10 * time.Second
)

type envConfig struct {
	LogLevel         string  `env:"MANAGER_LOG_LEVEL"         envDefault:"info"`
	InstanceID       string  `env:"MANAGER_INSTANCE_ID"`
	ConfigFile       string  `env:"MANAGER_CONFIG_FILE"`
	TopicBase        string  `env:"MANAGER_TOPIC_BASE"        envDefault:"fedcoord"`
	ScheduleTimezone string  `env:"MANAGER_SCHEDULE_TIMEZONE" envDefault:"UTC"`
	OTELURL          url.URL `env:"MANAGER_OTEL_URL"`
	TraceRatio       float64 `env:"MANAGER_TRACE_RATIO"       envDefault:"1.0"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	runCfg := manager.Config{}
	if err := env.ParseWithOptions(&runCfg, env.Options{Prefix: envPrefix}); err != nil {
		logger.Error("failed to load run configuration", slog.String("error", err.Error()))

		return
	}
	if cfg.ConfigFile != "" {
		file, err := fedcoord.LoadConfig(cfg.ConfigFile)
		if err != nil {
			logger.Error("failed to load run file", slog.String("error", err.Error()))

			return
		}
		if runCfg, err = file.Run.Apply(runCfg); err != nil {
			logger.Error("invalid run file", slog.String("error", err.Error()))

			return
		}
	}

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	mqttCfg := mqtt.Config{}
	if err := env.ParseWithOptions(&mqttCfg, env.Options{Prefix: envPrefixMQTT}); err != nil {
		logger.Error("failed to load mqtt configuration", slog.String("error", err.Error()))

		return
	}
	pubsub, err := mqtt.NewPubSub(mqttCfg, svcName+"-"+cfg.InstanceID, nil, logger)
	if err != nil {
		logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

		return
	}
	defer func() {
		if err := pubsub.Disconnect(context.Background()); err != nil {
			logger.Error("failed to disconnect mqtt pubsub", slog.String("error", err.Error()))
		}
	}()
	topics := mqtt.Topics{Base: cfg.TopicBase}

	router := channel.NewRouter(pubsub, topics, logger)
	if err := router.Start(ctx); err != nil {
		logger.Error("failed to start rpc router", slog.String("error", err.Error()))

		return
	}

	storageCfg := storage.Config{}
	if err := env.Parse(&storageCfg); err != nil {
		logger.Error("failed to load storage configuration", slog.String("error", err.Error()))

		return
	}
	repos, err := storage.NewRepositories(storageCfg)
	if err != nil {
		logger.Error("failed to initialize storage", slog.String("error", err.Error()))

		return
	}
	if repos.Closer != nil {
		defer repos.Closer.Close()
	}

	observer, err := coordinator.NewPrometheusObserver(svcName, promclient.DefaultRegisterer)
	if err != nil {
		logger.Error("failed to register coordinator metrics", slog.String("error", err.Error()))

		return
	}

	reg := registry.New(registry.WithEvictionThreshold(runCfg.EvictionThreshold))
	svc, err := manager.NewService(
		runCfg,
		reg,
		router,
		repos,
		logger,
		manager.WithPubSub(pubsub, topics),
		manager.WithObserver(observer),
	)
	if err != nil {
		logger.Error("failed to create manager service", slog.String("error", err.Error()))

		return
	}
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	if err := svc.Subscribe(ctx); err != nil {
		logger.Error("failed to subscribe to client topics", slog.String("error", err.Error()))

		return
	}

	if runCfg.Schedule != "" {
		schedule, err := cron.Parse(runCfg.Schedule, cfg.ScheduleTimezone)
		if err != nil {
			logger.Error("failed to parse run schedule", slog.String("error", err.Error()))

			return
		}
		cs := manager.NewCronScheduler(schedule, runCfg.RunRequest(), svc, logger)
		g.Go(func() error {
			if err := cs.Start(ctx); !errors.Is(err, context.Canceled) {
				return err
			}

			return nil
		})
		defer cs.Stop()
	}

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}

	stopCtx, stop := context.WithTimeout(context.Background(), stopTimeout)
	defer stop()
	if err := svc.Shutdown(stopCtx); err != nil {
		logger.Error("failed to shut down manager", slog.String("error", err.Error()))
	}
	if err := router.Stop(stopCtx); err != nil {
		logger.Error("failed to stop rpc router", slog.String("error", err.Error()))
	}
}
