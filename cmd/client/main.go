package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/fedcoord/client"
	"github.com/absmach/fedcoord/pkg/mqtt"
	"github.com/absmach/fedcoord/pkg/partition"
	"github.com/absmach/fedcoord/pkg/trainer"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	svcName       = "client"
	envPrefixMQTT = "CLIENT_MQTT_"
	pathEnv       = ".env"
	testSplit     = 5
)

type envConfig struct {
	LogLevel           string        `env:"CLIENT_LOG_LEVEL"           envDefault:"info"`
	ID                 string        `env:"CLIENT_ID"`
	TopicBase          string        `env:"CLIENT_TOPIC_BASE"          envDefault:"fedcoord"`
	PartitionID        int           `env:"CLIENT_PARTITION_ID"        envDefault:"1"`
	TotalClients       int           `env:"CLIENT_TOTAL_CLIENTS"       envDefault:"2"`
	DatasetSize        int           `env:"CLIENT_DATASET_SIZE"        envDefault:"5000"`
	Features           int           `env:"CLIENT_FEATURES"            envDefault:"16"`
	DataSeed           int64         `env:"CLIENT_DATA_SEED"           envDefault:"7"`
	LearningRate       float64       `env:"CLIENT_LEARNING_RATE"       envDefault:"0.1"`
	LivelinessInterval time.Duration `env:"CLIENT_LIVELINESS_INTERVAL" envDefault:"10s"`
}

func main() {
	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.ID == "" {
		cfg.ID = namegenerator.NewGenerator().Generate()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})).With(slog.String("client_id", cfg.ID))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error(fmt.Sprintf("%s exited with error: %s", svcName, err))
		os.Exit(1)
	}
}

func run(cfg envConfig, logger *slog.Logger) error {
	model, samples, err := newModel(cfg)
	if err != nil {
		return err
	}
	logger.Info("loaded local data", slog.Int("partition", cfg.PartitionID), slog.Int("train_samples", samples))

	mqttCfg := mqtt.Config{}
	if err := env.ParseWithOptions(&mqttCfg, env.Options{Prefix: envPrefixMQTT}); err != nil {
		return fmt.Errorf("failed to load mqtt configuration: %w", err)
	}
	codec, err := mqtt.NewCodec(mqttCfg.Codec)
	if err != nil {
		return err
	}
	topics := mqtt.Topics{Base: cfg.TopicBase}
	will, err := client.Will(codec, topics, cfg.ID)
	if err != nil {
		return err
	}

	pubsub, err := mqtt.NewPubSub(mqttCfg, cfg.ID, will, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize mqtt pubsub: %w", err)
	}
	defer func() {
		if err := pubsub.Disconnect(context.Background()); err != nil {
			logger.Error("failed to disconnect mqtt pubsub", slog.String("error", err.Error()))
		}
	}()

	svc, err := client.NewService(cfg.ID, model, uint64(samples), cfg.LivelinessInterval, pubsub, topics, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// newModel builds this client's non-IID shard of the synthetic dataset. Every
// client generates the same dataset from the shared seed and keeps only its
// own label-sorted slice of the train and test splits.
func newModel(cfg envConfig) (*trainer.Model, int, error) {
	data := trainer.Synthetic(cfg.DatasetSize, cfg.Features, cfg.DataSeed)
	cut := len(data) - len(data)/testSplit

	train, err := partition.NonIID(data[:cut], trainer.SampleLabel, cfg.PartitionID, cfg.TotalClients)
	if err != nil {
		return nil, 0, err
	}
	test, err := partition.NonIID(data[cut:], trainer.SampleLabel, cfg.PartitionID, cfg.TotalClients)
	if err != nil {
		return nil, 0, err
	}

	model, err := trainer.New(cfg.Features, train, test,
		trainer.WithLearningRate(cfg.LearningRate),
		trainer.WithSeed(cfg.DataSeed+int64(cfg.PartitionID)),
	)
	if err != nil {
		return nil, 0, err
	}

	return model, len(train), nil
}
