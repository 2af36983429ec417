package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"postboard/pkg/api"
	"postboard/pkg/page"
	"postboard/pkg/postapi"
	"postboard/pkg/storage/memdb"
	"postboard/pkg/storage/postgres"
)

func main() {
	var (
		configPath string
		httpAddr   string
		logLevel   string
		kafkaAddr  string
		kafkaTopic string
		kafkaBatch int
		devData    string
	)

	flag.StringVar(&configPath, "config", "cmd/server/config.toml", "Path to TOML config file")
	flag.StringVar(&httpAddr, "http", "", "HTTP server address in the form 'host:port'.")
	flag.StringVar(&logLevel, "log", "", "Log level: debug, info, warn, error.")
	flag.StringVar(&kafkaAddr, "kafka", "", "Kafka server address in the form 'host:port'.")
	flag.StringVar(&kafkaTopic, "topic", "", "Kafka topic.")
	flag.IntVar(&kafkaBatch, "batch", 0, "Kafka batch size.")
	flag.StringVar(&devData, "dev", "", "Serve posts from this JSON file instead of the configured upstream.")
	flag.Parse()

	cfg, err := api.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("[server] failed to load config file %s: %v", configPath, err)
	}

	// Override config with flags if set
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if kafkaAddr != "" {
		cfg.KafkaAddr = kafkaAddr
	}
	if kafkaTopic != "" {
		cfg.KafkaTopic = kafkaTopic
	}
	if kafkaBatch != 0 {
		cfg.KafkaBatch = kafkaBatch
	}
	if devData != "" {
		cfg.Upstream.Kind = api.KindMemory
		cfg.Upstream.DevData = devData
	}

	if !strings.Contains(cfg.HTTPAddr, ":") {
		log.Warn("[server] use ':' before port number, e.g. ':8080'")
	}

	switch cfg.LogLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[server] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	posts, closePosts, err := newPostsClient(ctx, cfg)
	if err != nil {
		log.Fatalf("[server] failed to set up %s posts source: %v", cfg.Upstream.Kind, err)
	}
	defer closePosts()

	tmpl, err := page.Load(cfg.TemplatePath)
	if err != nil {
		log.Fatalf("[server] failed to load page template: %v", err)
	}

	var opts []api.Option
	if cfg.KafkaAddr != "" && cfg.KafkaTopic != "" {
		kafkaWriter := &kafka.Writer{
			Addr:      kafka.TCP(cfg.KafkaAddr),
			Topic:     cfg.KafkaTopic,
			BatchSize: cfg.KafkaBatch,
		}
		defer kafkaWriter.Close()

		err := createTopic(kafkaWriter.Addr.String(), kafkaWriter.Topic)
		if err != nil {
			log.Warnf("[server] failed to create Kafka topic: %v", err)
		}
		opts = append(opts, api.WithLogWriter(kafkaWriter))
	} else {
		log.Warnf("[server] kafka was not configured, logs will not be sent to Kafka")
	}

	api := api.New(cfg.ServiceName, posts, tmpl, opts...)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Infof("[server] starting on port %v", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[server] failed to start: %v", err)
			return
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("[server] HTTP server shutdown error: %v", err)
	} else {
		log.Info("[server] HTTP server shut down gracefully")
	}
}

// newPostsClient builds the posts source selected by cfg.Upstream.Kind.
// The returned func releases whatever the source holds.
func newPostsClient(ctx context.Context, cfg *api.Config) (postapi.Client, func(), error) {
	noop := func() {}

	switch cfg.Upstream.Kind {
	case api.KindHTTP:
		log.Infof("[server] posts API at %s", cfg.Upstream.URL)
		return postapi.NewHTTPClient(cfg.Upstream.URL, cfg.Upstream.Timeout), noop, nil

	case api.KindFeed:
		log.Infof("[server] posts feed at %s", cfg.Upstream.URL)
		return postapi.NewFeedClient(cfg.Upstream.URL, cfg.Upstream.Timeout), noop, nil

	case api.KindMemory:
		posts, err := memdb.LoadPosts(cfg.Upstream.DevData)
		if err != nil {
			return nil, nil, err
		}
		db := memdb.New()
		if err := db.AddPosts(ctx, posts); err != nil {
			return nil, nil, err
		}
		log.Infof("[server] serving %d posts from %s", db.Len(), cfg.Upstream.DevData)
		return db, noop, nil

	case api.KindPostgres:
		log.Infof("[server] connecting to postgres %s", cfg.Postgres)
		db, err := postgres.New(ctx, cfg.Postgres.ConString())
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		if cfg.Upstream.DevData != "" {
			posts, err := memdb.LoadPosts(cfg.Upstream.DevData)
			if err != nil {
				db.Close()
				return nil, nil, err
			}
			if err := db.AddPosts(ctx, posts); err != nil {
				db.Close()
				return nil, nil, err
			}
			log.Infof("[server] seeded postgres with %d posts", len(posts))
		}
		return db, db.Close, nil
	}

	return nil, nil, api.ErrInvalidConfig
}

func createTopic(broker, topic string) error {
	conn, err := kafka.DialContext(context.Background(), "tcp", broker)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
}
