// Worker consumes session telemetry events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, TELEMETRY_KAFKA_TOPIC, KAFKA_GROUP_ID, and LOKI_URL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/config"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/telemetry/loki"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type eventPusher interface {
	PushEventJSON(ctx context.Context, rawJSON []byte) error
}

func main() {
	log := logrus.New()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	brokers := cfg.TelemetryKafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	if cfg.LokiURL == "" {
		log.Fatal("worker: LOKI_URL is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.TelemetryKafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  1 * time.Second,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"topic": cfg.TelemetryKafkaTopic,
		"group": cfg.KafkaGroupID,
		"loki":  cfg.LokiURL,
	}).Info("worker: consuming")

	run(ctx, reader, loki.NewClient(cfg.LokiURL, nil), log)
	log.Info("worker: stopped")
}

// run forwards messages until ctx is done. A message is committed once Loki
// accepted it or the push was given up on, so a Loki outage does not stall the partition forever.
func run(ctx context.Context, reader messageReader, pusher eventPusher, log logrus.FieldLogger) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("worker: kafka read error")
			continue
		}

		_, err = backoff.Retry(ctx, func() (struct{}, error) {
			pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return struct{}{}, pusher.PushEventJSON(pushCtx, msg.Value)
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(3))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).WithField("offset", msg.Offset).Error("worker: loki push failed, dropping event")
		}

		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("worker: commit failed")
		}
	}
}
