package updates

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/flagstream-io/feature-flag-platform/internal/model"
	"github.com/flagstream-io/feature-flag-platform/internal/store"
	"github.com/flagstream-io/feature-flag-platform/pkg/logger"
	"github.com/flagstream-io/feature-flag-platform/pkg/metrics"
)

const (
	// StreamName is the JetStream stream carrying flag data updates.
	StreamName = "FLAG_UPDATES"

	// SubjectPrefix is the prefix for all update subjects:
	//   flags.put
	//   flags.patch.{flag|segment}.<key>
	//   flags.delete.{flag|segment}.<key>
	SubjectPrefix = "flags"
)

// putData is the payload of a full data set replacement.
type putData struct {
	Flags    map[string]*model.FeatureFlag `json:"flags"`
	Segments map[string]*model.Segment     `json:"segments"`
}

// deleteData is the payload of a delete message.
type deleteData struct {
	Key     string `json:"key"`
	Version int    `json:"version"`
}

// Listener consumes the update stream and applies it to the feature store.
type Listener struct {
	client  *Client
	store   *store.FeatureStore
	log     *logger.Logger
	consume jetstream.ConsumeContext
}

// NewListener creates a listener writing into the given store.
func NewListener(client *Client, featureStore *store.FeatureStore, log *logger.Logger) *Listener {
	return &Listener{
		client: client,
		store:  featureStore,
		log:    log.Component("update-listener"),
	}
}

// Start ensures the stream exists and begins consuming updates.
func (l *Listener) Start(ctx context.Context) error {
	js := l.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err != nil {
		if _, err := js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        StreamName,
			Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Description: "Flag and segment data updates",
		}); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: fmt.Sprintf("%s.>", SubjectPrefix),
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(l.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	l.consume = cc
	return nil
}

// Stop halts consumption. The store keeps its last known data.
func (l *Listener) Stop() {
	if l.consume != nil {
		l.consume.Stop()
	}
}

func (l *Listener) handleMessage(msg jetstream.Msg) {
	if err := l.apply(msg.Subject(), msg.Data()); err != nil {
		l.log.Error("failed to apply flag update",
			zap.String("subject", msg.Subject()),
			zap.Error(err),
		)
		// Malformed updates are acked too; redelivery cannot fix them.
	}
	_ = msg.Ack()
}

func (l *Listener) apply(subject string, data []byte) error {
	parts := strings.Split(subject, ".")
	if len(parts) < 2 || parts[0] != SubjectPrefix {
		return fmt.Errorf("unrecognized subject %q", subject)
	}

	switch parts[1] {
	case "put":
		var put putData
		if err := json.Unmarshal(data, &put); err != nil {
			return fmt.Errorf("malformed put payload: %w", err)
		}
		l.store.Init(put.Flags, put.Segments)
		metrics.StoreUpdates.WithLabelValues("all", "put").Inc()
		l.log.Info("flag data set replaced",
			zap.Int("flags", len(put.Flags)),
			zap.Int("segments", len(put.Segments)),
		)
		return nil

	case "patch":
		kind, err := kindFromSubject(parts)
		if err != nil {
			return err
		}
		applied, err := l.applyPatch(kind, data)
		if err != nil {
			return err
		}
		if applied {
			metrics.StoreUpdates.WithLabelValues(string(kind), "patch").Inc()
		}
		return nil

	case "delete":
		kind, err := kindFromSubject(parts)
		if err != nil {
			return err
		}
		var del deleteData
		if err := json.Unmarshal(data, &del); err != nil {
			return fmt.Errorf("malformed delete payload: %w", err)
		}
		if l.store.Delete(kind, del.Key, del.Version) {
			metrics.StoreUpdates.WithLabelValues(string(kind), "delete").Inc()
		}
		return nil
	}
	return fmt.Errorf("unrecognized subject %q", subject)
}

func (l *Listener) applyPatch(kind model.DataKind, data []byte) (bool, error) {
	switch kind {
	case model.DataKindFlag:
		var flag model.FeatureFlag
		if err := json.Unmarshal(data, &flag); err != nil {
			return false, fmt.Errorf("malformed flag payload: %w", err)
		}
		return l.store.Upsert(kind, &flag), nil
	case model.DataKindSegment:
		var segment model.Segment
		if err := json.Unmarshal(data, &segment); err != nil {
			return false, fmt.Errorf("malformed segment payload: %w", err)
		}
		return l.store.Upsert(kind, &segment), nil
	}
	return false, fmt.Errorf("unrecognized data kind %q", kind)
}

func kindFromSubject(parts []string) (model.DataKind, error) {
	if len(parts) < 4 {
		return "", fmt.Errorf("unrecognized subject %q", strings.Join(parts, "."))
	}
	switch parts[2] {
	case "flag":
		return model.DataKindFlag, nil
	case "segment":
		return model.DataKindSegment, nil
	}
	return "", fmt.Errorf("unrecognized data kind %q", parts[2])
}
