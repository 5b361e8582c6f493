// file: internal/notify/nats.go

// Package notify announces cover changes on NATS so other consumers, such as
// a second display or a home automation bridge, can follow along.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/nats-io/nkeys"

	"cover-display/config"
	"cover-display/internal/artwork"
	"cover-display/internal/logger"
)

const (
	// LatestKey holds the most recent event in the optional KV bucket
	LatestKey = "latest"

	kvOperationTimeout = 10 * time.Second
	reconnectWait      = 2 * time.Second
)

// Event is published on every cover change
type Event struct {
	URL       string    `json:"url"`
	Path      string    `json:"path"`
	Track     string    `json:"track,omitempty"`
	ChangedAt time.Time `json:"changedAt"`
	RunID     string    `json:"runId"`
}

type publisher interface {
	Publish(subject string, data []byte) error
}

type keyValue interface {
	Put(ctx context.Context, key string, value []byte) (uint64, error)
}

// Notifier publishes cover changes. It implements artwork.Hook.
type Notifier struct {
	conn    *nats.Conn
	pub     publisher
	kv      keyValue
	subject string
	runID   string
	logger  *logger.Logger
}

// NewNotifier connects to NATS and, when a bucket is configured, opens it.
// The bucket must already exist.
func NewNotifier(cfg *config.NATSConfig, runID string, log *logger.Logger) (*Notifier, error) {
	log.Info("connecting to NATS", "urls", cfg.URLs)

	opts, err := buildNATSOptions(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build NATS options: %w", err)
	}

	nc, err := nats.Connect(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info("NATS connection established", "connectedURL", nc.ConnectedUrl())

	n := &Notifier{
		conn:    nc,
		pub:     nc,
		subject: cfg.Subject,
		runID:   runID,
		logger:  log,
	}

	if cfg.Bucket == "" {
		return n, nil
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), kvOperationTimeout)
	defer cancel()

	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if err != nil {
		nc.Close()
		if errors.Is(err, jetstream.ErrBucketNotFound) {
			return nil, fmt.Errorf("KV bucket '%s' not found. Create it with: nats kv add %s",
				cfg.Bucket, cfg.Bucket)
		}
		return nil, fmt.Errorf("failed to open KV bucket '%s': %w", cfg.Bucket, err)
	}
	n.kv = kv
	log.Info("KV bucket opened successfully", "bucket", cfg.Bucket)

	return n, nil
}

// CoverChanged publishes the update and records it as the latest cover
func (n *Notifier) CoverChanged(ctx context.Context, u artwork.Update) error {
	data, err := n.encode(u)
	if err != nil {
		return err
	}

	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish cover change: %w", err)
	}
	n.logger.Debug("published cover change", "subject", n.subject, "url", u.URL)

	if n.kv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, kvOperationTimeout)
	defer cancel()

	if _, err := n.kv.Put(ctx, LatestKey, data); err != nil {
		return fmt.Errorf("failed to store latest cover: %w", err)
	}
	return nil
}

func (n *Notifier) encode(u artwork.Update) ([]byte, error) {
	data, err := json.Marshal(Event{
		URL:       u.URL,
		Path:      u.Path,
		Track:     u.Track,
		ChangedAt: u.ChangedAt.UTC(),
		RunID:     n.runID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode cover change: %w", err)
	}
	return data, nil
}

// Close drains the connection
func (n *Notifier) Close() error {
	if n.conn == nil {
		return nil
	}

	n.logger.Info("closing NATS connection")
	if err := n.conn.Drain(); err != nil {
		return fmt.Errorf("failed to drain connection: %w", err)
	}
	return nil
}

// buildNATSOptions creates connection options with auth and TLS
func buildNATSOptions(cfg *config.NATSConfig, log *logger.Logger) ([]nats.Option, error) {
	opts := []nats.Option{
		nats.Name("cover-display"),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			if err := nc.LastError(); err != nil {
				log.Error("NATS connection closed", "error", err)
			}
		}),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
	}

	switch {
	case cfg.CredsFile != "":
		log.Info("using NATS creds file authentication", "credsFile", cfg.CredsFile)
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))

	case cfg.NKeySeed != "":
		opt, err := nkeyOption(cfg.NKeySeed)
		if err != nil {
			return nil, err
		}
		log.Info("using NATS NKey authentication")
		opts = append(opts, opt)

	case cfg.Token != "":
		log.Info("using NATS token authentication")
		opts = append(opts, nats.Token(cfg.Token))

	case cfg.Username != "":
		log.Info("using NATS username/password authentication", "username", cfg.Username)
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	tlsConfig, err := createTLSConfig(cfg.TLS, log)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		opts = append(opts, nats.Secure(tlsConfig))
	}

	return opts, nil
}

// nkeyOption signs server nonces with the user key derived from seed
func nkeyOption(seed string) (nats.Option, error) {
	kp, err := nkeys.FromSeed([]byte(seed))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS nkey seed: %w", err)
	}

	pub, err := kp.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive NATS nkey public key: %w", err)
	}
	if !nkeys.IsValidPublicUserKey(pub) {
		return nil, fmt.Errorf("NATS nkey seed is not a user key")
	}

	return nats.Nkey(pub, kp.Sign), nil
}
