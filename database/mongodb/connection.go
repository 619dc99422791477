// Package mongodb provides the MongoDB storage backend: one shared client per
// process and a lightweight per-tenant handle on top of it, where each tenant
// maps to its own database.
package mongodb

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/gaborage/tenant-records/config"
	"github.com/gaborage/tenant-records/database"
	"github.com/gaborage/tenant-records/database/types"
	"github.com/gaborage/tenant-records/logger"
)

// Sentinel errors for MongoDB configuration validation
var (
	ErrInvalidReadPreference = errors.New("invalid read preference")
	ErrInvalidWriteConcern   = errors.New("invalid write concern")
)

var (
	connectMongoDB = func(opts *options.ClientOptions) (*mongo.Client, error) {
		return mongo.Connect(opts)
	}
	pingMongoDB = func(ctx context.Context, client *mongo.Client) error {
		return client.Ping(ctx, readpref.Primary())
	}
)

// Client owns the process-wide MongoDB client. Tenant handles created through
// Connector share its connection pool.
type Client struct {
	client *mongo.Client
	cfg    *config.MongoConfig
	logger logger.Logger
}

// Connect creates the shared client and verifies the deployment is reachable.
func Connect(ctx context.Context, cfg *config.MongoConfig, log logger.Logger) (*Client, error) {
	opts, err := buildClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client, err := connectMongoDB(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if cfg.Connect.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Connect.Timeout)
		defer cancel()
	}
	if err := pingMongoDB(ctx, client); err != nil {
		if closeErr := client.Disconnect(context.WithoutCancel(ctx)); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to disconnect MongoDB client after ping failure")
		}
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info().
		Str("uri", cfg.URI).
		Str("read_preference", cfg.ReadPreference).
		Str("write_concern", cfg.WriteConcern).
		Msg("Connected to MongoDB")

	return &Client{client: client, cfg: cfg, logger: log}, nil
}

// Connector returns the tenant handle constructor used by the handle cache.
// Each tenant is bound to the database of the same name. When ping is enabled
// the new handle is verified before it is cached.
func (c *Client) Connector() database.Connector {
	return func(ctx context.Context, tenantID string) (types.Handle, error) {
		h := &Handle{db: c.client.Database(tenantID), logger: c.logger}
		if c.cfg.Ping.Enabled {
			if err := h.Ping(ctx); err != nil {
				return nil, fmt.Errorf("failed to ping tenant database %s: %w", tenantID, err)
			}
		}
		return h, nil
	}
}

// Ping checks the shared client against the primary.
func (c *Client) Ping(ctx context.Context) error {
	return pingMongoDB(ctx, c.client)
}

// Disconnect closes the shared client. Call it after the handle cache is closed.
func (c *Client) Disconnect(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	c.logger.Info().Msg("Disconnected from MongoDB")
	return nil
}

// Handle is a tenant-scoped view of the shared client.
type Handle struct {
	db     *mongo.Database
	logger logger.Logger
	closed atomic.Bool
}

var _ types.Handle = (*Handle)(nil)

// Name returns the tenant database name.
func (h *Handle) Name() string {
	return h.db.Name()
}

// Collection returns the named collection in the tenant database.
func (h *Handle) Collection(name string) types.DocumentCollection {
	return &Collection{coll: h.db.Collection(name)}
}

// Ping runs the ping command against the tenant database.
func (h *Handle) Ping(ctx context.Context) error {
	return h.db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}

// Close releases the handle. Connections belong to the shared client, so
// nothing is torn down here.
func (h *Handle) Close(_ context.Context) error {
	if h.closed.Swap(true) {
		return nil
	}
	h.logger.Debug().Str("tenant", h.Name()).Msg("Released tenant database handle")
	return nil
}

func buildClientOptions(cfg *config.MongoConfig) (*options.ClientOptions, error) {
	opts := options.Client().ApplyURI(cfg.URI)

	if cfg.Connect.Timeout > 0 {
		opts.SetConnectTimeout(cfg.Connect.Timeout)
		opts.SetServerSelectionTimeout(cfg.Connect.Timeout)
	}

	setPoolOptions(opts, &cfg.Pool)

	if err := setReadPreference(opts, cfg.ReadPreference); err != nil {
		return nil, err
	}
	if err := setWriteConcern(opts, cfg.WriteConcern); err != nil {
		return nil, err
	}

	if cfg.TLS.Enabled {
		opts.SetTLSConfig(buildTLSConfig(&cfg.TLS))
	}

	return opts, nil
}

func setPoolOptions(opts *options.ClientOptions, pool *config.MongoPool) {
	if pool.Max > 0 {
		opts.SetMaxPoolSize(pool.Max)
	}
	if pool.Min > 0 {
		opts.SetMinPoolSize(pool.Min)
	}
	if pool.Idle > 0 {
		opts.SetMaxConnIdleTime(pool.Idle)
	}
}

func setReadPreference(opts *options.ClientOptions, pref string) error {
	if pref == "" {
		return nil
	}
	rp, err := parseReadPreference(pref)
	if err != nil {
		return fmt.Errorf("%w: %q", err, pref)
	}
	opts.SetReadPreference(rp)
	return nil
}

func setWriteConcern(opts *options.ClientOptions, concern string) error {
	if concern == "" {
		return nil
	}
	wc, err := parseWriteConcern(concern)
	if err != nil {
		return fmt.Errorf("%w: %q", err, concern)
	}
	opts.SetWriteConcern(wc)
	return nil
}

func buildTLSConfig(cfg *config.MongoTLS) *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		//nolint:gosec // opt-in for self-signed development clusters
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
}

// parseReadPreference converts string to MongoDB read preference
func parseReadPreference(pref string) (*readpref.ReadPref, error) {
	switch strings.ToLower(strings.TrimSpace(pref)) {
	case "primary":
		return readpref.Primary(), nil
	case "primarypreferred":
		return readpref.PrimaryPreferred(), nil
	case "secondary":
		return readpref.Secondary(), nil
	case "secondarypreferred":
		return readpref.SecondaryPreferred(), nil
	case "nearest":
		return readpref.Nearest(), nil
	default:
		return nil, ErrInvalidReadPreference
	}
}

// parseWriteConcern converts string to MongoDB write concern
func parseWriteConcern(concern string) (*writeconcern.WriteConcern, error) {
	trimmed := strings.TrimSpace(concern)

	switch strings.ToLower(trimmed) {
	case "majority":
		return writeconcern.Majority(), nil
	case "acknowledged":
		return &writeconcern.WriteConcern{W: 1}, nil
	case "unacknowledged":
		return &writeconcern.WriteConcern{W: 0}, nil
	}

	if n, err := strconv.Atoi(trimmed); err == nil && n >= 0 {
		return &writeconcern.WriteConcern{W: n}, nil
	}
	return nil, ErrInvalidWriteConcern
}
