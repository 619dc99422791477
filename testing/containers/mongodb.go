//go:build integration

package containers

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/wait"

	tconsts "github.com/gaborage/tenant-records/testing"
)

// MongoDBOptions configures the MongoDB test container.
type MongoDBOptions struct {
	ImageTag       string
	Username       string
	Password       string
	StartupTimeout time.Duration
}

// DefaultMongoDBOptions returns options for an authenticated mongo:8.0 container.
func DefaultMongoDBOptions() *MongoDBOptions {
	return &MongoDBOptions{
		ImageTag:       "8.0",
		Username:       "records",
		Password:       "records-pass",
		StartupTimeout: 60 * time.Second,
	}
}

// MongoDB is a running MongoDB container.
type MongoDB struct {
	container *mongodb.MongoDBContainer
	uri       string
}

// StartMongoDB starts a MongoDB container and registers its termination with
// t.Cleanup. The test is skipped when no Docker daemon is reachable.
func StartMongoDB(ctx context.Context, t *testing.T, opts *MongoDBOptions) *MongoDB {
	t.Helper()

	if opts == nil {
		opts = DefaultMongoDBOptions()
	}
	if !dockerAvailable(ctx) {
		t.Skip("Docker is not available - skipping integration test")
	}

	c, err := mongodb.Run(ctx,
		fmt.Sprintf("mongo:%s", opts.ImageTag),
		mongodb.WithUsername(opts.Username),
		mongodb.WithPassword(opts.Password),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort(fmt.Sprintf("%d/tcp", tconsts.TestPortMongoDB)).
				WithStartupTimeout(opts.StartupTimeout),
		),
	)
	if err != nil {
		t.Fatalf("failed to start MongoDB container: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate MongoDB container: %v", err)
		}
	})

	uri, err := c.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get MongoDB connection string: %v", err)
	}
	t.Logf("MongoDB container listening at %s", redactURI(uri))

	return &MongoDB{container: c, uri: uri}
}

// URI returns the connection string of the container.
func (m *MongoDB) URI() string {
	return m.uri
}

func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "mongodb://****@<host>"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}

func dockerAvailable(ctx context.Context) bool {
	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}
