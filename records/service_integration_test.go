//go:build integration

package records

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/tenant-records/config"
	"github.com/gaborage/tenant-records/database"
	"github.com/gaborage/tenant-records/database/mongodb"
	tconsts "github.com/gaborage/tenant-records/testing"
	"github.com/gaborage/tenant-records/testing/containers"
)

func newMongoAccountService(t *testing.T) *Service[Account, *Account] {
	t.Helper()
	ctx := context.Background()
	mc := containers.StartMongoDB(ctx, t, nil)

	client, err := mongodb.Connect(ctx, &config.MongoConfig{
		URI:     mc.URI(),
		Connect: config.MongoConnect{Timeout: 10 * time.Second},
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	m, err := database.NewManager(testLogger(), database.Options{}, client.Connector())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return NewAccountService(m, testLogger())
}

func TestMongoRepeatedUpdateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newMongoAccountService(t)

	id, err := svc.Create(ctx, tconsts.TestTenantAcme, Account{Name: "Ada"})
	require.NoError(t, err)

	change := Account{Name: "Ada L", Email: "ada@example.org"}
	require.NoError(t, svc.Update(ctx, tconsts.TestTenantAcme, FormatID(id), change))
	// the server reports zero modified documents here
	require.NoError(t, svc.Update(ctx, tconsts.TestTenantAcme, FormatID(id), change))

	got, err := svc.Get(ctx, tconsts.TestTenantAcme, FormatID(id))
	require.NoError(t, err)
	assert.Equal(t, Account{ID: id, Name: "Ada L", Email: "ada@example.org"}, *got)
}

func TestMongoTenantsUseSeparateDatabases(t *testing.T) {
	ctx := context.Background()
	svc := newMongoAccountService(t)

	id, err := svc.Create(ctx, tconsts.TestTenantAcme, Account{Name: "Bo"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, tconsts.TestTenantOther, FormatID(id))
	assert.Equal(t, KindNotFound, KindOf(err))

	list, err := svc.List(ctx, tconsts.TestTenantOther)
	require.NoError(t, err)
	assert.Empty(t, list)
}
