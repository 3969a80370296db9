package oclient

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", url.PathEscape(t.Name()))
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, RunMigrations(db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(newTestSQLite(t), nil)

	cred, err := store.GetToken(ctx, "OPENID")
	require.NoError(t, err)
	assert.Nil(t, cred)

	in := &Credential{OpenID: "OPENID", AccessToken: "ACCESS_TOKEN", RefreshToken: "REFRESH_TOKEN", ExpiresIn: 7200, CreateAt: 1700000000000}
	require.NoError(t, store.SaveToken(ctx, "OPENID", in))
	got, err := store.GetToken(ctx, "OPENID")
	require.NoError(t, err)
	assert.Equal(t, *in, *got)

	in.AccessToken = "NEW_TOKEN"
	require.NoError(t, store.SaveToken(ctx, "OPENID", in))
	got, err = store.GetToken(ctx, "OPENID")
	require.NoError(t, err)
	assert.Equal(t, "NEW_TOKEN", got.AccessToken)
}

func TestSQLiteStore_Sealed(t *testing.T) {
	ctx := context.Background()
	db := newTestSQLite(t)
	sealer, err := NewSealer(testKey(3))
	require.NoError(t, err)
	store := NewSQLiteStore(db, sealer)

	require.NoError(t, store.SaveToken(ctx, "OPENID", &Credential{OpenID: "OPENID", RefreshToken: "REFRESH_TOKEN"}))

	var raw []byte
	require.NoError(t, db.QueryRowContext(ctx, `SELECT value FROM credentials WHERE openid = ?`, "OPENID").Scan(&raw))
	assert.NotContains(t, string(raw), "REFRESH_TOKEN")

	got, err := store.GetToken(ctx, "OPENID")
	require.NoError(t, err)
	assert.Equal(t, "REFRESH_TOKEN", got.RefreshToken)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := newTestSQLite(t)
	assert.NoError(t, RunMigrations(db))
}

func TestOpenSQLite(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "credentials.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, RunMigrations(db))

	store := NewSQLiteStore(db, nil)
	require.NoError(t, store.SaveToken(context.Background(), "OPENID", &Credential{OpenID: "OPENID"}))
}
