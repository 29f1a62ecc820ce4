package services

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/cloudchat/internal/client/client"
	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func unlocked(t *testing.T) (AccountService, *sql.DB) {
	t.Helper()
	db := setupDB(t)
	svc := NewAccountService(db)
	require.NoError(t, svc.Unlock(context.Background(), []byte("pass")))
	return svc, db
}

func webdavAccount(user string) models.ServerConfig {
	return models.ServerConfig{
		Type:       models.StorageWebDAV,
		Username:   user,
		WebDAVURL:  "https://dav.example.com",
		WebDAVUser: user,
		WebDAVPass: "secret-" + user,
	}
}

func TestUnlock_FirstRunInitialisesVault(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	svc := NewAccountService(db)

	ok, err := svc.IsInitialized(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.Unlock(ctx, []byte("pass")))

	ok, err = svc.IsInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second service over the same DB must use the stored verifier.
	other := NewAccountService(db)
	require.ErrorIs(t, other.Unlock(ctx, []byte("wrong")), common.ErrWrongPassword)
	require.NoError(t, other.Unlock(ctx, []byte("pass")))
}

func TestLockedOperations(t *testing.T) {
	ctx := context.Background()
	svc := NewAccountService(setupDB(t))

	_, err := svc.List(ctx)
	assert.ErrorIs(t, err, common.ErrVaultLocked)
	_, err = svc.Save(ctx, webdavAccount("a"))
	assert.ErrorIs(t, err, common.ErrVaultLocked)
	_, err = svc.Current(ctx)
	assert.ErrorIs(t, err, common.ErrVaultLocked)
	assert.ErrorIs(t, svc.Delete(ctx, "x"), common.ErrVaultLocked)

	require.NoError(t, svc.Unlock(ctx, []byte("p")))
	svc.Lock()
	_, err = svc.List(ctx)
	assert.ErrorIs(t, err, common.ErrVaultLocked)
}

func TestSave_SealsAndBecomesCurrent(t *testing.T) {
	ctx := context.Background()
	svc, db := unlocked(t)

	_, err := svc.Current(ctx)
	require.ErrorIs(t, err, common.ErrNoActiveAccount)

	saved, err := svc.Save(ctx, webdavAccount("alice"))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "alice", saved.Name)
	assert.Equal(t, "alice", saved.SaveDir)
	assert.Equal(t, models.DefaultAutoDownloadLimit, saved.AutoDownloadLimit)

	cur, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, cur)

	// Secrets never hit the database in clear text.
	var sealed []byte
	require.NoError(t, db.QueryRow(`SELECT sealed FROM accounts WHERE id = ?`, saved.ID).Scan(&sealed))
	assert.False(t, bytes.Contains(sealed, []byte("secret-alice")))
}

func TestSave_Invalid(t *testing.T) {
	svc, _ := unlocked(t)
	_, err := svc.Save(context.Background(), models.ServerConfig{Type: models.StorageS3, Username: "a"})
	assert.ErrorIs(t, err, common.ErrInvalidAccount)
}

func TestSave_UpdateKeepsID(t *testing.T) {
	ctx := context.Background()
	svc, _ := unlocked(t)

	saved, err := svc.Save(ctx, webdavAccount("alice"))
	require.NoError(t, err)

	saved.Name = "work"
	_, err = svc.Save(ctx, saved)
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "work", list[0].Name)
}

func TestSwitchAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := unlocked(t)

	a, err := svc.Save(ctx, webdavAccount("a"))
	require.NoError(t, err)
	b, err := svc.Save(ctx, webdavAccount("b"))
	require.NoError(t, err)

	cur, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, cur.ID)

	_, err = svc.Switch(ctx, a.ID)
	require.NoError(t, err)
	cur, err = svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, cur.ID)

	_, err = svc.Switch(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	// Deleting a non-current account leaves the pointer alone.
	require.NoError(t, svc.Delete(ctx, b.ID))
	cur, err = svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, cur.ID)

	b, err = svc.Save(ctx, webdavAccount("b"))
	require.NoError(t, err)
	_, err = svc.Switch(ctx, a.ID)
	require.NoError(t, err)

	// Deleting the current account moves the pointer to the first remaining.
	require.NoError(t, svc.Delete(ctx, a.ID))
	cur, err = svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, cur.ID)

	require.NoError(t, svc.Delete(ctx, b.ID))
	_, err = svc.Current(ctx)
	assert.ErrorIs(t, err, common.ErrNoActiveAccount)

	assert.ErrorIs(t, svc.Delete(ctx, b.ID), common.ErrNotFound)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src, _ := unlocked(t)

	_, err := src.Save(ctx, webdavAccount("a"))
	require.NoError(t, err)
	_, err = src.Save(ctx, models.ServerConfig{Type: models.StorageS3, Username: "b", Bucket: "chat"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, src.Export(ctx, &buf))
	assert.Contains(t, buf.String(), "secret-a")

	dst, _ := unlocked(t)
	n, err := dst.Import(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	want, err := src.List(ctx)
	require.NoError(t, err)
	got, err := dst.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	cur, err := dst.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, got[0].ID, cur.ID)
}

func TestImport_Errors(t *testing.T) {
	ctx := context.Background()
	svc, _ := unlocked(t)

	_, err := svc.Import(ctx, strings.NewReader("{not json"))
	assert.Error(t, err)

	_, err = svc.Import(ctx, strings.NewReader(`[{"type":"s3","username":"x"}]`))
	assert.ErrorIs(t, err, common.ErrInvalidAccount)

	n, err := svc.Import(ctx, strings.NewReader(`[]`))
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeviceID_Stable(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	id1, err := NewAccountService(db).DeviceID(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	id2, err := NewAccountService(db).DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}
