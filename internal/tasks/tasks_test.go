package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sensormesh/fabric/internal/logstore"
)

func TestRegisterSeriesArchiveIsNoopWithoutUploader(t *testing.T) {
	m, err := Start()
	require.NoError(t, err)
	defer m.Shutdown()

	require.NoError(t, m.RegisterSeriesArchive(t.TempDir(), time.Hour, time.Hour, nil))
}

func TestRegisterErrorRetentionSchedulesJob(t *testing.T) {
	dsn := t.TempDir() + "/test.db"
	require.NoError(t, logstore.Migrate("sqlite3", dsn))
	store, err := logstore.Connect("sqlite3", dsn)
	require.NoError(t, err)
	defer store.Close()

	m, err := Start()
	require.NoError(t, err)
	defer m.Shutdown()

	require.NoError(t, m.RegisterErrorRetention(store, 30*24*time.Hour))
}
