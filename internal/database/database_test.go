package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MarkoPoloResearchLab/vetpay/internal/config"
	"github.com/MarkoPoloResearchLab/vetpay/pkg/ledger"
	"github.com/stretchr/testify/require"
)

func TestResolveDriver(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	testCases := []struct {
		name       string
		dsn        string
		wantDriver string
		wantPath   string
	}{
		{name: "postgres", dsn: "postgres://vet@localhost/vet", wantDriver: DriverPostgres},
		{name: "postgresql", dsn: "postgresql://vet@localhost/vet", wantDriver: DriverPostgres},
		{name: "sqlite url", dsn: "sqlite://" + filepath.Join(dir, "a.db"), wantDriver: DriverSQLite, wantPath: filepath.Join(dir, "a.db")},
		{name: "memory", dsn: ":memory:", wantDriver: DriverSQLite, wantPath: ":memory:"},
		{name: "bare path", dsn: filepath.Join(dir, "nested", "b.db"), wantDriver: DriverSQLite, wantPath: filepath.Join(dir, "nested", "b.db")},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			driver, path, err := ResolveDriver(testCase.dsn)
			require.NoError(t, err)
			require.Equal(t, testCase.wantDriver, driver)
			require.Equal(t, testCase.wantPath, path)
		})
	}
}

func TestOpenStoreSQLite(t *testing.T) {
	cfg := config.Config{DatabaseURL: "sqlite://" + filepath.Join(t.TempDir(), "payments.db")}
	require.NoError(t, cfg.Validate())
	store, cleanup, err := OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	appointmentID, err := ledger.NewAppointmentID("appt-1")
	require.NoError(t, err)
	appointment, err := ledger.NewAppointment(appointmentID, 1000, ledger.AppointmentPending)
	require.NoError(t, err)
	require.NoError(t, store.UpsertAppointment(context.Background(), appointment))
	loaded, err := store.GetAppointment(context.Background(), appointmentID)
	require.NoError(t, err)
	require.Equal(t, ledger.AmountCents(1000), loaded.TotalAmount())
}
