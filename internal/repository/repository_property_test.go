package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.uber.org/zap"
)

// setupTestDB creates a PostgreSQL testcontainer, migrates it and returns the connection pool
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("rxtag_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, pool))
	// a second run must be a no-op
	require.NoError(t, Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return pool, cleanup
}

func newRecord(userID, prescriptionID, name string) *model.MedicationRecord {
	start := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return &model.MedicationRecord{
		ID:             uuid.New().String(),
		UserID:         userID,
		MedicationID:   model.UnknownMedicationID,
		MedicationRef:  "medications/" + model.UnknownMedicationID,
		Name:           name,
		DoseMg:         400,
		FrequencyHours: 8,
		StartDate:      start,
		EndDate:        start.AddDate(0, 0, 5),
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
		Active:         true,
		PrescriptionID: prescriptionID,
		SourceFile:     model.SourceNFCTag,
	}
}

func TestCatalogRepository_FindByName(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewCatalogRepository(pool, zap.NewNop())

	require.NoError(t, repo.Add(ctx, model.CatalogEntry{ID: "ibu-2", Name: "Ibuprofen", Position: 7}))
	require.NoError(t, repo.Add(ctx, model.CatalogEntry{ID: "ibu-1", Name: "Ibuprofen", Position: 2}))
	require.NoError(t, repo.Add(ctx, model.CatalogEntry{ID: "amox", Name: "Amoxicilina", Position: 1}))

	entry, err := repo.FindByName(ctx, "Ibuprofen")
	require.NoError(t, err)
	assert.Equal(t, "ibu-1", entry.ID)

	_, err = repo.FindByName(ctx, "ibuprofen")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMedicationRepository_PrescriptionLifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewMedicationRepository(pool, zap.NewNop())

	first := newRecord("patient-1", "rx-1", "Ibuprofen")
	second := newRecord("patient-1", "rx-1", "Amoxicilina")
	other := newRecord("patient-1", "rx-2", "Paracetamol")
	foreign := newRecord("patient-2", "rx-1", "Ibuprofen")
	for _, rec := range []*model.MedicationRecord{first, second, other, foreign} {
		require.NoError(t, repo.Create(ctx, rec))
	}

	records, err := repo.FindByPrescription(ctx, "patient-1", "rx-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Amoxicilina", records[0].Name)
	assert.Equal(t, second.ID, records[0].ID)
	assert.True(t, records[0].StartDate.Equal(second.StartDate))
	assert.True(t, records[0].EndDate.Equal(second.EndDate))
	assert.Equal(t, model.SourceNFCTag, records[0].SourceFile)

	n, err := repo.SetPrescriptionActive(ctx, "patient-1", "rx-1", false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	all, err := repo.FindByUserID(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, rec := range all {
		assert.Equal(t, rec.PrescriptionID != "rx-1", rec.Active, rec.Name)
	}

	n, err = repo.DeletePrescription(ctx, "patient-1", "rx-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.DeletePrescription(ctx, "patient-1", "rx-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	untouched, err := repo.FindByPrescription(ctx, "patient-2", "rx-1")
	require.NoError(t, err)
	assert.Len(t, untouched, 1)
	assert.True(t, untouched[0].Active)
}

func TestPharmacyRepository_ListAll(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewPharmacyRepository(pool, zap.NewNop())

	require.NoError(t, repo.Create(ctx, model.PharmacyPoint{
		Name: "Farmacia Sol", Address: "Puerta del Sol 1", Latitude: 40.4169, Longitude: -3.7035,
		Chain: "Independent", OpeningHours: []string{"09:00-21:00"}, OpeningDays: []string{"Mon", "Tue"},
	}))
	require.NoError(t, repo.Create(ctx, model.PharmacyPoint{Name: "Farmacia Gran Via", Latitude: 40.42, Longitude: -3.70}))

	points, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "Farmacia Sol", points[0].Name)
	assert.Equal(t, []string{"Mon", "Tue"}, points[0].OpeningDays)
	assert.Empty(t, points[1].OpeningHours)
}

// Feature: nfc-prescription-pipeline, Property 10: Prescription Delete Cascades
func TestProperty_DeletePrescriptionRemovesEveryRecord(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMedicationRepository(pool, zap.NewNop())

	properties := gopter.NewProperties(nil)

	properties.Property("no record of a deleted prescription remains", prop.ForAll(
		func(names []string) bool {
			ctx := context.Background()
			userID := uuid.New().String()
			rxID := uuid.New().String()

			for _, name := range names {
				if err := repo.Create(ctx, newRecord(userID, rxID, name)); err != nil {
					t.Logf("Failed to create record: %v", err)
					return false
				}
			}

			n, err := repo.DeletePrescription(ctx, userID, rxID)
			if err != nil || n != int64(len(names)) {
				t.Logf("Unexpected delete result: %d, %v", n, err)
				return false
			}

			left, err := repo.FindByUserID(ctx, userID)
			return err == nil && len(left) == 0
		},
		gen.SliceOfN(5, gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 && len(s) < 100 })),
	))

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 20
	properties.TestingRun(t, params)
}
