package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/vcscsvcscs/rxtag/internal/azure"
	"github.com/vcscsvcscs/rxtag/internal/geo"
	"github.com/vcscsvcscs/rxtag/internal/nfc"
	"github.com/vcscsvcscs/rxtag/internal/repository"
	"github.com/vcscsvcscs/rxtag/internal/security"
	"github.com/vcscsvcscs/rxtag/internal/service"
	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.uber.org/zap"
)

const testMimeType = "application/com.example.rxtag.prescription"

func init() {
	gin.SetMode(gin.TestMode)
}

// memStore keeps medication records in memory
type memStore struct {
	mu      sync.Mutex
	records []model.MedicationRecord
	failOn  string
	// onCreate runs before every insert, outside the lock
	onCreate func()
}

func (s *memStore) Create(ctx context.Context, rec *model.MedicationRecord) error {
	if s.onCreate != nil {
		s.onCreate()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Name == s.failOn {
		return errors.New("insert failed")
	}
	s.records = append(s.records, *rec)
	return nil
}

func (s *memStore) FindByUserID(ctx context.Context, userID string) ([]model.MedicationRecord, error) {
	return s.filter(func(r model.MedicationRecord) bool { return r.UserID == userID }), nil
}

func (s *memStore) FindByPrescription(ctx context.Context, userID, rxID string) ([]model.MedicationRecord, error) {
	return s.filter(func(r model.MedicationRecord) bool { return r.UserID == userID && r.PrescriptionID == rxID }), nil
}

func (s *memStore) SetPrescriptionActive(ctx context.Context, userID, rxID string, active bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.records {
		if s.records[i].UserID == userID && s.records[i].PrescriptionID == rxID {
			s.records[i].Active = active
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeletePrescription(ctx context.Context, userID, rxID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var n int64
	for _, r := range s.records {
		if r.UserID == userID && r.PrescriptionID == rxID {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return n, nil
}

func (s *memStore) filter(keep func(model.MedicationRecord) bool) []model.MedicationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.MedicationRecord{}
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type mapCatalog map[string]string

func (c mapCatalog) FindByName(ctx context.Context, name string) (*model.CatalogEntry, error) {
	if id, ok := c[name]; ok {
		return &model.CatalogEntry{ID: id, Name: name}, nil
	}
	return nil, repository.ErrNotFound
}

type pharmacyList []model.PharmacyPoint

func (p pharmacyList) ListAll(ctx context.Context) ([]model.PharmacyPoint, error) {
	return p, nil
}

var sol = geo.Location{Latitude: 40.4169, Longitude: -3.7035}

func pharmacyAt(meters float64, name string) model.PharmacyPoint {
	return model.PharmacyPoint{
		Name:      name,
		Latitude:  sol.Latitude + meters/geo.EarthRadiusMeters*180/math.Pi,
		Longitude: sol.Longitude,
	}
}

type testServer struct {
	router  *gin.Engine
	store   *memStore
	session *nfc.Session
	blob    *azure.MockBlobStorageClient
}

func newTestServer(t *testing.T, withArchive bool, checks map[string]CheckFunc) *testServer {
	t.Helper()
	logger := zap.NewNop()

	store := &memStore{}
	session := nfc.NewSession(testMimeType, nil, logger)
	resolver := service.NewMedicationResolver(mapCatalog{"Ibuprofen": "ibu-400"}, nil, nil, logger)

	var (
		archive *service.TagArchive
		blob    *azure.MockBlobStorageClient
		opts    []service.IngestorOption
	)
	if withArchive {
		enc, err := security.NewEncryptor(bytes.Repeat([]byte{7}, 32))
		require.NoError(t, err)
		blob = azure.NewMockBlobStorageClient(logger)
		archive = service.NewTagArchive(blob, enc, testMimeType, logger)
		opts = append(opts, service.WithArchive(archive))
	}
	ingestor := service.NewIngestor(resolver, store, logger, opts...)

	locator := service.NewPharmacyLocator(pharmacyList{
		pharmacyAt(8000, "far"),
		pharmacyAt(500, "b"),
		pharmacyAt(2000, "c"),
		pharmacyAt(100, "a"),
	}, service.LocatorConfig{RadiusMeters: 6000, K: 3}, nil, logger)

	if checks == nil {
		checks = map[string]CheckFunc{"postgres": func(ctx context.Context) error { return nil }}
	}

	router := gin.New()
	RegisterRoutes(router, Handlers{
		NFC:          NewNFCHandler(session, ingestor, archive, logger),
		Ingest:       NewIngestHandler(ingestor, logger),
		Prescription: NewPrescriptionHandler(service.NewPrescriptionBrowser(store, nil, logger), logger),
		Pharmacy:     NewPharmacyHandler(locator, logger),
		Health:       NewHealthHandler(checks, logger),
	})

	return &testServer{router: router, store: store, session: session, blob: blob}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func samplePayload() model.PrescriptionPayload {
	return model.PrescriptionPayload{
		ID:        "rx-42",
		PatientID: "patient-7",
		IssuedAt:  "2026-02-01T10:00:00Z",
		Signed:    true,
		Meds: []model.MedicationLine{
			{Drug: "Ibuprofen", Dose: "400mg", Freq: "8h", Days: 5},
			{Drug: "Amoxicillin", Dose: "500mg", Freq: "12h", Days: 7},
		},
	}
}

func tagWith(t *testing.T, p model.PrescriptionPayload) []byte {
	t.Helper()
	raw, err := nfc.EncodePayload(p, testMimeType)
	require.NoError(t, err)
	return raw
}
