package service

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vcscsvcscs/rxtag/internal/audit"
	"github.com/vcscsvcscs/rxtag/pkg/model"
)

// MockCatalog is a mock implementation of CatalogLookup
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) FindByName(ctx context.Context, name string) (*model.CatalogEntry, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CatalogEntry), args.Error(1)
}

// MockRecordStore is a mock implementation of RecordStore
type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) Create(ctx context.Context, rec *model.MedicationRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

// MockPrescriptionStore is a mock implementation of PrescriptionStore
type MockPrescriptionStore struct {
	mock.Mock
}

func (m *MockPrescriptionStore) FindByUserID(ctx context.Context, userID string) ([]model.MedicationRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MedicationRecord), args.Error(1)
}

func (m *MockPrescriptionStore) FindByPrescription(ctx context.Context, userID, prescriptionID string) ([]model.MedicationRecord, error) {
	args := m.Called(ctx, userID, prescriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MedicationRecord), args.Error(1)
}

func (m *MockPrescriptionStore) SetPrescriptionActive(ctx context.Context, userID, prescriptionID string, active bool) (int64, error) {
	args := m.Called(ctx, userID, prescriptionID, active)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPrescriptionStore) DeletePrescription(ctx context.Context, userID, prescriptionID string) (int64, error) {
	args := m.Called(ctx, userID, prescriptionID)
	return args.Get(0).(int64), args.Error(1)
}

// MockAuditLogger is a mock implementation of AuditLogger
type MockAuditLogger struct {
	mock.Mock
}

func (m *MockAuditLogger) Log(ctx context.Context, entry audit.AuditLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// MockPharmacySource is a mock implementation of PharmacySource
type MockPharmacySource struct {
	mock.Mock
}

func (m *MockPharmacySource) ListAll(ctx context.Context) ([]model.PharmacyPoint, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PharmacyPoint), args.Error(1)
}

// staticResolver resolves names from a fixed map
type staticResolver map[string]string

func (r staticResolver) Resolve(ctx context.Context, drugName string) Resolution {
	if id, ok := r[drugName]; ok {
		return Resolution{CatalogID: id, CatalogRef: CatalogRefPrefix + id, Found: true}
	}
	return unknownResolution()
}
