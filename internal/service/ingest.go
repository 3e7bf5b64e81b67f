package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vcscsvcscs/rxtag/internal/audit"
	"github.com/vcscsvcscs/rxtag/internal/metrics"
	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// IngestState is a step of one ingestion
type IngestState int

const (
	IngestIdle IngestState = iota
	IngestVerifyingOwner
	IngestResolvingMedications
	IngestPersistingRecords
	IngestCommitted
	IngestRejected
)

var ingestStateNames = map[IngestState]string{
	IngestIdle:                 "idle",
	IngestVerifyingOwner:       "verifying_owner",
	IngestResolvingMedications: "resolving_medications",
	IngestPersistingRecords:    "persisting_records",
	IngestCommitted:            "committed",
	IngestRejected:             "rejected",
}

func (s IngestState) String() string {
	if name, ok := ingestStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ingest_state(%d)", int(s))
}

// RejectionReason says why an ingestion was rejected
type RejectionReason string

const (
	OwnershipMismatch         RejectionReason = "OwnershipMismatch"
	PartialPersistenceFailure RejectionReason = "PartialPersistenceFailure"
	NoDataToPersist           RejectionReason = "NoDataToPersist"
	InvalidMedicationLine     RejectionReason = "InvalidMedicationLine"
)

// Rejection is the error returned for a rejected ingestion
type Rejection struct {
	Reason RejectionReason
	Err    error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("prescription rejected: %s: %v", r.Reason, r.Err)
	}
	return fmt.Sprintf("prescription rejected: %s", r.Reason)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// metric labels per final outcome
var outcomeLabels = map[RejectionReason]string{
	OwnershipMismatch:         "ownership_mismatch",
	PartialPersistenceFailure: "partial_persistence_failure",
	NoDataToPersist:           "no_data_to_persist",
	InvalidMedicationLine:     "invalid_medication_line",
}

// Resolver resolves drug names to catalog references
type Resolver interface {
	Resolve(ctx context.Context, drugName string) Resolution
}

// RecordStore persists medication records
type RecordStore interface {
	Create(ctx context.Context, rec *model.MedicationRecord) error
}

// AuditLogger records audit entries
type AuditLogger interface {
	Log(ctx context.Context, entry audit.AuditLog) error
}

// Archiver keeps a copy of committed tag payloads
type Archiver interface {
	Archive(ctx context.Context, userID string, p model.PrescriptionPayload) (string, error)
}

// IngestObserver receives every state an ingestion enters
type IngestObserver func(prescriptionID string, state IngestState)

// IngestResult describes a committed ingestion
type IngestResult struct {
	PrescriptionID string                   `json:"prescription_id"`
	Stored         int                      `json:"stored"`
	Records        []model.MedicationRecord `json:"records"`
	ArchiveBlob    string                   `json:"archive_blob,omitempty"`
}

// IngestorOption configures an Ingestor
type IngestorOption func(*Ingestor)

// WithClock sets the time source used for createdAt and the start fallback
func WithClock(now func() time.Time) IngestorOption {
	return func(i *Ingestor) { i.now = now }
}

// WithLocation sets the zone issuedAt timestamps are parsed in
func WithLocation(loc *time.Location) IngestorOption {
	return func(i *Ingestor) { i.loc = loc }
}

// WithMaxConcurrency bounds concurrent record writes
func WithMaxConcurrency(n int) IngestorOption {
	return func(i *Ingestor) {
		if n > 0 {
			i.maxConcurrency = n
		}
	}
}

// WithObserver reports state transitions to fn
func WithObserver(fn IngestObserver) IngestorOption {
	return func(i *Ingestor) { i.observer = fn }
}

// WithAudit writes an audit entry for every commit
func WithAudit(a AuditLogger) IngestorOption {
	return func(i *Ingestor) { i.audit = a }
}

// WithArchive archives the payload of every commit
func WithArchive(a Archiver) IngestorOption {
	return func(i *Ingestor) { i.archive = a }
}

// WithMetrics records ingestion outcomes
func WithMetrics(m *metrics.Metrics) IngestorOption {
	return func(i *Ingestor) { i.metrics = m }
}

// Ingestor turns scanned prescriptions into persisted medication records
type Ingestor struct {
	resolver       Resolver
	store          RecordStore
	logger         *zap.Logger
	now            func() time.Time
	loc            *time.Location
	maxConcurrency int
	observer       IngestObserver
	audit          AuditLogger
	archive        Archiver
	metrics        *metrics.Metrics
}

// NewIngestor creates an Ingestor
func NewIngestor(resolver Resolver, store RecordStore, logger *zap.Logger, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		resolver:       resolver,
		store:          store,
		logger:         logger,
		now:            time.Now,
		loc:            time.UTC,
		maxConcurrency: 8,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ingestion tracks the state of one Ingest call
type ingestion struct {
	*Ingestor
	rxID   string
	userID string
	state  IngestState
}

func (in *ingestion) enter(next IngestState) {
	in.logger.Debug("ingest state transition",
		zap.String("prescription_id", in.rxID),
		zap.String("user_id", in.userID),
		zap.Stringer("from", in.state),
		zap.Stringer("to", next),
	)
	in.state = next
	if in.observer != nil {
		in.observer(in.rxID, next)
	}
}

func (in *ingestion) reject(reason RejectionReason, cause error, started time.Time) error {
	in.enter(IngestRejected)
	in.logger.Warn("prescription rejected",
		zap.String("prescription_id", in.rxID),
		zap.String("user_id", in.userID),
		zap.String("reason", string(reason)),
		zap.Error(cause),
	)
	in.metrics.RecordIngestion(outcomeLabels[reason], 0, in.now().Sub(started))
	return &Rejection{Reason: reason, Err: cause}
}

// Ingest verifies that payload belongs to actingUserID, resolves every line
// and persists one record per line. A failed write rejects the whole
// prescription; records already written stay. If ctx ends while records are
// being written Ingest returns ctx.Err() and the writes run to completion in
// the background.
func (i *Ingestor) Ingest(ctx context.Context, payload model.PrescriptionPayload, actingUserID string) (IngestResult, error) {
	started := i.now()
	in := &ingestion{Ingestor: i, rxID: payload.ID, userID: actingUserID, state: IngestIdle}

	in.enter(IngestVerifyingOwner)
	if payload.PatientID != actingUserID {
		return IngestResult{}, in.reject(OwnershipMismatch,
			fmt.Errorf("prescription belongs to %q", payload.PatientID), started)
	}
	if len(payload.Meds) == 0 {
		return IngestResult{}, in.reject(NoDataToPersist, nil, started)
	}
	if err := validateLines(payload.Meds); err != nil {
		return IngestResult{}, in.reject(InvalidMedicationLine, err, started)
	}

	in.enter(IngestResolvingMedications)
	records := i.buildRecords(ctx, payload, actingUserID)

	in.enter(IngestPersistingRecords)
	done := make(chan ingestOutcome, 1)
	detached := context.WithoutCancel(ctx)
	go func() {
		done <- in.persist(detached, payload, records, started)
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		i.logger.Warn("stopped waiting for prescription persistence",
			zap.String("prescription_id", payload.ID),
			zap.String("user_id", actingUserID),
			zap.Error(ctx.Err()),
		)
		return IngestResult{PrescriptionID: payload.ID}, ctx.Err()
	}
}

// validateLines rejects lines whose treatment window would end before it starts
func validateLines(meds []model.MedicationLine) error {
	var errs error
	for idx, line := range meds {
		if line.Days < 0 {
			errs = multierr.Append(errs, fmt.Errorf("line %d (%s): days must not be negative, got %d", idx, line.Drug, line.Days))
		}
	}
	return errs
}

func (i *Ingestor) buildRecords(ctx context.Context, payload model.PrescriptionPayload, userID string) []model.MedicationRecord {
	now := i.now()
	records := make([]model.MedicationRecord, 0, len(payload.Meds))

	for _, line := range payload.Meds {
		res := i.resolver.Resolve(ctx, line.Drug)
		start, end, parsed := TreatmentWindow(payload.IssuedAt, line.Days, i.loc, now)
		if !parsed {
			i.logger.Debug("issuedAt not parseable, using current time",
				zap.String("prescription_id", payload.ID),
				zap.String("issued_at", payload.IssuedAt),
			)
		}

		records = append(records, model.MedicationRecord{
			ID:             uuid.New().String(),
			UserID:         userID,
			MedicationID:   res.CatalogID,
			MedicationRef:  res.CatalogRef,
			Name:           line.Drug,
			DoseMg:         ParseDoseMg(line.Dose),
			FrequencyHours: ParseFrequencyHours(line.Freq),
			StartDate:      start,
			EndDate:        end,
			CreatedAt:      now,
			Active:         true,
			PrescriptionID: payload.ID,
			SourceFile:     model.SourceNFCTag,
		})
	}

	return records
}

type ingestOutcome struct {
	result IngestResult
	err    error
}

func (in *ingestion) persist(ctx context.Context, payload model.PrescriptionPayload, records []model.MedicationRecord, started time.Time) ingestOutcome {
	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(in.maxConcurrency)

	for idx := range records {
		rec := &records[idx]
		g.Go(func() error {
			if err := in.store.Create(ctx, rec); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("failed to store %s: %w", rec.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if errs != nil {
		return ingestOutcome{
			result: IngestResult{PrescriptionID: in.rxID},
			err:    in.reject(PartialPersistenceFailure, errs, started),
		}
	}

	in.enter(IngestCommitted)
	result := IngestResult{
		PrescriptionID: in.rxID,
		Stored:         len(records),
		Records:        records,
	}
	in.logger.Info("prescription committed",
		zap.String("prescription_id", in.rxID),
		zap.String("user_id", in.userID),
		zap.Int("records", len(records)),
	)
	in.metrics.RecordIngestion("committed", len(records), in.now().Sub(started))

	if in.audit != nil {
		err := in.audit.Log(ctx, audit.AuditLog{
			UserID:         in.userID,
			OperationType:  audit.OperationCreate,
			ResourceType:   audit.ResourcePrescription,
			ResourceID:     in.rxID,
			AdditionalData: map[string]interface{}{"records": len(records), "signed": payload.Signed},
		})
		if err != nil {
			in.logger.Error("failed to audit prescription commit", zap.Error(err), zap.String("prescription_id", in.rxID))
		}
	}

	if in.archive != nil {
		blob, err := in.archive.Archive(ctx, in.userID, payload)
		if err != nil {
			in.logger.Warn("failed to archive tag payload", zap.Error(err), zap.String("prescription_id", in.rxID))
		} else {
			result.ArchiveBlob = blob
		}
	}

	return ingestOutcome{result: result}
}
