package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcscsvcscs/rxtag/pkg/model"
)

func seed(t *testing.T, s *testServer) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/prescriptions/ingest", IngestRequest{UserID: "patient-7", Payload: samplePayload()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestIngestEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		failOn     string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed json",
			body:       `{"user_id": `,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidation,
		},
		{
			name:       "missing user",
			body:       IngestRequest{Payload: samplePayload()},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidation,
		},
		{
			name: "no medications",
			body: func() IngestRequest {
				p := samplePayload()
				p.Meds = nil
				return IngestRequest{UserID: "patient-7", Payload: p}
			}(),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "NO_DATA_TO_PERSIST",
		},
		{
			name: "negative duration",
			body: func() IngestRequest {
				p := samplePayload()
				p.Meds[1].Days = -10
				return IngestRequest{UserID: "patient-7", Payload: p}
			}(),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INVALID_MEDICATION_LINE",
		},
		{
			name:       "wrong owner",
			body:       IngestRequest{UserID: "someone", Payload: samplePayload()},
			wantStatus: http.StatusForbidden,
			wantCode:   "OWNERSHIP_MISMATCH",
		},
		{
			name:       "store failure",
			body:       IngestRequest{UserID: "patient-7", Payload: samplePayload()},
			failOn:     "Amoxicillin",
			wantStatus: http.StatusInternalServerError,
			wantCode:   "PARTIAL_PERSISTENCE_FAILURE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, false, nil)
			s.store.failOn = tt.failOn

			w := s.do(t, http.MethodPost, "/api/v1/prescriptions/ingest", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			errResp := decode[ErrorResponse](t, w)
			assert.Equal(t, tt.wantCode, errResp.Code)
			assert.NotEmpty(t, errResp.Message)
		})
	}
}

func TestIngestEndpoint_Commit(t *testing.T) {
	s := newTestServer(t, false, nil)
	seed(t, s)

	records := decode[[]model.MedicationRecord](t, s.do(t, http.MethodGet, "/api/v1/users/patient-7/prescriptions/rx-42", nil))
	require.Len(t, records, 2)
	assert.Equal(t, "Amoxicillin", records[0].Name)
	assert.Equal(t, "medications/unknown", records[0].MedicationRef)
	assert.Equal(t, "Ibuprofen", records[1].Name)
	assert.Equal(t, "medications/ibu-400", records[1].MedicationRef)
	assert.Equal(t, 400, records[1].DoseMg)
	assert.Equal(t, 8, records[1].FrequencyHours)
}

func TestPrescriptionEndpoints(t *testing.T) {
	s := newTestServer(t, false, nil)
	seed(t, s)

	w := s.do(t, http.MethodPut, "/api/v1/users/patient-7/prescriptions/rx-42/active", map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"prescription_id":"rx-42","active":false}`, w.Body.String())

	summaries := decode[[]model.PrescriptionSummary](t, s.do(t, http.MethodGet, "/api/v1/users/patient-7/prescriptions", nil))
	require.Len(t, summaries, 1)
	assert.False(t, summaries[0].Active)

	w = s.do(t, http.MethodPut, "/api/v1/users/patient-7/prescriptions/rx-42/active", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/users/patient-7/prescriptions/rx-nope/active", map[string]bool{"active": true})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decode[ErrorResponse](t, w).Code)

	w = s.do(t, http.MethodGet, "/api/v1/users/intruder/prescriptions/rx-42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/users/patient-7/prescriptions/rx-42", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/v1/users/patient-7/prescriptions/rx-42", nil).Code)

	w = s.do(t, http.MethodGet, "/api/v1/users/patient-7/prescriptions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}
