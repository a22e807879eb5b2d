package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"medledger/internal/fieldaudit"
	"medledger/internal/platform/middleware"
	id "medledger/pkg/domain"
)

type FieldAuditHandlerSuite struct {
	suite.Suite

	router         chi.Router
	tenantID       id.TenantID
	consultationID id.ConsultationID
	userID         id.UserID
}

func TestFieldAuditHandlerSuite(t *testing.T) {
	suite.Run(t, new(FieldAuditHandlerSuite))
}

func (s *FieldAuditHandlerSuite) SetupTest() {
	s.tenantID = id.TenantID(uuid.New())
	s.consultationID = id.ConsultationID(uuid.New())
	s.userID = id.UserID(uuid.New())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := fieldaudit.NewService(fieldaudit.NewInMemoryStore(), fieldaudit.WithLogger(logger))

	s.router = chi.NewRouter()
	s.router.Use(middleware.RequestID)
	New(service, logger).Register(s.router)
}

func (s *FieldAuditHandlerSuite) record(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost,
		"/consultations/"+s.consultationID.String()+"/field-changes", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *FieldAuditHandlerSuite) body(field, role string) string {
	b, err := json.Marshal(map[string]string{
		"tenant_id":       s.tenantID.String(),
		"field_name":      field,
		"old_value":       "before",
		"new_value":       "after",
		"changed_by":      s.userID.String(),
		"changed_by_role": role,
	})
	s.Require().NoError(err)
	return string(b)
}

func (s *FieldAuditHandlerSuite) TestRecordAndList() {
	rec := s.record(s.body("diagnosis", "assistant"))
	s.Require().Equal(http.StatusNoContent, rec.Code)

	req := httptest.NewRequest(http.MethodGet,
		"/consultations/"+s.consultationID.String()+"/field-changes", nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Require().Equal(http.StatusOK, rec.Code)

	var changes []FieldChangeResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &changes))
	s.Require().Len(changes, 1)
	s.Equal("diagnosis", changes[0].FieldName)
	s.Equal("assistant", changes[0].ChangedByRole)
	s.True(changes[0].IsMedicalDecision)
}

func (s *FieldAuditHandlerSuite) TestRecordRejectsUnknownRole() {
	rec := s.record(s.body("diagnosis", "janitor"))
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *FieldAuditHandlerSuite) TestRecordRejectsMissingField() {
	rec := s.record(`{"tenant_id":"` + s.tenantID.String() + `","changed_by":"` +
		s.userID.String() + `","changed_by_role":"physician"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *FieldAuditHandlerSuite) TestReviewFlagsNonPhysicianMedicalEdits() {
	s.Require().Equal(http.StatusNoContent, s.record(s.body("diagnosis", "assistant")).Code)
	s.Require().Equal(http.StatusNoContent, s.record(s.body("diagnosis", "physician")).Code)
	s.Require().Equal(http.StatusNoContent, s.record(s.body("note_admin", "secretary")).Code)

	req := httptest.NewRequest(http.MethodGet,
		"/tenants/"+s.tenantID.String()+"/field-changes/review?window=1h", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Require().Equal(http.StatusOK, rec.Code)

	var review ReviewResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &review))
	s.Len(review.ByRole, 3)
	s.Require().Len(review.Flagged, 1)
	s.Equal("diagnosis", review.Flagged[0].FieldName)
	s.Equal("assistant", review.Flagged[0].ChangedByRole)
}

func (s *FieldAuditHandlerSuite) TestReviewRejectsBadWindow() {
	req := httptest.NewRequest(http.MethodGet,
		"/tenants/"+s.tenantID.String()+"/field-changes/review?window=eternity", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}
