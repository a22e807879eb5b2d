package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/sentinel"
)

type VerifierSuite struct {
	suite.Suite

	ctx      context.Context
	store    *InMemoryStore
	appender *Appender
	verifier *Verifier
	tenantID id.TenantID
}

func TestVerifierSuite(t *testing.T) {
	suite.Run(t, new(VerifierSuite))
}

func (s *VerifierSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
	s.appender = NewAppender(s.store)
	s.verifier = NewVerifier(s.store)
	s.tenantID = id.TenantID(uuid.New())
}

// seed appends n entries and returns them in chain order.
func (s *VerifierSuite) seed(n int) []AuditEvent {
	out := make([]AuditEvent, 0, n)
	for i := 0; i < n; i++ {
		e, err := s.appender.Append(s.ctx, s.tenantID, Fields{
			EventType: EventDataAccess,
			Action:    "PATIENT_VIEWED",
			Timestamp: time.Date(2026, 4, 1, 8, 0, i, 0, time.UTC),
		})
		s.Require().NoError(err)
		out = append(out, e)
	}
	return out
}

func (s *VerifierSuite) TestEmptyChainIsValid() {
	res, err := s.verifier.Verify(s.ctx, s.tenantID, Window{})
	s.Require().NoError(err)

	s.True(res.IsValid)
	s.Zero(res.TotalLogs)
	s.Nil(res.FirstBrokenAt)
}

func (s *VerifierSuite) TestIntactChainIsValid() {
	s.seed(10)

	res, err := s.verifier.Verify(s.ctx, s.tenantID, Window{})
	s.Require().NoError(err)
	s.True(res.IsValid)
	s.Equal(int64(10), res.TotalLogs)
	s.Nil(res.FirstBrokenAt)
}

func (s *VerifierSuite) TestVerifyIsRepeatable() {
	s.seed(5)
	s.store.tamper(s.tenantID, 3, func(e *AuditEvent) { e.Action = "FORGED" })

	first, err := s.verifier.Verify(s.ctx, s.tenantID, Window{})
	s.Require().NoError(err)
	for i := 0; i < 3; i++ {
		again, err := s.verifier.Verify(s.ctx, s.tenantID, Window{})
		s.Require().NoError(err)
		s.Equal(first, again)
	}
}

func (s *VerifierSuite) TestTamperedFieldDetectedAtItsTimestamp() {
	entries := s.seed(5)

	mutations := map[string]func(*AuditEvent){
		"action":      func(e *AuditEvent) { e.Action = "FORGED" },
		"actor":       func(e *AuditEvent) { u := id.UserID(uuid.New()); e.ActorUserID = &u },
		"event_type":  func(e *AuditEvent) { e.EventType = EventSecurityEvent },
		"resource_id": func(e *AuditEvent) { e.ResourceID = "someone-else" },
		"new_value":   func(e *AuditEvent) { e.NewValue = Payload{"dose": "900mg"} },
	}

	for name, mutate := range mutations {
		s.Run(name, func() {
			s.SetupTest()
			entries = s.seed(5)
			s.store.tamper(s.tenantID, 3, mutate)

			res, err := s.verifier.Verify(s.ctx, s.tenantID, Window{})
			s.Require().NoError(err)
			s.False(res.IsValid)
			s.Equal(int64(5), res.TotalLogs)
			s.Require().NotNil(res.FirstBrokenAt)
			s.Equal(entries[2].SequenceTimestamp, *res.FirstBrokenAt)
		})
	}
}

func (s *VerifierSuite) TestSingleTamperDoesNotCascade() {
	entries := s.seed(5)
	s.store.tamper(s.tenantID, 2, func(e *AuditEvent) { e.Action = "FORGED" })

	res, err := s.verifier.Verify(s.ctx, s.tenantID, Window{})
	s.Require().NoError(err)
	s.False(res.IsValid)
	s.Require().NotNil(res.FirstBrokenAt)
	s.Equal(entries[1].SequenceTimestamp, *res.FirstBrokenAt)
}

func (s *VerifierSuite) TestDeletedMiddleEntryBreaksChain() {
	entries := s.seed(5)
	s.store.remove(s.tenantID, 3)

	res, err := s.verifier.Verify(s.ctx, s.tenantID, Window{})
	s.Require().NoError(err)
	s.False(res.IsValid)
	s.Equal(int64(4), res.TotalLogs)
	// The successor of the gap is the first entry whose linkage fails.
	s.Require().NotNil(res.FirstBrokenAt)
	s.Equal(entries[3].SequenceTimestamp, *res.FirstBrokenAt)
}

func (s *VerifierSuite) TestTamperedFinalChainHashDetected() {
	entries := s.seed(3)
	s.store.tamper(s.tenantID, 3, func(e *AuditEvent) {
		e.ChainHash = ChainHash(e.ContentHash, GenesisHash)
	})

	res, err := s.verifier.Verify(s.ctx, s.tenantID, Window{})
	s.Require().NoError(err)
	s.False(res.IsValid)
	s.Require().NotNil(res.FirstBrokenAt)
	s.Equal(entries[2].SequenceTimestamp, *res.FirstBrokenAt)
}

func (s *VerifierSuite) TestRehashedTamperStillBreaksLinkage() {
	// An attacker who rewrites an entry and recomputes its own hashes still
	// cannot produce the successor's stored previous hash.
	entries := s.seed(4)
	s.store.tamper(s.tenantID, 2, func(e *AuditEvent) {
		e.Action = "FORGED"
		e.ContentHash = ContentHash(e)
		e.ChainHash = ChainHash(e.ContentHash, e.PreviousChainHash)
	})

	res, err := s.verifier.Verify(s.ctx, s.tenantID, Window{})
	s.Require().NoError(err)
	s.False(res.IsValid)
	s.Require().NotNil(res.FirstBrokenAt)
	s.Equal(entries[2].SequenceTimestamp, *res.FirstBrokenAt)
}

func (s *VerifierSuite) TestValidAfterMicrosecondStorageRoundTrip() {
	// The database keeps microsecond timestamps. A chain written with a
	// nanosecond wall clock must still verify after entries are read back at
	// the store's precision.
	clock := time.Date(2026, 9, 1, 10, 0, 0, 123456789, time.UTC)
	appender := NewAppender(s.store, WithClock(func() time.Time {
		clock = clock.Add(time.Second + 789*time.Nanosecond)
		return clock
	}))

	for i := 0; i < 5; i++ {
		_, err := appender.Append(s.ctx, s.tenantID, Fields{
			EventType: EventDataAccess,
			Action:    "PATIENT_VIEWED",
		})
		s.Require().NoError(err)
	}

	for pos := int64(1); pos <= 5; pos++ {
		s.store.tamper(s.tenantID, pos, func(e *AuditEvent) {
			e.SequenceTimestamp = e.SequenceTimestamp.Truncate(time.Microsecond)
		})
	}

	res, err := s.verifier.Verify(s.ctx, s.tenantID, Window{})
	s.Require().NoError(err)
	s.True(res.IsValid)
	s.Equal(int64(5), res.TotalLogs)
	s.Nil(res.FirstBrokenAt)
}

func (s *VerifierSuite) TestWindowedScanAnchorsToFirstEntry() {
	s.seed(6)

	from := time.Date(2026, 4, 1, 8, 0, 2, 0, time.UTC)
	res, err := s.verifier.Verify(s.ctx, s.tenantID, Window{From: &from})
	s.Require().NoError(err)
	s.True(res.IsValid)
	s.Equal(int64(4), res.TotalLogs)
}

func (s *VerifierSuite) TestWindowedScanStillDetectsTamper() {
	entries := s.seed(6)
	s.store.tamper(s.tenantID, 4, func(e *AuditEvent) { e.Action = "FORGED" })

	from := time.Date(2026, 4, 1, 8, 0, 2, 0, time.UTC)
	res, err := s.verifier.Verify(s.ctx, s.tenantID, Window{From: &from})
	s.Require().NoError(err)
	s.False(res.IsValid)
	s.Require().NotNil(res.FirstBrokenAt)
	s.Equal(entries[3].SequenceTimestamp, *res.FirstBrokenAt)
}

func (s *VerifierSuite) TestWindowedScanToleratesClockSkew() {
	// Position 4 carries a wall clock behind the window start. It still sits
	// between in-window neighbours, so the scan must include it; dropping it
	// would make position 5's linkage look broken.
	stamps := []time.Time{
		time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 1, 8, 0, 1, 0, time.UTC),
		time.Date(2026, 4, 1, 8, 0, 2, 0, time.UTC),
		time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC), // skewed back
		time.Date(2026, 4, 1, 8, 0, 4, 0, time.UTC),
	}
	for _, at := range stamps {
		_, err := s.appender.Append(s.ctx, s.tenantID, Fields{
			EventType: EventDataAccess,
			Action:    "PATIENT_VIEWED",
			Timestamp: at,
		})
		s.Require().NoError(err)
	}

	from := time.Date(2026, 4, 1, 8, 0, 2, 0, time.UTC)
	res, err := s.verifier.Verify(s.ctx, s.tenantID, Window{From: &from})
	s.Require().NoError(err)
	s.True(res.IsValid)
	s.Equal(int64(3), res.TotalLogs)
	s.Nil(res.FirstBrokenAt)
}

func (s *VerifierSuite) TestNilTenantRejected() {
	_, err := s.verifier.Verify(s.ctx, id.TenantID{}, Window{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *VerifierSuite) TestCancellationIsErrorNotResult() {
	s.seed(5)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.verifier.Verify(ctx, s.tenantID, Window{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func (s *VerifierSuite) TestStorageFailureIsDistinctFromBrokenChain() {
	v := NewVerifier(&brokenScanStore{Store: s.store})

	_, err := v.Verify(s.ctx, s.tenantID, Window{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

type brokenScanStore struct {
	Store
}

func (s *brokenScanStore) Scan(context.Context, id.TenantID, Window, func(AuditEvent) error) error {
	return sentinel.ErrUnavailable
}
