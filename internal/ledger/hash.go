package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	id "medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

// HashAlgSHA256 is the only digest currently in use. Entries carry the tag so
// that a deployment changing algorithms can still verify its history.
const HashAlgSHA256 = "sha256"

// GenesisHash is the well-known PreviousChainHash of a tenant's first entry:
// an all-zero 256-bit digest in hex.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Build assembles a fully hashed entry at the given chain position, linking it
// to prevChainHash. It validates required fields before any hash work and does
// not persist anything.
func Build(tenantID id.TenantID, position int64, prevChainHash string, f Fields) (AuditEvent, error) {
	if err := validateFields(tenantID, position, prevChainHash, f); err != nil {
		return AuditEvent{}, err
	}

	e := AuditEvent{
		ID:       id.EventID(uuid.New()),
		TenantID: tenantID,
		Position: position,
		// TIMESTAMPTZ stores microseconds. Hashing finer precision than the
		// store can return would make the content hash unrecomputable after a
		// round trip, so the canonical timestamp is truncated here.
		SequenceTimestamp: f.Timestamp.UTC().Truncate(time.Microsecond),
		EventType:         f.EventType,
		ActorUserID:       f.ActorUserID,
		Action:            f.Action,
		ResourceType:      f.ResourceType,
		ResourceID:        f.ResourceID,
		OldValue:          f.OldValue,
		NewValue:          f.NewValue,
		HashAlg:           HashAlgSHA256,
		PreviousChainHash: prevChainHash,
	}
	e.ContentHash = ContentHash(&e)
	e.ChainHash = ChainHash(e.ContentHash, e.PreviousChainHash)
	return e, nil
}

func validateFields(tenantID id.TenantID, position int64, prevChainHash string, f Fields) error {
	switch {
	case tenantID.IsNil():
		return dErrors.New(dErrors.CodeValidation, "tenant ID is required")
	case position < 1:
		return dErrors.New(dErrors.CodeValidation, "chain position must be positive")
	case !f.EventType.Valid():
		return dErrors.New(dErrors.CodeValidation, "unknown event type")
	case strings.TrimSpace(f.Action) == "":
		return dErrors.New(dErrors.CodeValidation, "action is required")
	case f.Timestamp.IsZero():
		return dErrors.New(dErrors.CodeValidation, "sequence timestamp is required")
	case !isHexDigest(prevChainHash):
		return dErrors.New(dErrors.CodeValidation, "previous chain hash must be a 256-bit hex digest")
	}
	return nil
}

// ContentHash digests the entry's own fields under a canonical serialization:
// fixed field order, pipe-delimited, timestamps as RFC 3339 nano UTC, payload
// maps as JSON (sorted keys). The chain fields are excluded.
func ContentHash(e *AuditEvent) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s|%s|%s|%s|%s|%s|%s|%s",
		e.ID, e.TenantID, e.Position,
		e.SequenceTimestamp.UTC().Format(time.RFC3339Nano),
		e.EventType, actorString(e.ActorUserID), e.Action,
		e.ResourceType, e.ResourceID,
		canonicalPayload(e.OldValue), canonicalPayload(e.NewValue))
	return hex.EncodeToString(h.Sum(nil))
}

// ChainHash links an entry to its predecessor:
// SHA-256 over the hex content hash concatenated with the hex previous chain
// hash, content first.
func ChainHash(contentHash, previousChainHash string) string {
	h := sha256.Sum256([]byte(contentHash + previousChainHash))
	return hex.EncodeToString(h[:])
}

func actorString(actor *id.UserID) string {
	if actor == nil {
		return ""
	}
	return actor.String()
}

// canonicalPayload renders a payload deterministically. json.Marshal sorts
// string map keys, so equal logical content always serializes identically.
func canonicalPayload(p Payload) string {
	if len(p) == 0 {
		return ""
	}
	b, err := json.Marshal(p)
	if err != nil {
		// Marshal of map[string]string cannot fail; keep the hash total anyway.
		return ""
	}
	return string(b)
}

func isHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
