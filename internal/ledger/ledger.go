// Package ledger implements the append-only, hash-chained audit record
// store. The chain is the system's tamper-evidence data structure, not a
// side effect of logging: any alteration of a stored record breaks the
// chain and is detectable by verification.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/welltegra/brahan/internal/domain"
)

// Entry is one event to be appended. Payload is serialized canonically and
// folded into the chain hash.
type Entry struct {
	EntityType domain.EntityType
	EntityID   string
	Action     string
	WellID     string
	RunID      string
	Payload    any
}

type tip struct {
	seq    uint64
	hash   string
	loaded bool
}

// Ledger serializes all appends through a single ordered-append path per
// operator, so sequence numbers stay gap-free and strictly increasing.
// Records persist through the repository and are never edited or deleted.
type Ledger struct {
	mu   sync.Mutex
	repo domain.Repository
	tips map[string]*tip
}

// New creates a ledger backed by the repository.
func New(repo domain.Repository) *Ledger {
	return &Ledger{
		repo: repo,
		tips: make(map[string]*tip),
	}
}

// Append appends a batch of entries under the single-writer lock. Batching
// per well keeps the one global synchronization point from dominating
// pipeline throughput.
func (l *Ledger) Append(ctx context.Context, operatorID string, entries []Entry) ([]domain.AuditRecord, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	t, err := l.loadTip(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	records := make([]domain.AuditRecord, 0, len(entries))
	for _, e := range entries {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("serialize audit payload for %s %s: %w", e.EntityType, e.EntityID, err)
		}

		rec := domain.AuditRecord{
			Seq:        t.seq + 1,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Action:     e.Action,
			WellID:     e.WellID,
			RunID:      e.RunID,
			Payload:    payload,
			PrevHash:   t.hash,
			Timestamp:  time.Now().UTC(),
		}
		rec.Hash = chainHash(&rec)

		records = append(records, rec)
		t.seq = rec.Seq
		t.hash = rec.Hash
	}

	if err := l.repo.AppendAuditRecords(ctx, operatorID, records); err != nil {
		// The in-memory tip must not advance past what is persisted.
		t.loaded = false
		return nil, fmt.Errorf("persist audit records: %w", err)
	}

	return records, nil
}

// loadTip restores the chain head from the repository after startup or a
// failed append. Caller holds the lock.
func (l *Ledger) loadTip(ctx context.Context, operatorID string) (*tip, error) {
	t, ok := l.tips[operatorID]
	if !ok {
		t = &tip{}
		l.tips[operatorID] = t
	}
	if t.loaded {
		return t, nil
	}

	last, err := l.repo.LastAuditRecord(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("load audit chain tip: %w", err)
	}
	if last != nil {
		t.seq = last.Seq
		t.hash = last.Hash
	} else {
		t.seq = 0
		t.hash = ""
	}
	t.loaded = true
	return t, nil
}

// Verify walks the chain in [fromSeq, toSeq], recomputing every hash, and
// reports the first index where the chain breaks. toSeq of zero means the
// current head.
func (l *Ledger) Verify(ctx context.Context, operatorID string, fromSeq, toSeq uint64) error {
	records, err := l.repo.ListAuditRecords(ctx, operatorID, fromSeq, toSeq)
	if err != nil {
		return fmt.Errorf("load audit records: %w", err)
	}
	return VerifyRecords(records)
}

// VerifyRecords checks an exported record sequence independently of any
// store: contiguous sequence numbers, prev_hash linkage, and recomputed
// hashes must all hold.
func VerifyRecords(records []domain.AuditRecord) error {
	for i := range records {
		rec := &records[i]
		if i > 0 {
			prev := &records[i-1]
			if rec.Seq != prev.Seq+1 {
				return &domain.AuditChainIntegrityError{Seq: rec.Seq, Reason: fmt.Sprintf("sequence gap after %d", prev.Seq)}
			}
			if rec.PrevHash != prev.Hash {
				return &domain.AuditChainIntegrityError{Seq: rec.Seq, Reason: "prev_hash does not match preceding record"}
			}
		}
		if chainHash(rec) != rec.Hash {
			return &domain.AuditChainIntegrityError{Seq: rec.Seq, Reason: "stored hash does not match recomputed hash"}
		}
	}
	return nil
}

// Export returns the ordered records in [fromSeq, toSeq] for independent
// verification. toSeq of zero means the current head.
func (l *Ledger) Export(ctx context.Context, operatorID string, fromSeq, toSeq uint64) ([]domain.AuditRecord, error) {
	return l.repo.ListAuditRecords(ctx, operatorID, fromSeq, toSeq)
}

// chainHash computes hex(sha256(prev_hash || canonical record payload)).
// The envelope fields are folded in so moving a payload between records is
// also detectable.
func chainHash(rec *domain.AuditRecord) string {
	h := sha256.New()
	h.Write([]byte(rec.PrevHash))
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s|",
		rec.Seq, rec.EntityType, rec.EntityID, rec.Action,
		rec.WellID, rec.RunID, rec.Timestamp.Format(time.RFC3339Nano))
	h.Write(rec.Payload)
	return hex.EncodeToString(h.Sum(nil))
}
