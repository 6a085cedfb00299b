// Package audit maintains the append-only history carried on every order.
package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/vaidashi/apparel-order-pipeline/internal/models"
)

// ErrHistoryRewritten is returned when an update would drop, reorder or edit
// an existing history entry
var ErrHistoryRewritten = errors.New("order history rewritten")

// AppendEntry returns a copy of order with one more history entry and
// UpdatedAt set to now. Existing entries are carried over untouched.
func AppendEntry(
	order models.Order,
	action string,
	prev, next models.AuditValue,
	actor models.CurrentUser,
	notes string,
	now time.Time,
) models.Order {
	out := order.Clone()

	out.History = append(out.History, models.StatusChangeLog{
		Timestamp:     now,
		UserID:        actor.ID,
		UserName:      actor.DisplayName,
		Action:        action,
		PreviousValue: prev,
		NewValue:      next,
		Notes:         notes,
	})
	out.UpdatedAt = now

	return out
}

// VerifyAppendOnly checks that after extends before: it must be strictly
// longer and every entry of before must be canonically identical at the
// same index.
func VerifyAppendOnly(before, after []models.StatusChangeLog) error {
	if len(after) <= len(before) {
		return fmt.Errorf("%w: history length %d -> %d", ErrHistoryRewritten, len(before), len(after))
	}

	for i := range before {
		same, err := sameEntry(before[i], after[i])

		if err != nil {
			return fmt.Errorf("failed to canonicalize history entry %d: %w", i, err)
		}

		if !same {
			return fmt.Errorf("%w: entry %d changed", ErrHistoryRewritten, i)
		}
	}

	return nil
}

// Canonical returns the RFC 8785 form of one entry
func Canonical(entry models.StatusChangeLog) ([]byte, error) {
	raw, err := json.Marshal(entry)

	if err != nil {
		return nil, err
	}

	return jcs.Transform(raw)
}

func sameEntry(a, b models.StatusChangeLog) (bool, error) {
	ca, err := Canonical(a)

	if err != nil {
		return false, err
	}

	cb, err := Canonical(b)

	if err != nil {
		return false, err
	}

	return bytes.Equal(ca, cb), nil
}
