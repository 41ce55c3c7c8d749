package receipt

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"ms-booking/internal/models"
	"sync"
	"time"
)

// Numberer issues receipt numbers of the form RCP-<unix seconds>-<NNN>. Within
// one second the suffix is a sequence starting at a random offset, so one
// process never repeats a number until it issues 1000 in the same second. The
// receipts table's primary key catches collisions between processes.
type Numberer struct {
	mu      sync.Mutex
	lastSec int64
	seq     int64
}

func NewNumberer() *Numberer {
	return &Numberer{lastSec: -1}
}

func (n *Numberer) Next(now time.Time) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	sec := now.Unix()
	if sec != n.lastSec {
		n.lastSec = sec
		n.seq = randomStart()
	} else {
		n.seq = (n.seq + 1) % 1000
	}
	return fmt.Sprintf("RCP-%d-%03d", sec, n.seq)
}

func randomStart() int64 {
	v, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return time.Now().UnixNano() % 1000
	}
	return v.Int64()
}

func BookingReferencePrefix(year int) string {
	return fmt.Sprintf("WB-%d-", year)
}

// BookingReference formats the user-facing booking reference, e.g. WB-2026-007.
func BookingReference(year, seq int) string {
	return fmt.Sprintf("%s%03d", BookingReferencePrefix(year), seq)
}

// Snapshot builds the immutable receipt for p using b's running totals after p
// was applied. It has no side effects.
func Snapshot(p *models.Payment, b *models.Booking, number string, issuedAt time.Time) *models.Receipt {
	return &models.Receipt{
		Number:           number,
		PaymentID:        p.ID,
		BookingID:        b.ID,
		BookingReference: b.Reference,
		PaymentType:      p.Type,
		Amount:           p.Amount,
		Currency:         p.Currency,
		TotalPaid:        b.TotalPaid,
		RemainingBalance: b.RemainingBalance,
		IssuedAt:         issuedAt,
	}
}
