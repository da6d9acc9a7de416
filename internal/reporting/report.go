// Package reporting summarizes the payments of one owner from their message logs.
package reporting

import (
	"sort"
	"time"

	"github.com/yourorg/payment-lifecycle/internal/payment"
)

// OwnerReport summarizes an owner's payments.
type OwnerReport struct {
	OwnerID       string
	TotalPayments int
	// StatusCounts counts payments by current status.
	StatusCounts map[payment.Status]int
	// AmountByCurrency sums payment amounts per currency and current status.
	AmountByCurrency map[string]map[payment.Status]int64
	// OperationOutcomes counts per operation the messages that ended an
	// attempt: Success, Failure, Error, NotificationSuccess, NotificationFailure.
	OperationOutcomes map[payment.Operation]map[payment.MessageKind]int
	// ErrorBreakdown counts Error and Failure message texts.
	ErrorBreakdown map[string]int
	// AwaitingNotification lists payments in a pending status, oldest update first.
	AwaitingNotification []string
	DateFrom             time.Time
	DateTo               time.Time
}

var outcomeKinds = map[payment.MessageKind]bool{
	payment.KindSuccess:             true,
	payment.KindFailure:             true,
	payment.KindError:               true,
	payment.KindNotificationSuccess: true,
	payment.KindNotificationFailure: true,
}

// Reporter generates owner reports.
type Reporter struct{}

// NewReporter creates a new Reporter.
func NewReporter() *Reporter {
	return &Reporter{}
}

// Generate builds the report of ownerID from recs. Records of other owners are ignored.
// DateFrom and DateTo span the messages of the included records.
func (r *Reporter) Generate(ownerID string, recs []*payment.Record) *OwnerReport {
	report := &OwnerReport{
		OwnerID:           ownerID,
		StatusCounts:      make(map[payment.Status]int),
		AmountByCurrency:  make(map[string]map[payment.Status]int64),
		OperationOutcomes: make(map[payment.Operation]map[payment.MessageKind]int),
		ErrorBreakdown:    make(map[string]int),
	}

	var pending []*payment.Record
	for _, rec := range recs {
		if rec.OwnerID != ownerID {
			continue
		}
		report.TotalPayments++
		report.StatusCounts[rec.Status]++

		byStatus, ok := report.AmountByCurrency[rec.Currency]
		if !ok {
			byStatus = make(map[payment.Status]int64)
			report.AmountByCurrency[rec.Currency] = byStatus
		}
		byStatus[rec.Status] += rec.Amount

		if isPending(rec.Status) {
			pending = append(pending, rec)
		}

		for _, m := range rec.Messages {
			report.observe(m.CreatedAt)
			if outcomeKinds[m.Kind] && m.Operation != "" {
				counts, ok := report.OperationOutcomes[m.Operation]
				if !ok {
					counts = make(map[payment.MessageKind]int)
					report.OperationOutcomes[m.Operation] = counts
				}
				counts[m.Kind]++
			}
			if (m.Kind == payment.KindError || m.Kind == payment.KindFailure) && m.Text != "" {
				report.ErrorBreakdown[m.Text]++
			}
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].UpdatedAt.Before(pending[j].UpdatedAt)
	})
	for _, rec := range pending {
		report.AwaitingNotification = append(report.AwaitingNotification, rec.ID)
	}
	return report
}

func (r *OwnerReport) observe(at time.Time) {
	if at.IsZero() {
		return
	}
	if r.DateFrom.IsZero() || at.Before(r.DateFrom) {
		r.DateFrom = at
	}
	if at.After(r.DateTo) {
		r.DateTo = at
	}
}

func isPending(s payment.Status) bool {
	for _, op := range payment.Operations {
		if op.Triple().Pending == s {
			return true
		}
	}
	return false
}
