package jobs

import (
	"context"
	"time"
)

// OnTransactionCreated submits the side effects of a new transaction: a notification
// and a recompute of the summary for the month the transaction happened in.
// A zero at means now. The returned ids are in submission order.
func OnTransactionCreated(ctx context.Context, s Submitter, userID, txID int64, at time.Time) ([]string, error) {
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	notifyID, err := s.Submit(ctx, KindNotifyTransaction, NotifyTransactionPayload{UserID: userID, TransactionID: txID})
	if err != nil {
		return nil, err
	}
	summaryID, err := s.Submit(ctx, KindSummarizeMonth, SummarizeMonthPayload{UserID: userID, Month: int(at.Month()), Year: at.Year()})
	if err != nil {
		return []string{notifyID}, err
	}
	return []string{notifyID, summaryID}, nil
}
