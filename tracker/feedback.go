package tracker

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownLog is returned when feedback references a log id that was
// never inserted. Nothing is written in that case.
var ErrUnknownLog = errors.New("tracker: unknown log id")

// SaveFeedback validates that logID references an existing record, then
// appends a feedback row and returns its id. A pure write path: no derived
// computation happens here.
func SaveFeedback(ctx context.Context, s *Store, logID int64, isGood bool, comments, referenceAnswer string) (int64, error) {
	ok, err := s.HasLog(ctx, logID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownLog, logID)
	}
	return s.InsertFeedback(ctx, &Feedback{
		LogID:           logID,
		IsGood:          isGood,
		Comments:        comments,
		ReferenceAnswer: referenceAnswer,
	})
}
