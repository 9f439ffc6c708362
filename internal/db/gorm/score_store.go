package gorm

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// pgUniqueViolation is the Postgres error code for unique constraint
// violations.
const pgUniqueViolation = "23505"

// ScoreStore persists cached similarity scores.
type ScoreStore struct {
	db *gorm.DB
}

// NewScoreStore creates a score store.
func NewScoreStore(store *Store) *ScoreStore {
	return &ScoreStore{db: store.DB}
}

// InsertScoreIfAbsent inserts a similarity score for an unordered goal pair
// unless a row for that pair already exists. The pair is normalized to
// goal1 < goal2 before the check, so both orderings hit the same row. An
// existing score is never overwritten. Returns true when a new row was
// inserted.
//
// The check and insert run in one transaction; a concurrent insert losing
// the race surfaces as a unique violation on idx_sim_scores_pair and is
// treated as the row-already-exists case.
func (s *ScoreStore) InsertScoreIfAbsent(ctx context.Context, recipientID, goal1ID, goal2ID int64, score float64, now time.Time) (bool, error) {
	if goal1ID > goal2ID {
		goal1ID, goal2ID = goal2ID, goal1ID
	}

	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&SimScoreGoalCache{}).
			Where("recipient_id = ? AND goal1_id = ? AND goal2_id = ?", recipientID, goal1ID, goal2ID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		row := &SimScoreGoalCache{
			RecipientID: recipientID,
			Goal1ID:     goal1ID,
			Goal2ID:     goal2ID,
			Score:       score,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return false, nil
		}
		return false, err
	}
	return inserted, nil
}

// CountScores returns how many pairs are cached for a recipient.
func (s *ScoreStore) CountScores(ctx context.Context, recipientID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&SimScoreGoalCache{}).
		Where("recipient_id = ?", recipientID).
		Count(&count).Error
	return count, err
}
