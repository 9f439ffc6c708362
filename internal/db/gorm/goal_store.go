package gorm

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/thebtf/goalmatch/pkg/models"
)

// ErrRecipientNotFound signals that the recipient itself does not exist, as
// opposed to an existing recipient with no eligible goals (which returns an
// empty slice and no error).
var ErrRecipientNotFound = errors.New("recipient not found")

// GoalStore reads goals and templates for the matching engine.
type GoalStore struct {
	db *gorm.DB
}

// NewGoalStore creates a goal store.
func NewGoalStore(store *Store) *GoalStore {
	return &GoalStore{db: store.DB}
}

// goalRow is the flat projection the read queries scan into.
type goalRow struct {
	Name        string
	ID          int64
	GrantID     int64
	RecipientID int64
}

// FetchGoals returns the recipient's goals with non-blank names, in id
// order. Returns ErrRecipientNotFound when the recipient does not exist.
func (s *GoalStore) FetchGoals(ctx context.Context, recipientID int64) ([]models.Goal, error) {
	var rows []goalRow
	err := s.db.WithContext(ctx).
		Table("goals").
		Select(`goals.id, goals.name, goals.grant_id`).
		Joins("JOIN grants ON goals.grant_id = grants.id").
		Where("grants.recipient_id = ?", recipientID).
		Where("NULLIF(TRIM(goals.name), '') IS NOT NULL").
		Order("goals.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&Recipient{}).Where("id = ?", recipientID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, ErrRecipientNotFound
		}
		return []models.Goal{}, nil
	}

	goals := make([]models.Goal, len(rows))
	for i, r := range rows {
		goals[i] = models.Goal{ID: r.ID, Name: r.Name, GrantID: r.GrantID}
	}
	return goals, nil
}

// FetchCuratedTemplates returns curated goal templates as template-flagged
// goals. Templates carry no grant.
func (s *GoalStore) FetchCuratedTemplates(ctx context.Context) ([]models.Goal, error) {
	var templates []GoalTemplate
	err := s.db.WithContext(ctx).
		Where("creation_method = ?", CreationMethodCurated).
		Where("NULLIF(TRIM(template_name), '') IS NOT NULL").
		Order("id").
		Find(&templates).Error
	if err != nil {
		return nil, err
	}

	goals := make([]models.Goal, len(templates))
	for i, t := range templates {
		goals[i] = models.Goal{ID: t.ID, Name: t.TemplateName, IsTemplate: true}
	}
	return goals, nil
}

// RecipientGoals is one recipient's eligible goal set, used by the cache
// sweep.
type RecipientGoals struct {
	Goals       []models.Goal
	RecipientID int64
}

// FetchAllRecipientGoals returns every recipient's eligible goals, grouped
// by recipient and ordered by recipient id then goal id. Recipients with no
// eligible goals are omitted.
func (s *GoalStore) FetchAllRecipientGoals(ctx context.Context) ([]RecipientGoals, error) {
	var rows []goalRow
	err := s.db.WithContext(ctx).
		Table("goals").
		Select(`goals.id, goals.name, goals.grant_id, grants.recipient_id`).
		Joins("JOIN grants ON goals.grant_id = grants.id").
		Where("NULLIF(TRIM(goals.name), '') IS NOT NULL").
		Order("grants.recipient_id, goals.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var out []RecipientGoals
	for _, r := range rows {
		goal := models.Goal{ID: r.ID, Name: r.Name, GrantID: r.GrantID}
		if n := len(out); n > 0 && out[n-1].RecipientID == r.RecipientID {
			out[n-1].Goals = append(out[n-1].Goals, goal)
		} else {
			out = append(out, RecipientGoals{RecipientID: r.RecipientID, Goals: []models.Goal{goal}})
		}
	}
	return out, nil
}
