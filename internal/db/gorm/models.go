// Package gorm provides GORM-based database operations for goalmatch.
package gorm

import "time"

// GORM Models

// Recipient is an organization whose goals are matched against each other.
type Recipient struct {
	Name      string `gorm:"type:text;not null"`
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Recipient) TableName() string { return "recipients" }

// Grant is the owning group a goal belongs to within a recipient.
type Grant struct {
	Number      string `gorm:"type:text;not null"`
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	RecipientID int64  `gorm:"index:idx_grants_recipient;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Grant) TableName() string { return "grants" }

// Goal is one free-text goal statement attached to a grant.
type Goal struct {
	Name      string `gorm:"type:text;not null"`
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	GrantID   int64  `gorm:"index:idx_goals_grant;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Goal) TableName() string { return "goals" }

// GoalTemplate is a shared template goal; curated templates optionally join
// the find-similar corpus.
type GoalTemplate struct {
	TemplateName   string `gorm:"type:text;not null"`
	CreationMethod string `gorm:"type:text;index:idx_goal_templates_method;not null"`
	Source         string `gorm:"type:text"`
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (GoalTemplate) TableName() string { return "goal_templates" }

// CreationMethodCurated marks templates eligible for the find-similar pool.
const CreationMethodCurated = "Curated"

// SimScoreGoalCache is one cached similarity score for an unordered goal
// pair within a recipient. Goal1ID < Goal2ID always; the unique index makes
// inserts idempotent and a cached score is never overwritten.
type SimScoreGoalCache struct {
	ID          int64   `gorm:"primaryKey;autoIncrement"`
	RecipientID int64   `gorm:"uniqueIndex:idx_sim_scores_pair,priority:1;not null"`
	Goal1ID     int64   `gorm:"uniqueIndex:idx_sim_scores_pair,priority:2;not null"`
	Goal2ID     int64   `gorm:"uniqueIndex:idx_sim_scores_pair,priority:3;not null"`
	Score       float64 `gorm:"type:double precision;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (SimScoreGoalCache) TableName() string { return "sim_score_goal_caches" }
