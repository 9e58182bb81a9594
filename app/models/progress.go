package models

import "time"

// Progress artifacts accumulated while a subscription is active. They are
// cascade-deleted when the subscription is cancelled on any path; losing them
// is a deliberate, irreversible consequence of losing access.

// TopicProgress tracks a user's completion state for a single course topic.
type TopicProgress struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	TopicID     uint       `gorm:"not null;index" json:"topic_id"`
	Completed   bool       `gorm:"default:false" json:"completed"`
	CompletedAt *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// QuizResult stores a single quiz attempt outcome.
type QuizResult struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	QuizID    uint      `gorm:"not null;index" json:"quiz_id"`
	Score     int       `gorm:"default:0" json:"score"`
	MaxScore  int       `gorm:"default:0" json:"max_score"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// DashboardProgress holds per-user weekly aggregates shown on the dashboard.
type DashboardProgress struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;index" json:"user_id"`
	WeekStart      time.Time `gorm:"type:date;not null" json:"week_start"`
	TopicsComplete int       `gorm:"default:0" json:"topics_complete"`
	QuizzesTaken   int       `gorm:"default:0" json:"quizzes_taken"`
	MinutesLearned int       `gorm:"default:0" json:"minutes_learned"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
