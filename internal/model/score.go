package model

import "time"

// Score is one accepted reaction. Rows are written once and never updated.
//
// swagger:model Score
type Score struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uint      `gorm:"index:idx_scores_user_mode_created,priority:1;not null" json:"userId"`
	SessionID  string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"sessionId"`
	Mode       GameMode  `gorm:"type:varchar(16);index:idx_scores_user_mode_created,priority:2;index:idx_scores_mode_run,priority:1;not null" json:"mode"`
	RunID      *string   `gorm:"type:varchar(64)" json:"runId,omitempty"`
	RunKey     string    `gorm:"type:varchar(64);index:idx_scores_mode_run,priority:2;not null" json:"-"`
	RunTotal   int       `gorm:"not null;default:1" json:"runTotal"`
	ReactionMs int       `gorm:"not null" json:"reactionMs"`
	CreatedAt  time.Time `gorm:"index:idx_scores_user_mode_created,priority:3" json:"createdAt"`
}

func (Score) TableName() string {
	return "scores"
}

// CompletedRun is a run whose attempt count reached its declared size.
type CompletedRun struct {
	UserID      uint      `json:"-"`
	RunKey      string    `json:"-"`
	Total       int       `json:"reaction_time"`
	Attempts    int       `json:"attempts"`
	CompletedAt time.Time `json:"created_at"`
}

// RunComplete reports whether the attempts of one run form a complete run.
// The largest declared size among the attempts is authoritative.
func RunComplete(attempts []Score) bool {
	if len(attempts) == 0 {
		return false
	}
	return len(attempts) == MaxDeclaredRunTotal(attempts)
}

func MaxDeclaredRunTotal(attempts []Score) int {
	max := 0
	for _, a := range attempts {
		if a.RunTotal > max {
			max = a.RunTotal
		}
	}
	return max
}

func RunScore(attempts []Score) int {
	total := 0
	for _, a := range attempts {
		total += a.ReactionMs
	}
	return total
}

// RankingEntry is one row of a dense-ranked leaderboard.
type RankingEntry struct {
	Rank     int    `json:"rank"`
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	BestTime int    `json:"best_time"`
	Attempts int    `json:"attempts"`
}

// Fastest summarizes the best completed run and the number of completed runs.
type Fastest struct {
	Fastest *int  `json:"fastest"`
	Runs    int64 `json:"attempts"`
}
