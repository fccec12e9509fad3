package model

import (
	"time"

	"gorm.io/datatypes"
)

// Players and settings

type Player struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:64;uniqueIndex;not null"`
	CreatedAt time.Time
}

type Setting struct {
	Name      string         `gorm:"primaryKey;size:64"`
	ValueJSON datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

// Sessions and their records

type MatchSet struct {
	ID          int64          `gorm:"primaryKey;autoIncrement"`
	Date        time.Time      `gorm:"index;not null"`
	PlayersJSON datatypes.JSON `gorm:"not null"` // four names in seat order
	RulesJSON   datatypes.JSON `gorm:"not null"` // engine.Rules snapshot
	Rate        float64        `gorm:"default:0"`
	Locked      bool           `gorm:"default:false;not null"`
	LeagueID    *int64         `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Matches  []Match   `gorm:"foreignKey:MatchSetID"`
	Expenses []Expense `gorm:"foreignKey:MatchSetID"`
}

type Match struct {
	ID           int64          `gorm:"primaryKey;autoIncrement"`
	MatchSetID   int64          `gorm:"index;not null"`
	Mode         string         `gorm:"size:16;not null"` // raw/direct
	OutcomesJSON datatypes.JSON `gorm:"not null"`         // []engine.Outcome in session seat order
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Expense struct {
	ID          int64          `gorm:"primaryKey;autoIncrement"`
	MatchSetID  int64          `gorm:"index;not null"`
	Note        string         `gorm:"size:128"`
	Payer       string         `gorm:"size:64;not null"`
	Amount      int64          `gorm:"not null"`
	TargetsJSON datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time
}

// Leagues

type League struct {
	ID          int64          `gorm:"primaryKey;autoIncrement"`
	Title       string         `gorm:"size:128;not null"`
	PlayersJSON datatypes.JSON `gorm:"not null"`
	RuleType    string         `gorm:"size:16;not null"` // count/period
	RuleCount   int
	RuleStart   *time.Time
	RuleEnd     *time.Time
	Status      string `gorm:"size:16;default:active;not null"` // active/completed
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// All lists every table for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Player{},
		&Setting{},
		&MatchSet{},
		&Match{},
		&Expense{},
		&League{},
	}
}
