package models

import (
	"time"

	"gorm.io/datatypes"
)

// Status-Werte eines Ingest-Laufs.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusCancelled = "cancelled"
	RunStatusFailed    = "failed"
)

// IngestRun protokolliert einen Batch-Lauf einer Quelle für ein Gen. Die
// Zeilen sind zugleich Audit-Log: Wiederholungen sind idempotent und legen
// einfach einen weiteren Lauf an.
type IngestRun struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RunID       string `json:"run_id" gorm:"uniqueIndex;not null"`
	Source      string `json:"source" gorm:"index"`
	Gene        string `json:"gene" gorm:"index"`
	GenomeBuild string `json:"genome_build,omitempty"`
	Status      string `json:"status" gorm:"index"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	RecordsTotal int `json:"records_total"`
	Created      int `json:"created"`
	Updated      int `json:"updated"`
	Skipped      int `json:"skipped"`
	Conflicts    int `json:"conflicts"`
	ErrorCount   int `json:"error_count"`

	// Fehler-Einträge des Laufs als JSON-Array (Kind, Grund, Record-Snapshot)
	Errors datatypes.JSON `json:"errors,omitempty" gorm:"type:jsonb"`
}

// TableName gibt explizit den Tabellennamen an.
func (IngestRun) TableName() string {
	return "ingest_runs"
}
