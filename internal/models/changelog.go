package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// ChangeTrigger identifies what caused an enhancement revision.
type ChangeTrigger string

const (
	TriggerManual   ChangeTrigger = "manual"
	TriggerLearning ChangeTrigger = "learning"
	TriggerRollback ChangeTrigger = "rollback"
)

// EnhancementChange is one entry in a cluster's enhancement history.
// The watchdog walks this log to find the version immediately preceding
// the current one.
type EnhancementChange struct {
	ID           surrealmodels.RecordID `json:"id"`
	Cluster      surrealmodels.RecordID `json:"cluster"`
	PreviousText string                 `json:"previous_text"`
	NewText      string                 `json:"new_text"`
	Trigger      ChangeTrigger          `json:"trigger"`
	Confidence   float64                `json:"confidence"`
	CreatedAt    time.Time              `json:"created_at"`
}
