package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// GenerationJobStatus captures background job lifecycle states.
type GenerationJobStatus string

const (
	GenerationJobStatusQueued     GenerationJobStatus = "QUEUED"
	GenerationJobStatusProcessing GenerationJobStatus = "PROCESSING"
	GenerationJobStatusFinished   GenerationJobStatus = "FINISHED"
	GenerationJobStatusFailed     GenerationJobStatus = "FAILED"
)

// GenerationJob is a persisted asynchronous generation run.
type GenerationJob struct {
	ID           string              `db:"id" json:"id"`
	TermID       string              `db:"term_id" json:"term_id"`
	Params       GenerationJobParams `db:"params" json:"params"`
	Status       GenerationJobStatus `db:"status" json:"status"`
	Progress     int                 `db:"progress" json:"progress"`
	Message      *string             `db:"message" json:"message,omitempty"`
	ResultID     *string             `db:"result_id" json:"result_id,omitempty"`
	ErrorMessage *string             `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time          `db:"finished_at" json:"finished_at,omitempty"`
}

// GenerationJobParams stores the generation request persisted as JSONB so a
// queued job survives restarts intact.
type GenerationJobParams struct {
	Request GenerationRequest `json:"request"`
}

// Value marshals params to JSON for persistence.
func (p GenerationJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal generation job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *GenerationJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = GenerationJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for GenerationJobParams", value)
	}
	if len(data) == 0 {
		*p = GenerationJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal generation job params: %w", err)
	}
	return nil
}
