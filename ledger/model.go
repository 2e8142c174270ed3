// Package ledger implements the append-only event store of spec §4.3: an
// embedded relational store in WAL mode, a single-writer asynchronous
// ingest worker, and synchronous read-path queries. Grounded on the
// teacher's internal/database/pool.go (GORM pool/transaction wrapper) and
// internal/migration/migrator.go (embedded-fs schema migration).
package ledger

import "github.com/harrowgate/llmgate/types"

// eventRow is the GORM model for the events table (spec §6). Column names
// and types follow the schema table verbatim.
type eventRow struct {
	EventID       string  `gorm:"column:event_id;primaryKey"`
	TraceID       string  `gorm:"column:trace_id;index"`
	EventType     string  `gorm:"column:event_type"`
	Provider      string  `gorm:"column:provider"`
	Model         string  `gorm:"column:model"`
	UsageJSON     string  `gorm:"column:usage_json"`
	CostEstUSD    *float64 `gorm:"column:cost_est_usd"`
	CostActualUSD *float64 `gorm:"column:cost_actual_usd"`
	Status        string  `gorm:"column:status"`
	TimingJSON    string  `gorm:"column:timing_json"`
	MetadataJSON  string  `gorm:"column:metadata_json"`
	Timestamp     float64 `gorm:"column:timestamp;index"`
}

func (eventRow) TableName() string { return "events" }

func toRow(e types.LedgerEvent) eventRow {
	return eventRow{
		EventID:       e.EventID,
		TraceID:       e.TraceID,
		EventType:     string(e.EventType),
		Provider:      e.Provider,
		Model:         e.Model,
		UsageJSON:     e.UsageJSON,
		CostEstUSD:    e.CostEstUSD,
		CostActualUSD: e.CostActualUSD,
		Status:        string(e.Status),
		TimingJSON:    e.TimingJSON,
		MetadataJSON:  e.MetadataJSON,
		Timestamp:     e.Timestamp,
	}
}
