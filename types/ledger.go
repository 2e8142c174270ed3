package types

// LedgerEventType enumerates the lifecycle events a request writes.
type LedgerEventType string

const (
	EventPrecheckHold LedgerEventType = "precheck_hold"
	EventCommit       LedgerEventType = "commit"
	EventCancel       LedgerEventType = "cancel"
	EventAdjust       LedgerEventType = "adjust"
	EventRetryAttempt LedgerEventType = "retry_attempt"
)

// LedgerStatus is the terminal/intermediate status recorded on an event.
type LedgerStatus string

const (
	StatusOK          LedgerStatus = "ok"
	StatusError       LedgerStatus = "error"
	StatusCancelled   LedgerStatus = "cancelled"
	StatusRateLimited LedgerStatus = "rate_limited"
)

// LedgerEvent is the persisted unit, immutable once written.
type LedgerEvent struct {
	EventID        string          `json:"event_id"`
	TraceID        string          `json:"trace_id"`
	EventType      LedgerEventType `json:"event_type"`
	Provider       string          `json:"provider"`
	Model          string          `json:"model"`
	UsageJSON      string          `json:"usage_json"`
	CostEstUSD     *float64        `json:"cost_est_usd,omitempty"`
	CostActualUSD  *float64        `json:"cost_actual_usd,omitempty"`
	Status         LedgerStatus    `json:"status"`
	TimingJSON     string          `json:"timing_json"`
	MetadataJSON   string          `json:"metadata_json"`
	Timestamp      float64         `json:"timestamp"`

	// Sync, when true, requires the writer to signal Done once this event
	// is durably committed — the synchronization point for strict-budget
	// mode (spec §4.3). Neither field is persisted.
	Sync bool        `json:"-"`
	Done chan error  `json:"-"`
}

// DailySpend is the Daily-spend aggregate of spec §3.
type DailySpend struct {
	TotalUSD         float64
	OutstandingHolds int
}
