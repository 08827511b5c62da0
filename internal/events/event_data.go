package events

// RepriceItemData is published for every item a repricing batch settles.
type RepriceItemData struct {
	BatchID  string  `json:"batch_id"`
	ItemID   int64   `json:"item_id"`
	State    string  `json:"state"`
	OldPrice float64 `json:"old_price,omitempty"`
	NewPrice float64 `json:"new_price,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// RepriceDoneData summarizes a finished batch.
type RepriceDoneData struct {
	BatchID   string         `json:"batch_id"`
	Counts    map[string]int `json:"counts"`
	DryRun    bool           `json:"dry_run"`
	Cancelled bool           `json:"cancelled"`
}

// ReconcileDoneData summarizes a reconciliation pass.
type ReconcileDoneData struct {
	RunID         string `json:"run_id"`
	Candidates    int    `json:"candidates"`
	Opportunities int    `json:"opportunities"`
}

// ForecastRunData is published when a forecast run has been stored.
type ForecastRunData struct {
	RunID     string `json:"run_id"`
	Level     string `json:"level"`
	Horizon   string `json:"horizon"`
	Forecasts int    `json:"forecasts"`
}

// AccuracyScoredData reports how many elapsed forecasts were scored.
type AccuracyScoredData struct {
	Scored int      `json:"scored"`
	RunIDs []string `json:"run_ids,omitempty"`
}

// MarketRefreshData reports a refresh pass or an observation import.
type MarketRefreshData struct {
	Items        int `json:"items,omitempty"`
	Observations int `json:"observations"`
	Stale        int `json:"stale,omitempty"`
	Failed       int `json:"failed,omitempty"`
}

// WorkData describes a background work item transition.
type WorkData struct {
	WorkID     string         `json:"work_id"`
	WorkType   string         `json:"work_type"`
	Subject    string         `json:"subject,omitempty"`
	Phase      string         `json:"phase,omitempty"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	Current    int            `json:"current,omitempty"`
	Total      int            `json:"total,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Retries    int            `json:"retries,omitempty"`
}

// SystemStatusData is published when database health changes.
type SystemStatusData struct {
	Healthy bool     `json:"healthy"`
	Failing []string `json:"failing,omitempty"`
}
