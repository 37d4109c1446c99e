package store

// Run is one persisted digest run.
type Run struct {
	ID           string
	CreatedAt    string // RFC 3339, UTC
	QualityScore float64
	Completeness int
	Degraded     bool
	Published    bool
	PublishNote  *string
	DurationMs   int64
	TokenCount   int
	CostUSD      float64
	ErrorCount   int
	RetryCount   int
}

// Section is one persisted per-domain outcome. Payload holds the typed
// payload as opaque JSON.
type Section struct {
	RunID          string
	Domain         string
	Status         string
	Source         *string
	FetchedAt      *string
	Narrative      *string
	Error          *string
	Payload        *string
	FetchAttempts  int
	ReasonAttempts int
	DurationMs     int64
}

// Issue is one persisted validation finding.
type Issue struct {
	ID       int64
	RunID    string
	Domain   string
	Rule     string
	Severity string
	Message  string
}

// Stats aggregates the run history for the status command.
type Stats struct {
	TotalRuns     int
	PublishedRuns int
	DegradedRuns  int
	RejectedRuns  int
	TotalTokens   int
	TotalCostUSD  float64
	AvgQuality    float64
}
