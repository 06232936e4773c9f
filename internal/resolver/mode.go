package resolver

// Mode selects whether resolver verdicts are persisted to the decision
// cache. Test mode writes; Run mode only reads (spec §4.4).
type Mode string

const (
	ModeTest Mode = "Test"
	ModeRun  Mode = "Run"
)
