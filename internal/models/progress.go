package models

// Progress is one aggregate progress update of a query run.
type Progress struct {
	ServerIndex int     // Position of the server in the checked sequence
	ServerCount int     // Number of checked servers
	Server      string  // Server name; empty for the final update
	Percent     float64 // Raw per-server percent, 0-100
	Value       float64 // Aggregate percent, 0-100
	Label       string  // Text reported by the query operation
}
