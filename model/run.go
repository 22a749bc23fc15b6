package model

// RunRecord is the retained summary of a finished run. Data points are not
// kept; the CSV export holds the full series when requested.
type RunRecord struct {
	ID         string            `json:"simulation_id"`
	CreatedAt  Timestamp         `json:"created_at"`
	Request    SimulationRequest `json:"request"`
	Status     RunStatus         `json:"status"`
	Message    string            `json:"message"`
	Statistics *Statistics       `json:"statistics,omitempty"`
	CSVURL     *string           `json:"csv_url"`
	Error      string            `json:"error,omitempty"`
}
