package types

// StatusData represents the inner payload
type StatusData struct {
	Bucket     string `json:"bucket"`
	Key        string `json:"key"`
	OutputKey  string `json:"outputKey,omitempty"`
	StatusCode int    `json:"statusCode"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// StatusMessage represents the full message envelope
type StatusMessage struct {
	Pattern string     `json:"pattern"`
	Data    StatusData `json:"data"`
}

const PROCESSED = "PROCESSED"
const SKIPPED = "SKIPPED"
const REJECTED = "REJECTED"
const FAILED = "FAILED"
