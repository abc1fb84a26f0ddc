package models

// Envelope is the uniform success/data/error result wrapper every scraper
// adapter speaks.
type Envelope struct {
	Success      bool                   `json:"success"`
	Data         map[string]interface{} `json:"data,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}
