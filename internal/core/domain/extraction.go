package domain

// ExtractionResult is the canonical shape every consumer reads, whatever the
// backend payload looked like.
type ExtractionResult struct {
	DocumentType      string  `json:"documentType"`
	DocumentNumber    string  `json:"documentNumber"`
	HolderName        string  `json:"holderName"`
	DateOfBirth       string  `json:"dateOfBirth"`
	IssueDate         string  `json:"issueDate"`
	ExpirationDate    string  `json:"expirationDate"`
	IsValid           bool    `json:"isValid"`
	ValidationMessage string  `json:"validationMessage"`
	ConfidenceScore   float64 `json:"confidenceScore"`
	// ConfidenceEstimated is true when the backend omitted the score and a
	// placeholder was substituted.
	ConfidenceEstimated bool              `json:"confidenceEstimated"`
	HasUncertainty      bool              `json:"hasUncertainty"`
	AdditionalFields    map[string]string `json:"additionalFields"`
	RawExtractedText    string            `json:"rawExtractedText"`
}

type NormalizedResponse struct {
	Result        ExtractionResult
	DocumentID    string
	BackendStatus string
}
