package domain

import (
	"math"
	"strings"
	"time"
)

type VerificationStatus string

const (
	StatusConfirmed  VerificationStatus = "confirmed"
	StatusExpired    VerificationStatus = "expired"
	StatusUnclear    VerificationStatus = "unclear"
	StatusUnreadable VerificationStatus = "unreadable"
	StatusInvalid    VerificationStatus = "invalid"
)

const (
	UnreadableBelow = 0.2
	ConfirmedFrom   = 0.6
)

var expirationLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
	"02.01.2006",
	"02-01-2006",
	"2006/01/02",
}

// ClassifyStatus derives the coarse verification status. A measured score
// always wins over the validity and expiration fields.
func ClassifyStatus(result ExtractionResult, now time.Time) VerificationStatus {
	score := result.ConfidenceScore
	if !result.ConfidenceEstimated && !math.IsNaN(score) {
		switch {
		case score < UnreadableBelow:
			return StatusUnreadable
		case score < ConfirmedFrom:
			return StatusUnclear
		default:
			return StatusConfirmed
		}
	}

	if result.IsValid {
		return StatusConfirmed
	}
	if expiry, ok := ParseDocumentDate(result.ExpirationDate); ok && expiry.Before(now) {
		return StatusExpired
	}
	return StatusInvalid
}

// ParseDocumentDate accepts the date layouts seen on identity documents.
func ParseDocumentDate(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
