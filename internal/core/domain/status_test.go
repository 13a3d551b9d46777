package domain

import (
	"math"
	"testing"
	"time"
)

func TestClassifyStatusByScore(t *testing.T) {
	now := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		score float64
		want  VerificationStatus
	}{
		{name: "very low", score: 0.05, want: StatusUnreadable},
		{name: "lower bound of unclear", score: 0.2, want: StatusUnclear},
		{name: "mid", score: 0.45, want: StatusUnclear},
		{name: "confirmed threshold", score: 0.6, want: StatusConfirmed},
		{name: "high", score: 0.95, want: StatusConfirmed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyStatus(ExtractionResult{ConfidenceScore: tc.score}, now)
			if got != tc.want {
				t.Fatalf("ClassifyStatus(score=%v) = %s, want %s", tc.score, got, tc.want)
			}
		})
	}
}

func TestClassifyStatusHighScoreOverridesExpiry(t *testing.T) {
	now := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	got := ClassifyStatus(ExtractionResult{
		ConfidenceScore: 0.95,
		ExpirationDate:  "2001-01-01",
		IsValid:         false,
	}, now)
	if got != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", got)
	}
}

func TestClassifyStatusFallsBackWhenScoreEstimated(t *testing.T) {
	now := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	valid := ClassifyStatus(ExtractionResult{ConfidenceScore: 0.5, ConfidenceEstimated: true, IsValid: true}, now)
	if valid != StatusConfirmed {
		t.Fatalf("expected confirmed for valid result, got %s", valid)
	}

	expired := ClassifyStatus(ExtractionResult{ConfidenceScore: 0.5, ConfidenceEstimated: true, ExpirationDate: "31/12/2020"}, now)
	if expired != StatusExpired {
		t.Fatalf("expected expired, got %s", expired)
	}

	invalid := ClassifyStatus(ExtractionResult{ConfidenceScore: math.NaN(), ExpirationDate: "2030-01-01"}, now)
	if invalid != StatusInvalid {
		t.Fatalf("expected invalid, got %s", invalid)
	}
}

func TestParseDocumentDateLayouts(t *testing.T) {
	for _, raw := range []string{"2024-03-01", "01/03/2024", "01.03.2024", "2024-03-01T00:00:00Z"} {
		got, ok := ParseDocumentDate(raw)
		if !ok {
			t.Fatalf("ParseDocumentDate(%q) failed", raw)
		}
		if got.Year() != 2024 || got.Month() != time.March || got.Day() != 1 {
			t.Fatalf("ParseDocumentDate(%q) = %v", raw, got)
		}
	}
	if _, ok := ParseDocumentDate("soon"); ok {
		t.Fatalf("expected unparseable date to be rejected")
	}
}
