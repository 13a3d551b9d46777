package domain

import (
	"strings"
	"time"
)

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEPDF  = "application/pdf"

	// MaxCombinedBytes is the absolute ceiling for front+back after compression.
	MaxCombinedBytes int64 = 10 << 20
	// DefaultTargetBytes is the per-side budget handed to the compression planner.
	DefaultTargetBytes int64 = 5 << 20
)

type DocumentKind string

const (
	KindUnspecified   DocumentKind = ""
	KindPassport      DocumentKind = "PASSPORT"
	KindNationalID    DocumentKind = "CNI"
	KindDriverLicense DocumentKind = "DRIVER_LICENSE"
)

// ParseDocumentKind maps user-facing labels onto the backend enum. Unknown
// labels are forwarded upper-cased.
func ParseDocumentKind(raw string) DocumentKind {
	value := strings.TrimSpace(raw)
	if value == "" {
		return KindUnspecified
	}
	lower := strings.ToLower(value)
	switch {
	case strings.Contains(lower, "passeport"), strings.Contains(lower, "passport"):
		return KindPassport
	case strings.Contains(lower, "cni"), strings.Contains(lower, "carte"):
		return KindNationalID
	case strings.Contains(lower, "permis"), strings.Contains(lower, "driver"):
		return KindDriverLicense
	default:
		return DocumentKind(strings.ToUpper(value))
	}
}

// SourceImage is a caller-owned upload as received. Width and Height are zero
// until the image has been decoded.
type SourceImage struct {
	Filename string
	MIMEType string
	Data     []byte
	Width    int
	Height   int
}

func (s SourceImage) Size() int64 {
	return int64(len(s.Data))
}

// IsRaster reports whether the declared type is transcodable.
func (s SourceImage) IsRaster() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s.MIMEType)), "image/")
}

type Enhancement struct {
	Contrast   float64
	Brightness float64
	Saturation float64
}

type CompressionPass struct {
	MaxDimension int
	Quality      float64
	Enhancement  Enhancement
}

type CompressionResult struct {
	Filename  string
	Format    string
	Data      []byte
	PassIndex int
	Width     int
	Height    int
	// Transcoded is false for pass-through and fallback results.
	Transcoded bool
	// Fallback is set when decoding failed and the original bytes are kept.
	Fallback bool
}

func (r *CompressionResult) Size() int64 {
	if r == nil {
		return 0
	}
	return int64(len(r.Data))
}

// SessionContext carries the caller identity explicitly into a submission.
type SessionContext struct {
	SubjectID   string
	BearerToken string
}

type SubmissionRequest struct {
	Front        *CompressionResult
	Back         *CompressionResult
	DeclaredKind DocumentKind
	Session      SessionContext
}

func (r SubmissionRequest) CombinedSize() int64 {
	return r.Front.Size() + r.Back.Size()
}

type NetworkAdvice struct {
	Advisable     bool   `json:"advisable"`
	Online        bool   `json:"online"`
	EffectiveType string `json:"effective_type,omitempty"`
	SlowLink      bool   `json:"slow_link"`
	Reason        string `json:"reason,omitempty"`
}

// Verification is the outcome of one successful submission.
type Verification struct {
	DocumentID  string             `json:"document_id"`
	Status      VerificationStatus `json:"status"`
	Result      ExtractionResult   `json:"result"`
	Network     NetworkAdvice      `json:"network"`
	Retries     int                `json:"retries"`
	SubmittedAt time.Time          `json:"submitted_at"`
}

type SubmissionState string

const (
	SubmissionQueued     SubmissionState = "queued"
	SubmissionProcessing SubmissionState = "processing"
	SubmissionCompleted  SubmissionState = "completed"
	SubmissionFailed     SubmissionState = "failed"
)

// Submission is the persisted record of an asynchronous verification.
type Submission struct {
	ID           string             `json:"id"`
	SubjectID    string             `json:"subject_id"`
	DeclaredKind DocumentKind       `json:"declared_kind,omitempty"`
	FrontKey     string             `json:"-"`
	FrontName    string             `json:"front_filename"`
	FrontMIME    string             `json:"front_mime_type"`
	BackKey      string             `json:"-"`
	BackName     string             `json:"back_filename,omitempty"`
	BackMIME     string             `json:"back_mime_type,omitempty"`
	State        SubmissionState    `json:"state"`
	Error        string             `json:"error,omitempty"`
	DocumentID   string             `json:"document_id,omitempty"`
	Status       VerificationStatus `json:"status,omitempty"`
	Result       *ExtractionResult  `json:"result,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}
