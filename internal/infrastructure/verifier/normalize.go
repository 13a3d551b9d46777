package verifier

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/kirillkom/docverify/internal/core/domain"
)

// DefaultConfidencePlaceholder is substituted when the backend omits a score.
const DefaultConfidencePlaceholder = 0.5

// percentScaleFloor separates percentage scores from unit scores that
// overshoot 1 slightly.
const percentScaleFloor = 1.5

var wrapperKeys = []string{"extractedData", "extracted_data", "extractionResult", "extraction_result"}

var validStatuses = map[string]struct{}{
	"COMPLETED": {},
	"COMPLETE":  {},
	"VALID":     {},
	"VALIDATED": {},
	"VERIFIED":  {},
	"SUCCESS":   {},
}

var (
	documentTypeKeys      = []string{"documentType", "document_type", "pieceType", "piece_type"}
	documentNumberKeys    = []string{"documentNumber", "document_number"}
	holderNameKeys        = []string{"holderName", "holder_name", "fullName", "full_name"}
	dateOfBirthKeys       = []string{"dateOfBirth", "date_of_birth", "birthDate", "birth_date"}
	issueDateKeys         = []string{"issueDate", "issue_date", "dateOfIssue", "date_of_issue"}
	expirationDateKeys    = []string{"expirationDate", "expiration_date", "expiryDate", "expiry_date"}
	isValidKeys           = []string{"isValid", "is_valid", "valid"}
	validationMessageKeys = []string{"validationMessage", "validation_message"}
	confidenceKeys        = []string{"confidenceScore", "confidence_score", "confidence"}
	uncertaintyKeys       = []string{"hasUncertainty", "has_uncertainty"}
	additionalFieldsKeys  = []string{"additionalFields", "additional_fields"}
	rawTextKeys           = []string{"rawExtractedText", "raw_extracted_text", "rawText", "raw_text"}
	documentIDKeys        = []string{"document_id", "documentId"}
	statusKeys            = []string{"status"}
)

// ConfidenceObserver is told every time a placeholder score is used.
type ConfidenceObserver interface {
	ObserveConfidenceDefaulted()
}

// Normalizer maps the backend payload onto domain.ExtractionResult. It
// tolerates missing fields and mixed naming; only a payload that is not a
// JSON object is rejected.
type Normalizer struct {
	placeholder float64
	observer    ConfidenceObserver
}

func NewNormalizer(placeholder float64, observer ConfidenceObserver) *Normalizer {
	if math.IsNaN(placeholder) || placeholder < 0 || placeholder > 1 {
		placeholder = DefaultConfidencePlaceholder
	}
	return &Normalizer{placeholder: placeholder, observer: observer}
}

type payloadView struct {
	nested map[string]any
	top    map[string]any
}

// lookup returns the first present value: nested wrapper first, then top level.
func (v payloadView) lookup(keys []string) (any, bool) {
	for _, scope := range []map[string]any{v.nested, v.top} {
		if scope == nil {
			continue
		}
		for _, key := range keys {
			if value, ok := scope[key]; ok && value != nil {
				return value, true
			}
		}
	}
	return nil, false
}

func (v payloadView) str(keys []string) string {
	value, ok := v.lookup(keys)
	if !ok {
		return ""
	}
	return asString(value)
}

func (n *Normalizer) Normalize(raw []byte) (domain.NormalizedResponse, error) {
	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil {
		return domain.NormalizedResponse{}, domain.WrapError(domain.ErrMalformedResponse, "normalize response", err)
	}
	if top == nil {
		return domain.NormalizedResponse{}, domain.WrapError(domain.ErrMalformedResponse, "normalize response", fmt.Errorf("payload is not an object"))
	}

	view := payloadView{top: top}
	for _, key := range wrapperKeys {
		if nested, ok := top[key].(map[string]any); ok {
			view.nested = nested
			break
		}
	}

	status := strings.TrimSpace(view.str(statusKeys))
	result := domain.ExtractionResult{
		DocumentType:      view.str(documentTypeKeys),
		DocumentNumber:    view.str(documentNumberKeys),
		HolderName:        view.str(holderNameKeys),
		DateOfBirth:       view.str(dateOfBirthKeys),
		IssueDate:         view.str(issueDateKeys),
		ExpirationDate:    view.str(expirationDateKeys),
		ValidationMessage: view.str(validationMessageKeys),
		RawExtractedText:  view.str(rawTextKeys),
		AdditionalFields:  map[string]string{},
	}

	explicit := false
	if value, ok := view.lookup(isValidKeys); ok {
		result.IsValid, explicit = asBool(value)
	}
	if !explicit {
		_, result.IsValid = validStatuses[strings.ToUpper(status)]
	}

	if value, ok := view.lookup(uncertaintyKeys); ok {
		result.HasUncertainty, _ = asBool(value)
	}

	if value, ok := view.lookup(additionalFieldsKeys); ok {
		if fields, ok := value.(map[string]any); ok {
			for key, item := range fields {
				result.AdditionalFields[key] = asString(item)
			}
		}
	}

	score, measured := n.confidence(view)
	result.ConfidenceScore = score
	result.ConfidenceEstimated = !measured
	if !measured {
		slog.Warn("confidence_defaulted", "placeholder", n.placeholder, "document_type", result.DocumentType)
		if n.observer != nil {
			n.observer.ObserveConfidenceDefaulted()
		}
	}

	return domain.NormalizedResponse{
		Result:        result,
		DocumentID:    strings.TrimSpace(view.str(documentIDKeys)),
		BackendStatus: status,
	}, nil
}

func (n *Normalizer) confidence(view payloadView) (float64, bool) {
	value, ok := view.lookup(confidenceKeys)
	if !ok {
		return n.placeholder, false
	}
	score, ok := asFloat(value)
	if !ok || math.IsNaN(score) || math.IsInf(score, 0) {
		return n.placeholder, false
	}
	if score > percentScaleFloor && score <= 100 {
		score /= 100
	}
	return math.Max(0, math.Min(1, score)), true
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

func asBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		return parsed, err == nil
	case float64:
		return v != 0, true
	default:
		return false, false
	}
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}
