package merging

import (
	"sort"
	"time"
	"unicode/utf8"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// FieldMerger handles field-level merge logic
type FieldMerger struct {
	lengthTolerance float64
}

// NewFieldMerger creates a new FieldMerger. lengthTolerance is the fraction of the longer
// value within which two different text values are considered equally detailed.
func NewFieldMerger(lengthTolerance float64) *FieldMerger {
	return &FieldMerger{lengthTolerance: lengthTolerance}
}

// MergeText merges a scalar text field. The more detailed (longer) value wins; when both
// are about as long the existing value is kept and the field is reported unresolved.
func (m *FieldMerger) MergeText(existing, incoming string) (string, bool) {
	if isEmpty(existing) {
		return incoming, true
	}
	if isEmpty(incoming) {
		return existing, true
	}

	keyExisting := normalizers.ComparisonKey(existing)
	keyIncoming := normalizers.ComparisonKey(incoming)
	if keyExisting == keyIncoming {
		return existing, true
	}

	lenExisting := utf8.RuneCountInString(keyExisting)
	lenIncoming := utf8.RuneCountInString(keyIncoming)
	longer := max(lenExisting, lenIncoming)
	diff := lenExisting - lenIncoming
	if diff < 0 {
		diff = -diff
	}
	if float64(diff) <= m.lengthTolerance*float64(longer) {
		return existing, false
	}

	if lenIncoming > lenExisting {
		return incoming, true
	}
	return existing, true
}

// MergeEnum merges a field with no notion of "more detailed": different values never resolve
func (m *FieldMerger) MergeEnum(existing, incoming string) (string, bool) {
	if isEmpty(existing) {
		return incoming, true
	}
	if isEmpty(incoming) {
		return existing, true
	}
	if normalizers.ComparisonKey(existing) == normalizers.ComparisonKey(incoming) {
		return existing, true
	}
	return existing, false
}

// PreferExisting keeps the existing value unless it is empty
func (m *FieldMerger) PreferExisting(existing, incoming string) string {
	if isEmpty(existing) {
		return incoming
	}
	return existing
}

// Union merges two sets, canonicalizing each value and dropping duplicates
func (m *FieldMerger) Union(canonical normalizers.Normalizer, sets ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, set := range sets {
		for _, v := range set {
			v = canonical(v)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// MergeSteps merges step lists. Steps are never interleaved: below the confidence
// threshold the field is unresolved, otherwise the more complete list wins.
func (m *FieldMerger) MergeSteps(existing, incoming []models.Step, similarity, confidence float64) ([]models.Step, bool) {
	if len(existing) == 0 {
		return cloneSteps(incoming), true
	}
	if len(incoming) == 0 {
		return cloneSteps(existing), true
	}
	if similarity < confidence {
		return cloneSteps(existing), false
	}

	if len(incoming) > len(existing) {
		return cloneSteps(incoming), true
	}
	if len(incoming) == len(existing) && stepTextLength(incoming) > stepTextLength(existing) {
		return cloneSteps(incoming), true
	}
	return cloneSteps(existing), true
}

// Later returns the later of two timestamps
func (m *FieldMerger) Later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func stepTextLength(steps []models.Step) int {
	total := 0
	for _, s := range steps {
		total += utf8.RuneCountInString(s.Description) + utf8.RuneCountInString(s.TestData) + utf8.RuneCountInString(s.Expected)
	}
	return total
}

func cloneSteps(steps []models.Step) []models.Step {
	if len(steps) == 0 {
		return nil
	}
	out := make([]models.Step, len(steps))
	copy(out, steps)
	return out
}

func isEmpty(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
