package normalizers

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmespath/go-jmespath"

	"github.com/Ramsey-B/clover/pkg/models"
)

// RawRecord is a candidate record in any external shape, as decoded from JSON or YAML
type RawRecord map[string]any

// Aliases maps a canonical field name to the raw keys it may arrive under, in priority order
type Aliases map[string][]string

// Canonical field names understood by the record normalizer
const (
	FieldID         = "id"
	FieldProjectID  = "project_id"
	FieldTitle      = "title"
	FieldCategory   = "category"
	FieldPriority   = "priority"
	FieldSteps      = "steps"
	FieldTestData   = "test_data"
	FieldExpected   = "expected"
	FieldRemarks    = "remarks"
	FieldOwner      = "owner"
	FieldTags       = "tags"
	FieldReferences = "references"
	FieldVersion    = "version"
	FieldCreatedAt  = "created_at"
	FieldUpdatedAt  = "updated_at"

	stepFieldDescription = "step.description"
	stepFieldTestData    = "step.test_data"
	stepFieldExpected    = "step.expected"
)

// DefaultAliases returns the alias table for the shapes produced by spreadsheet and JSON imports
// and by generated test cases.
func DefaultAliases() Aliases {
	return Aliases{
		FieldID:         {"id", "ID", "testCaseId", "test_case_id", "tcId"},
		FieldProjectID:  {"projectId", "project_id"},
		FieldTitle:      {"title", "testCase", "test_case", "testCaseTitle", "name", "summary"},
		FieldCategory:   {"category", "module", "section", "feature"},
		FieldPriority:   {"priority", "severity"},
		FieldSteps:      {"steps", "testSteps", "test_steps"},
		FieldTestData:   {"testData", "test_data", "data"},
		FieldExpected:   {"expected", "expectedResult", "expected_result"},
		FieldRemarks:    {"remarks", "notes", "comments", "description"},
		FieldOwner:      {"owner", "assignee", "author", "createdBy"},
		FieldTags:       {"tags", "labels"},
		FieldReferences: {"references", "refs", "ticketIds", "ticket_ids", "ticketId", "enhancementIds", "enhancement_ids", "enhancementId"},
		FieldVersion:    {"version"},
		FieldCreatedAt:  {"createdAt", "created_at"},
		FieldUpdatedAt:  {"updatedAt", "updated_at"},

		stepFieldDescription: {"description", "step", "action", "stepDescription"},
		stepFieldTestData:    {"testData", "test_data", "data"},
		stepFieldExpected:    {"expected", "expectedResult", "expected_result"},
	}
}

// RecordNormalizer maps raw records onto the canonical Record schema
type RecordNormalizer struct {
	first map[string]*jmespath.JMESPath
	// references collects every alias instead of the first one present
	references []*jmespath.JMESPath
}

// NewRecordNormalizer compiles an alias table into a record normalizer
func NewRecordNormalizer(aliases Aliases) (*RecordNormalizer, error) {
	n := &RecordNormalizer{first: make(map[string]*jmespath.JMESPath, len(aliases))}
	for field, keys := range aliases {
		if len(keys) == 0 {
			continue
		}
		if field == FieldReferences {
			for _, key := range keys {
				expr, err := jmespath.Compile(quote(key))
				if err != nil {
					return nil, fmt.Errorf("invalid alias %q for %s: %w", key, field, err)
				}
				n.references = append(n.references, expr)
			}
			continue
		}
		quoted := make([]string, len(keys))
		for i, key := range keys {
			quoted[i] = quote(key)
		}
		expr, err := jmespath.Compile(strings.Join(quoted, " || "))
		if err != nil {
			return nil, fmt.Errorf("invalid aliases for %s: %w", field, err)
		}
		n.first[field] = expr
	}
	return n, nil
}

var defaultNormalizer = mustDefault()

func mustDefault() *RecordNormalizer {
	n, err := NewRecordNormalizer(DefaultAliases())
	if err != nil {
		panic(err)
	}
	return n
}

// Normalize maps a raw record onto the canonical schema using the default aliases
func Normalize(raw RawRecord) models.Record {
	return defaultNormalizer.Normalize(raw)
}

// Normalize maps a raw record onto the canonical schema. It never fails: missing or
// unreadable fields become empty values. Identity and title are checked by the caller.
func (n *RecordNormalizer) Normalize(raw RawRecord) models.Record {
	data := map[string]any(raw)
	if data == nil {
		data = map[string]any{}
	}

	rec := models.Record{
		ID:         toString(n.lookup(FieldID, data)),
		ProjectID:  toString(n.lookup(FieldProjectID, data)),
		Title:      toString(n.lookup(FieldTitle, data)),
		Category:   toString(n.lookup(FieldCategory, data)),
		Priority:   models.Priority(toString(n.lookup(FieldPriority, data))),
		Remarks:    toString(n.lookup(FieldRemarks, data)),
		Owner:      toString(n.lookup(FieldOwner, data)),
		Tags:       toStringList(n.lookup(FieldTags, data)),
		Version:    toInt(n.lookup(FieldVersion, data)),
		CreatedAt:  toTime(n.lookup(FieldCreatedAt, data)),
		UpdatedAt:  toTime(n.lookup(FieldUpdatedAt, data)),
		Steps:      n.steps(data),
		References: n.collectReferences(data),
	}

	return NormalizeRecord(rec)
}

func (n *RecordNormalizer) lookup(field string, data any) any {
	expr, ok := n.first[field]
	if !ok {
		return nil
	}
	v, err := expr.Search(data)
	if err != nil {
		return nil
	}
	return v
}

func (n *RecordNormalizer) collectReferences(data map[string]any) []string {
	var out []string
	for _, expr := range n.references {
		v, err := expr.Search(data)
		if err != nil || v == nil {
			continue
		}
		out = append(out, toStringList(v)...)
	}
	return out
}

// steps accepts a list of step objects, a list of strings or a newline separated string.
// Flat test data and expected values attach to the last step.
func (n *RecordNormalizer) steps(data map[string]any) []models.Step {
	var steps []models.Step
	switch v := n.lookup(FieldSteps, data).(type) {
	case []any:
		for _, item := range v {
			switch s := item.(type) {
			case map[string]any:
				steps = append(steps, models.Step{
					Description: toString(n.lookup(stepFieldDescription, s)),
					TestData:    toString(n.lookup(stepFieldTestData, s)),
					Expected:    toString(n.lookup(stepFieldExpected, s)),
				})
			default:
				steps = append(steps, models.Step{Description: toString(s)})
			}
		}
	case []string:
		for _, s := range v {
			steps = append(steps, models.Step{Description: s})
		}
	case nil:
	default:
		for _, line := range splitLines(toString(v)) {
			steps = append(steps, models.Step{Description: line})
		}
	}

	testData := toString(n.lookup(FieldTestData, data))
	expected := toString(n.lookup(FieldExpected, data))
	if testData == "" && expected == "" {
		return steps
	}
	if len(steps) == 0 {
		steps = append(steps, models.Step{})
	}
	last := &steps[len(steps)-1]
	if last.TestData == "" {
		last.TestData = testData
	}
	if last.Expected == "" {
		last.Expected = expected
	}
	return steps
}

// NormalizeRecord canonicalizes the text of an already typed record. It is idempotent.
func NormalizeRecord(r models.Record) models.Record {
	out := r.Clone()
	out.ID = strings.TrimSpace(out.ID)
	out.ProjectID = strings.TrimSpace(out.ProjectID)
	out.Title = CollapseWhitespace(out.Title)
	out.Category = CollapseWhitespace(out.Category)
	out.Priority = NormalizePriority(string(out.Priority))
	out.Remarks = strings.TrimSpace(out.Remarks)
	out.Owner = CollapseWhitespace(out.Owner)
	out.Tags = CanonicalTags(out.Tags)
	out.References = canonicalSet(out.References, CollapseWhitespace)

	steps := make([]models.Step, 0, len(out.Steps))
	for _, s := range out.Steps {
		s.Description = CollapseWhitespace(s.Description)
		s.TestData = strings.TrimSpace(s.TestData)
		s.Expected = CollapseWhitespace(s.Expected)
		if s.Description == "" && s.TestData == "" && s.Expected == "" {
			continue
		}
		steps = append(steps, s)
	}
	if len(steps) == 0 {
		steps = nil
	}
	out.Steps = steps

	if len(out.Provenance.SourceIDs) > 0 {
		out.Provenance.SourceIDs = CanonicalSet(out.Provenance.SourceIDs)
	}
	return out
}

// CanonicalTags returns the deduplicated, sorted set of canonical tags
func CanonicalTags(tags []string) []string {
	return canonicalSet(tags, Tag)
}

// CanonicalSet trims, deduplicates and sorts a set of identifiers
func CanonicalSet(values []string) []string {
	return canonicalSet(values, strings.TrimSpace)
}

var priorityAliases = map[string]models.Priority{
	"critical": models.PriorityCritical,
	"blocker":  models.PriorityCritical,
	"urgent":   models.PriorityCritical,
	"p0":       models.PriorityCritical,
	"high":     models.PriorityHigh,
	"major":    models.PriorityHigh,
	"p1":       models.PriorityHigh,
	"medium":   models.PriorityMedium,
	"normal":   models.PriorityMedium,
	"p2":       models.PriorityMedium,
	"low":      models.PriorityLow,
	"minor":    models.PriorityLow,
	"trivial":  models.PriorityLow,
	"p3":       models.PriorityLow,
}

// NormalizePriority maps priority spellings onto the priority enum. Unknown values become empty.
func NormalizePriority(s string) models.Priority {
	return priorityAliases[ComparisonKey(s)]
}

func canonicalSet(in []string, fn Normalizer) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = fn(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func quote(key string) string {
	return strconv.Quote(key)
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := toString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return fmt.Sprint(t)
	}
}

// toStringList accepts a list or a comma separated string
func toStringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, toString(item))
		}
		return out
	case []string:
		return t
	default:
		return strings.Split(toString(t), ",")
	}
}

func toInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}
