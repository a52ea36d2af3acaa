package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestTextNormalizers(t *testing.T) {
	tests := []struct {
		name       string
		normalizer string
		input      string
		expected   string
	}{
		{"collapse whitespace", "collapse_whitespace", "  Login \t with\n valid  ", "Login with valid"},
		{"casefold", "casefold", "LOGIN Page", "login page"},
		{"strip accents", "strip_accents", "Crème brûlée", "Creme brulee"},
		{"comparison key", "comparison_key", "  Crème  Brûlée: Test ", "creme brulee test"},
		{"comparison key keeps digits", "comparison_key", "Step 2 - Verify (OTP)", "step 2 verify otp"},
		{"tag", "tag", "  Smoke   Test ", "smoke test"},
		{"unknown normalizer is a no-op", "nope", "Keep Me", "Keep Me"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Apply(tt.input, tt.normalizer))
		})
	}
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "hello world", ApplyChain("  HELLO,   World! ", "remove_punctuation", "collapse_whitespace", "lowercase"))
}

func TestNormalize_Aliases(t *testing.T) {
	raw := RawRecord{
		"id":             float64(42),
		"testCase":       "  Login   with valid credentials ",
		"module":         "Auth",
		"priority":       "P1",
		"steps":          "Open the login page\n\n  Enter valid credentials  \n",
		"expectedResult": "Dashboard is shown",
		"labels":         "Smoke, smoke ,UI",
		"ticketId":       "JIRA-1",
		"enhancementIds": []any{"ENH-2", "JIRA-1"},
		"assignee":       "qa-team",
	}

	rec := Normalize(raw)

	assert.Equal(t, "42", rec.ID)
	assert.Equal(t, "Login with valid credentials", rec.Title)
	assert.Equal(t, "Auth", rec.Category)
	assert.Equal(t, models.PriorityHigh, rec.Priority)
	assert.Equal(t, "qa-team", rec.Owner)
	assert.Equal(t, []string{"smoke", "ui"}, rec.Tags)
	assert.Equal(t, []string{"ENH-2", "JIRA-1"}, rec.References)
	require.Len(t, rec.Steps, 2)
	assert.Equal(t, models.Step{Description: "Open the login page"}, rec.Steps[0])
	assert.Equal(t, models.Step{Description: "Enter valid credentials", Expected: "Dashboard is shown"}, rec.Steps[1])
}

func TestNormalize_StepObjects(t *testing.T) {
	raw := RawRecord{
		"title": "Checkout",
		"testSteps": []any{
			map[string]any{"action": "Add item to cart", "test_data": "sku-1", "expected_result": "Cart shows 1 item"},
			"Press checkout",
			map[string]any{},
		},
	}

	rec := Normalize(raw)

	require.Len(t, rec.Steps, 2)
	assert.Equal(t, models.Step{Description: "Add item to cart", TestData: "sku-1", Expected: "Cart shows 1 item"}, rec.Steps[0])
	assert.Equal(t, "Press checkout", rec.Steps[1].Description)
}

func TestNormalize_MissingFields(t *testing.T) {
	t.Run("nil record", func(t *testing.T) {
		assert.NotPanics(t, func() {
			rec := Normalize(nil)
			assert.Empty(t, rec.Title)
			assert.Nil(t, rec.Steps)
			assert.Nil(t, rec.Tags)
		})
	})

	t.Run("title only", func(t *testing.T) {
		rec := Normalize(RawRecord{"name": "Only a title", "priority": "whenever"})
		assert.Equal(t, "Only a title", rec.Title)
		assert.Empty(t, rec.Priority)
		assert.Empty(t, rec.Category)
	})

	t.Run("custom aliases", func(t *testing.T) {
		n, err := NewRecordNormalizer(Aliases{FieldTitle: {"heading"}, FieldID: {"key"}})
		require.NoError(t, err)

		rec := n.Normalize(RawRecord{"heading": "Custom", "key": "k-1", "title": "ignored"})
		assert.Equal(t, "Custom", rec.Title)
		assert.Equal(t, "k-1", rec.ID)
	})
}

func TestNormalizeRecord_Idempotent(t *testing.T) {
	rec := models.Record{
		ID:         " tc-1 ",
		Title:      "  Reset   password ",
		Category:   " Account ",
		Priority:   "Blocker",
		Steps:      []models.Step{{Description: " Open  settings "}, {}, {Description: "Click reset", Expected: " Email   sent "}},
		Tags:       []string{"B", "a", "b", " "},
		References: []string{"T-2", "T-1", "T-2"},
	}

	once := NormalizeRecord(rec)
	twice := NormalizeRecord(once)

	assert.Equal(t, once, twice)
	assert.Equal(t, "tc-1", once.ID)
	assert.Equal(t, "Reset password", once.Title)
	assert.Equal(t, models.PriorityCritical, once.Priority)
	assert.Equal(t, []string{"a", "b"}, once.Tags)
	assert.Equal(t, []string{"T-1", "T-2"}, once.References)
	assert.Len(t, once.Steps, 2)
	assert.Equal(t, "Email sent", once.Steps[1].Expected)

	// the input is untouched
	assert.Equal(t, " tc-1 ", rec.ID)
	assert.Len(t, rec.Steps, 3)
}
