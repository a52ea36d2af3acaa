package merging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
)

var (
	created = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	updated = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
)

func newResolver() *Resolver {
	return NewResolver(DefaultConfig(), matching.NewSimilarity(matching.DefaultWeights()))
}

func existingRecord() models.Record {
	return models.Record{
		ID:       "tc-1",
		Title:    "Login with valid credentials",
		Category: "Authentication",
		Priority: models.PriorityHigh,
		Steps: []models.Step{
			{Description: "Open the login page of the customer portal in a supported browser"},
			{Description: "Enter the username and password of an active customer account"},
			{Description: "Press the sign in button and wait for the redirect to finish", Expected: "The dashboard is shown"},
		},
		Owner:      "qa-team",
		Tags:       []string{"auth", "smoke"},
		References: []string{"JIRA-1"},
		Version:    3,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestResolver_Merge(t *testing.T) {
	r := newResolver()

	t.Run("keeps identity and bumps version", func(t *testing.T) {
		existing := existingRecord()
		incoming := existingRecord()
		incoming.ID = "import-7"
		incoming.Version = 1
		incoming.CreatedAt = updated
		incoming.UpdatedAt = updated

		merged, unresolved, err := r.Merge(existing, incoming)
		require.NoError(t, err)
		assert.Empty(t, unresolved)
		assert.Equal(t, "tc-1", merged.ID)
		assert.Equal(t, 4, merged.Version)
		assert.Equal(t, created, merged.CreatedAt)
		assert.Equal(t, updated, merged.UpdatedAt)
		assert.Equal(t, []string{"import-7"}, merged.Provenance.SourceIDs)
	})

	t.Run("populated value beats empty", func(t *testing.T) {
		existing := existingRecord()
		existing.Category = ""
		existing.Remarks = ""
		incoming := existingRecord()
		incoming.Remarks = "Covers SSO users as well"

		merged, unresolved, err := r.Merge(existing, incoming)
		require.NoError(t, err)
		assert.Empty(t, unresolved)
		assert.Equal(t, "Authentication", merged.Category)
		assert.Equal(t, "Covers SSO users as well", merged.Remarks)
	})

	t.Run("more detailed text wins", func(t *testing.T) {
		existing := existingRecord()
		incoming := existingRecord()
		incoming.Title = "Login with valid credentials and remember me enabled"

		merged, unresolved, err := r.Merge(existing, incoming)
		require.NoError(t, err)
		assert.Empty(t, unresolved)
		assert.Equal(t, incoming.Title, merged.Title)
	})

	t.Run("equally detailed text is unresolved", func(t *testing.T) {
		existing := existingRecord()
		incoming := existingRecord()
		incoming.Title = "Login with valid credential"

		merged, unresolved, err := r.Merge(existing, incoming)
		require.NoError(t, err)
		assert.Equal(t, []string{models.FieldTitle}, unresolved)
		assert.Equal(t, existing.Title, merged.Title)
	})

	t.Run("case-only difference keeps existing", func(t *testing.T) {
		existing := existingRecord()
		incoming := existingRecord()
		incoming.Title = "LOGIN WITH VALID CREDENTIALS"

		merged, unresolved, err := r.Merge(existing, incoming)
		require.NoError(t, err)
		assert.Empty(t, unresolved)
		assert.Equal(t, existing.Title, merged.Title)
	})

	t.Run("differing priority is unresolved", func(t *testing.T) {
		existing := existingRecord()
		incoming := existingRecord()
		incoming.Priority = models.PriorityLow

		merged, unresolved, err := r.Merge(existing, incoming)
		require.NoError(t, err)
		assert.Equal(t, []string{models.FieldPriority}, unresolved)
		assert.Equal(t, models.PriorityHigh, merged.Priority)
	})

	t.Run("owner prefers existing", func(t *testing.T) {
		existing := existingRecord()
		incoming := existingRecord()
		incoming.Owner = "someone-else"

		merged, _, err := r.Merge(existing, incoming)
		require.NoError(t, err)
		assert.Equal(t, "qa-team", merged.Owner)
	})

	t.Run("tags and references are unioned", func(t *testing.T) {
		existing := existingRecord()
		incoming := existingRecord()
		incoming.Tags = []string{"Smoke", "regression"}
		incoming.References = []string{"ENH-4", "JIRA-1"}

		merged, unresolved, err := r.Merge(existing, incoming)
		require.NoError(t, err)
		assert.Empty(t, unresolved)
		assert.Equal(t, []string{"auth", "regression", "smoke"}, merged.Tags)
		assert.Equal(t, []string{"ENH-4", "JIRA-1"}, merged.References)
	})

	t.Run("similar step list with an extra step wins", func(t *testing.T) {
		existing := existingRecord()
		incoming := existingRecord()
		incoming.Steps = append(incoming.Steps, models.Step{Description: "Logout"})

		merged, unresolved, err := r.Merge(existing, incoming)
		require.NoError(t, err)
		assert.Empty(t, unresolved)
		assert.Len(t, merged.Steps, 4)
	})

	t.Run("divergent steps are unresolved", func(t *testing.T) {
		existing := existingRecord()
		incoming := existingRecord()
		incoming.Steps = []models.Step{{Description: "Call the login API directly"}, {Description: "Check the token"}}

		merged, unresolved, err := r.Merge(existing, incoming)
		require.NoError(t, err)
		assert.Equal(t, []string{models.FieldSteps}, unresolved)
		assert.Equal(t, existing.Steps, merged.Steps)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, _, err := r.Merge(models.Record{ID: "x"}, existingRecord())
		assert.ErrorIs(t, err, models.ErrInvalidRecord)
	})
}

func TestResolver_MergeIsIdempotent(t *testing.T) {
	r := newResolver()

	existing := existingRecord()
	incoming := existingRecord()
	incoming.ID = "import-1"
	incoming.Title = "Login with valid credentials and remember me enabled"
	incoming.Tags = []string{"regression"}
	incoming.Steps = append(incoming.Steps, models.Step{Description: "Logout"})

	once, unresolved, err := r.Merge(existing, incoming)
	require.NoError(t, err)
	require.Empty(t, unresolved)

	twice, unresolved, err := r.Merge(once, incoming)
	require.NoError(t, err)
	require.Empty(t, unresolved)

	assert.Equal(t, once.Version+1, twice.Version)
	twice.Version = once.Version
	assert.Equal(t, once, twice)
}

func TestResolver_FieldConflicts(t *testing.T) {
	r := newResolver()

	existing := existingRecord()
	incoming := existingRecord()
	incoming.Category = "Auth"
	incoming.Tags = []string{"SMOKE", "auth"}

	conflicts := r.FieldConflicts(existing, incoming)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.FieldConflict{Field: models.FieldCategory, ExistingValue: "Authentication", IncomingValue: "Auth"}, conflicts[0])
}

func TestRenderSteps(t *testing.T) {
	out := RenderSteps([]models.Step{
		{Description: "Open page"},
		{Description: "Submit", TestData: "user=a", Expected: "Saved"},
	})
	assert.Equal(t, "1. Open page\n2. Submit [data: user=a] => Saved", out)
}
