package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func loginRecord(id string) models.Record {
	return models.Record{
		ID:       id,
		Title:    "Login with valid credentials",
		Category: "Authentication",
		Steps: []models.Step{
			{Description: "Open the login page"},
			{Description: "Enter a valid username and password"},
			{Description: "Press the sign in button", Expected: "The dashboard is shown"},
		},
		Tags: []string{"smoke", "auth"},
	}
}

func TestScorer(t *testing.T) {
	s := NewScorer()

	t.Run("levenshtein", func(t *testing.T) {
		assert.Equal(t, 3, s.LevenshteinDistance("kitten", "sitting"))
		assert.InDelta(t, 1-3.0/7.0, s.Levenshtein("kitten", "sitting"), 1e-12)
		assert.Equal(t, 1.0, s.Levenshtein("", ""))
		assert.Equal(t, 1, s.LevenshteinDistance("crème", "creme"))
	})

	t.Run("jaccard", func(t *testing.T) {
		assert.InDelta(t, 1.0/3.0, s.Jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-12)
		assert.Equal(t, 1.0, s.Jaccard(nil, nil))
		assert.Equal(t, 0.0, s.Jaccard([]string{"a"}, nil))
	})

	t.Run("sequence similarity", func(t *testing.T) {
		a := []string{"open", "page", "submit"}
		b := []string{"open", "new", "page", "submit"}
		assert.Equal(t, 3, s.LCSLength(a, b))
		assert.InDelta(t, 6.0/7.0, s.SequenceSimilarity(a, b), 1e-12)
		assert.Equal(t, 1.0, s.SequenceSimilarity(a, a))
	})

	t.Run("exact match", func(t *testing.T) {
		assert.Equal(t, 1.0, s.ExactMatch("Login", "login", false))
		assert.Equal(t, 0.0, s.ExactMatch("Login", "login", true))
	})
}

func TestSimilarity_Score(t *testing.T) {
	sim := NewSimilarity(DefaultWeights())

	t.Run("identical records score exactly 1", func(t *testing.T) {
		a := loginRecord("a")
		b := loginRecord("b")
		score := sim.Score(a, b)
		assert.Equal(t, 1.0, score.Score)
		assert.Equal(t, models.ScoreBreakdown{Title: 1, Steps: 1, Category: 1, Tags: 1}, score.Breakdown)
	})

	t.Run("case-only title edit is near but not exact", func(t *testing.T) {
		a := loginRecord("a")
		b := loginRecord("b")
		b.Title = "login with valid credentials"

		score := sim.Score(a, b)
		assert.Less(t, score.Score, 1.0)
		assert.GreaterOrEqual(t, score.Score, 0.97)
		assert.InDelta(t, 0.5*(0.9+0.1*(1-1.0/28.0))+0.5, score.Score, 1e-9)
	})

	t.Run("different category lands in review range", func(t *testing.T) {
		a := loginRecord("a")
		b := loginRecord("b")
		b.Category = "Auth"

		score := sim.Score(a, b)
		assert.InDelta(t, 0.9, score.Score, 1e-9)
		assert.Equal(t, 0.0, score.Breakdown.Category)
	})

	t.Run("category compares on comparison keys", func(t *testing.T) {
		a := loginRecord("a")
		b := loginRecord("b")
		b.Category = "  AUTHENTICATION "
		score := sim.Score(a, b)
		assert.Equal(t, 1.0, score.Breakdown.Category)
		assert.Equal(t, 1.0, score.Score, "a case-only category edit is an exact duplicate")
	})

	t.Run("dimension missing on one side scores 0", func(t *testing.T) {
		a := loginRecord("a")
		b := loginRecord("b")
		b.Steps = nil
		b.Tags = nil

		score := sim.Score(a, b)
		assert.Equal(t, 0.0, score.Breakdown.Steps)
		assert.Equal(t, 0.0, score.Breakdown.Tags)
		assert.InDelta(t, 0.6, score.Score, 1e-9)
	})

	t.Run("dimension missing on both sides scores 1", func(t *testing.T) {
		a := models.Record{ID: "a", Title: "Logout"}
		b := models.Record{ID: "b", Title: "Logout"}
		assert.Equal(t, 1.0, sim.Score(a, b).Score)
	})

	t.Run("unrelated records score low", func(t *testing.T) {
		a := loginRecord("a")
		b := models.Record{
			ID:       "b",
			Title:    "Export monthly report as PDF",
			Category: "Reporting",
			Steps:    []models.Step{{Description: "Open reports"}, {Description: "Click export"}},
			Tags:     []string{"regression"},
		}
		assert.Less(t, sim.Score(a, b).Score, 0.5)
	})
}

func TestSimilarity_Properties(t *testing.T) {
	sim := NewSimilarity(DefaultWeights())

	records := []models.Record{
		loginRecord("a"),
		{ID: "b", Title: "login with valid credentials", Category: "Auth"},
		{ID: "c", Title: "Reset password", Steps: []models.Step{{Description: "Open settings"}}, Tags: []string{"account"}},
		{ID: "d", Title: "Crème brûlée order", Category: "Menu", Tags: []string{"Food", "food"}},
		{ID: "e", Title: "Login with valid credentials!", Steps: []models.Step{{Description: "Open the login page"}}},
	}

	for _, a := range records {
		t.Run("reflexive "+a.ID, func(t *testing.T) {
			assert.Equal(t, 1.0, sim.Score(a, a).Score)
		})
		for _, b := range records {
			ab := sim.Score(a, b)
			ba := sim.Score(b, a)
			assert.Equal(t, ab.Score, ba.Score, "score(%s,%s) is not symmetric", a.ID, b.ID)
			assert.GreaterOrEqual(t, ab.Score, 0.0)
			assert.LessOrEqual(t, ab.Score, 1.0)
		}
	}
}

func TestSimilarity_Compare(t *testing.T) {
	sim := NewSimilarity(DefaultWeights())

	_, err := sim.Compare(models.Record{ID: "a"}, loginRecord("b"))
	assert.ErrorIs(t, err, models.ErrInvalidRecord)

	score, err := sim.Compare(loginRecord("a"), loginRecord("b"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)
}

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{"defaults", DefaultWeights(), false},
		{"title only", Weights{Title: 1}, false},
		{"sum below one", Weights{Title: 0.5, Steps: 0.3}, true},
		{"negative weight", Weights{Title: 1.2, Steps: -0.2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDisplayBands_Classify(t *testing.T) {
	bands := DefaultDisplayBands()

	assert.Equal(t, BandExact, bands.Classify(1))
	assert.Equal(t, BandHigh, bands.Classify(0.96))
	assert.Equal(t, BandMedium, bands.Classify(0.9))
	assert.Equal(t, BandLow, bands.Classify(0.5))
}
