package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-engine/internal/model"
)

func TestScore(t *testing.T) {
	d, err := Default(DefaultThreshold)
	require.NoError(t, err)

	cases := []struct {
		name     string
		text     string
		value    int
		priority model.Priority
	}{
		{"three keywords with bonus", "dringend interesse termin!!!", 80, model.PriorityCritical},
		{"negative dominates", "Dringend: kein Interesse mehr, bitte abmelden!!!", 0, model.PriorityNone},
		{"english opt out", "Interested in a demo but please unsubscribe me", 0, model.PriorityNone},
		{"case insensitive", "URGENT", 15, model.PriorityNone},
		{"two keywords", "Wir hätten Interesse an einem Angebot", 30, model.PriorityMedium},
		{"exclamation cap", "termin!!!!!!!!", 30, model.PriorityMedium},
		{"question cap", "preis????", 25, model.PriorityNone},
		{"duplicates count once", "termin termin termin", 15, model.PriorityNone},
		{"umlaut keyword", "Budget steht, bitte Angebot und Rückruf?", 68, model.PriorityHigh},
		{"high band", "budget angebot rückruf", 65, model.PriorityHigh},
		{"spelled out umlaut", "Bitte um Rueckruf", 15, model.PriorityNone},
		{"upper case umlaut", "RÜCKRUF", 15, model.PriorityNone},
		{"nothing", "Danke für die Info.", 0, model.PriorityNone},
		{"clamped", "dringend sofort asap urgent interesse termin meeting angebot!!!???", 100, model.PriorityCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := d.Score(tc.text)
			assert.Equal(t, tc.value, got.Value)
			assert.Equal(t, tc.priority, got.Priority)
		})
	}
}

func TestClassifyUsesThreshold(t *testing.T) {
	d, err := New(Keywords{Positive: []string{"termin"}}, 40)
	require.NoError(t, err)

	assert.Equal(t, model.PriorityNone, d.Classify(39))
	assert.Equal(t, model.PriorityMedium, d.Classify(40))
	assert.Equal(t, model.PriorityHigh, d.Classify(50))
	assert.Equal(t, model.PriorityCritical, d.Classify(70))
}

func TestParseRejectsBadConfig(t *testing.T) {
	_, err := Parse([]byte("positive: []\nnegative: [stop]\n"), 30)
	assert.Error(t, err)

	_, err = Parse([]byte("positive: [\"  \"]\n"), 30)
	assert.Error(t, err)

	_, err = Parse([]byte("positive: [a]\n"), 60)
	assert.Error(t, err)

	_, err = Parse([]byte("positive: [a"), 30)
	assert.Error(t, err)
}

func TestNewDefaultsThreshold(t *testing.T) {
	d, err := New(Keywords{Positive: []string{"Termin", "termin "}}, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, d.threshold)
	assert.Equal(t, []string{"termin"}, d.positive)
}
