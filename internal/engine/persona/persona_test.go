// internal/engine/persona/persona_test.go
package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decision-advisor/internal/models"
)

func TestByID(t *testing.T) {
	p, ok := ByID(Pragmatist)
	require.True(t, ok)
	assert.Equal(t, "The Pragmatist", p.Name)
	assert.Equal(t, LeanAnalytical, p.Lean)

	_, ok = ByID(ID("oracle"))
	assert.False(t, ok)
}

func TestForDecisionType(t *testing.T) {
	tests := []struct {
		name         string
		decisionType models.DecisionType
		first        ID
	}{
		{"structured leads with pragmatist", models.DecisionStructured, Pragmatist},
		{"intuitive leads with empath", models.DecisionIntuitive, Empath},
		{"mixed leads with pragmatist", models.DecisionMixed, Pragmatist},
		{"unknown falls back to mixed", models.DecisionType("weird"), Pragmatist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			personas := ForDecisionType(tt.decisionType)
			require.NotEmpty(t, personas)
			assert.Equal(t, tt.first, personas[0].ID)
			for _, p := range personas {
				assert.NotEmpty(t, p.PromptFlavor)
			}
		})
	}
}

func TestAllPersonasRegistered(t *testing.T) {
	all := All()
	require.Len(t, all, 4)
	seen := map[ID]bool{}
	for _, p := range all {
		assert.False(t, seen[p.ID], "duplicate persona %s", p.ID)
		seen[p.ID] = true
		assert.NotEmpty(t, p.Name)
	}
}
