package fieldaudit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMedicalDecision(t *testing.T) {
	tests := []struct {
		field string
		want  bool
	}{
		{"diagnosis", true},
		{"treatment_plan", true},
		{"prescription", true},
		{"clinical_notes", true},
		{"note_admin", false},
		{"scheduling_notes", false},
		{"billing_code", false},
		{"Diagnosis", false}, // classification is exact, not case-folded
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.field, func(t *testing.T) {
			assert.Equal(t, tc.want, IsMedicalDecision(tc.field))
		})
	}
}
