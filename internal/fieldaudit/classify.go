package fieldaudit

// medicalDecisionFields is the static classification table. A field listed
// here carries clinical or regulatory weight; everything else is
// administrative. Extending the table is a reviewed change, not runtime
// configuration.
var medicalDecisionFields = map[string]bool{
	"diagnosis":      true,
	"treatment_plan": true,
	"prescription":   true,
	"clinical_notes": true,
}

// IsMedicalDecision reports whether edits to the named field carry
// regulatory significance.
func IsMedicalDecision(fieldName string) bool {
	return medicalDecisionFields[fieldName]
}
