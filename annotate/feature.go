package annotate

// Core primitive value types: schema identifiers, confidence scalars and the
// name-or-id feature addressing shared by every annotation.

// SchemaIDLength is the exact length of server-side identifiers (schema ids,
// feature schema ids and data-row cuids).
const SchemaIDLength = 25

// CheckSchemaID validates the shape of a server-side identifier. Empty
// strings are fine; they mean "not assigned yet".
func CheckSchemaID(id string) error {
	if id != "" && len(id) != SchemaIDLength {
		return Validationf("schema id %q must be exactly %v characters", id, SchemaIDLength)
	}
	return nil
}

// CheckConfidence validates an optional confidence score.
func CheckConfidence(confidence *float64) error {
	if confidence != nil && (*confidence < 0 || *confidence > 1) {
		return Validationf("confidence %v outside [0.0, 1.0]", *confidence)
	}
	return nil
}

// Confidence is a convenience for building optional confidence values.
func Confidence(v float64) *float64 {
	return &v
}

// FeatureSchema addresses a tool, classification or option. Users typically
// construct annotations with a human-readable Name; FeatureSchemaID is filled
// in by ontology assignment before upload. At least one of the two must be
// set.
type FeatureSchema struct {
	Name            string `json:"name,omitempty"`
	FeatureSchemaID string `json:"featureSchemaId,omitempty"`
}

func (f FeatureSchema) Validate() error {
	if f.Name == "" && f.FeatureSchemaID == "" {
		return Validationf("feature needs a name or a feature schema id")
	}
	return CheckSchemaID(f.FeatureSchemaID)
}

// Identifier returns the name if set, else the feature schema id.
func (f FeatureSchema) Identifier() string {
	if f.Name != "" {
		return f.Name
	}
	return f.FeatureSchemaID
}
