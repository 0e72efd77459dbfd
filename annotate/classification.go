package annotate

// Classification values: Text, Radio, Checklist, Prompt, plus the legacy
// Dropdown that only the verbose format still accepts. Answers form a tree:
// an answer may carry further nested classifications.

// ClassificationValue is the tagged union of classification answer shapes.
type ClassificationValue interface {
	classificationValue()
	// Validate checks the variant's structural invariants.
	Validate() error
}

// ClassificationAnswer is one selected option, possibly with nested
// classifications underneath it.
type ClassificationAnswer struct {
	FeatureSchema
	Confidence      *float64                   `json:"confidence,omitempty"`
	Classifications []ClassificationAnnotation `json:"classifications,omitempty"`
	Extra           map[string]any             `json:"-"`
}

func (a ClassificationAnswer) Validate() error {
	if err := a.FeatureSchema.Validate(); err != nil {
		return err
	}
	if err := CheckConfidence(a.Confidence); err != nil {
		return err
	}
	for _, nested := range a.Classifications {
		if err := nested.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Text is a free-text answer.
type Text struct {
	Answer     string   `json:"answer"`
	Confidence *float64 `json:"confidence,omitempty"`
}

func (Text) classificationValue() {}

func (t Text) Validate() error {
	return CheckConfidence(t.Confidence)
}

// Radio selects exactly one answer.
type Radio struct {
	Answer ClassificationAnswer `json:"answer"`
}

func (Radio) classificationValue() {}

func (r Radio) Validate() error {
	return r.Answer.Validate()
}

// Checklist selects one or more answers with unique names.
type Checklist struct {
	Answers []ClassificationAnswer `json:"answers"`
}

func (Checklist) classificationValue() {}

func (c Checklist) Validate() error {
	if len(c.Answers) == 0 {
		return Validationf("a checklist needs at least one answer")
	}
	seen := map[string]bool{}
	for _, answer := range c.Answers {
		if err := answer.Validate(); err != nil {
			return err
		}
		id := answer.Identifier()
		if seen[id] {
			return Validationf("duplicate checklist answer %q", id)
		}
		seen[id] = true
	}
	return nil
}

// Prompt is a free-text response with optional length constraints. At most
// one prompt classification may exist in an ontology.
type Prompt struct {
	Answer       string `json:"answer"`
	CharacterMin *int   `json:"characterMin,omitempty"`
	CharacterMax *int   `json:"characterMax,omitempty"`
}

func (Prompt) classificationValue() {}

func (p Prompt) Validate() error {
	n := len(p.Answer)
	if p.CharacterMin != nil && n < *p.CharacterMin {
		return Validationf("prompt answer has %v characters, minimum is %v", n, *p.CharacterMin)
	}
	if p.CharacterMax != nil && n > *p.CharacterMax {
		return Validationf("prompt answer has %v characters, maximum is %v", n, *p.CharacterMax)
	}
	if p.CharacterMin != nil && p.CharacterMax != nil && *p.CharacterMin > *p.CharacterMax {
		return Validationf("prompt character_min %v exceeds character_max %v", *p.CharacterMin, *p.CharacterMax)
	}
	return nil
}

// Dropdown is the legacy multi-level selection. The verbose format still
// parses it; the compact format rejects it with a typed error.
type Dropdown struct {
	Answers []ClassificationAnswer `json:"answer"`
}

func (Dropdown) classificationValue() {}

func (d Dropdown) Validate() error {
	if len(d.Answers) == 0 {
		return Validationf("a dropdown needs at least one answer")
	}
	for _, answer := range d.Answers {
		if err := answer.Validate(); err != nil {
			return err
		}
	}
	return nil
}
