package ontology

// Package ontology models the labeling ontology: the tree of tools,
// classifications and options that annotations reference by name or by
// feature schema id. The Builder constructs new ontologies for upload; an
// Ontology parsed from the server carries assigned schema ids and can stamp
// them onto a label's annotations.

import (
	"encoding/json"
	"fmt"

	"github.com/labelforge/labelforge/annotate"
)

// ToolType is the wire name of an object tool.
type ToolType string

const (
	ToolPolygon                ToolType = "polygon"
	ToolSegmentation           ToolType = "superpixel"
	ToolRasterSegmentation     ToolType = "raster-segmentation"
	ToolPoint                  ToolType = "point"
	ToolBBox                   ToolType = "rectangle"
	ToolLine                   ToolType = "line"
	ToolNER                    ToolType = "named-entity"
	ToolRelationship           ToolType = "edge"
	ToolMessageSingleSelection ToolType = "message-single-selection"
	ToolMessageMultiSelection  ToolType = "message-multi-selection"
	ToolMessageRanking         ToolType = "message-ranking"
)

func (t ToolType) Valid() bool {
	switch t {
	case ToolPolygon, ToolSegmentation, ToolRasterSegmentation, ToolPoint,
		ToolBBox, ToolLine, ToolNER, ToolRelationship,
		ToolMessageSingleSelection, ToolMessageMultiSelection, ToolMessageRanking:
		return true
	}
	return false
}

// ClassificationType is the wire name of a classification kind.
type ClassificationType string

const (
	ClassText      ClassificationType = "text"
	ClassChecklist ClassificationType = "checklist"
	ClassRadio     ClassificationType = "radio"
)

// Scope controls where a classification applies on multi-part data.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeIndex  Scope = "index"
)

// UIMode is a hint for the editor frontend.
type UIMode string

const (
	UIHotkey     UIMode = "hotkey"
	UISearchable UIMode = "searchable"
)

// PromptResponseType distinguishes prompt/response classifications used for
// LLM data rows. At most one prompt may exist per ontology.
type PromptResponseType string

const (
	PromptResponsePrompt    PromptResponseType = "prompt"
	PromptResponseText      PromptResponseType = "response-text"
	PromptResponseRadio     PromptResponseType = "response-radio"
	PromptResponseChecklist PromptResponseType = "response-checklist"
)

// Tool is one object tool of the ontology. Color is an RGB hex string like
// "#ff0000"; tools without a color get one assigned at build time.
type Tool struct {
	Type            ToolType          `json:"tool"`
	Name            string            `json:"name"`
	Required        bool              `json:"required"`
	Color           string            `json:"color,omitempty"`
	SchemaID        string            `json:"schemaNodeId,omitempty"`
	FeatureSchemaID string            `json:"featureSchemaId,omitempty"`
	Classifications []*Classification `json:"classifications,omitempty"`
}

func (t *Tool) validate() error {
	if !t.Type.Valid() {
		return fmt.Errorf("tool %q has unknown type %q", t.Name, t.Type)
	}
	if t.Name == "" {
		return fmt.Errorf("a tool needs a name")
	}
	return validateClassifications(fmt.Sprintf("tool %q", t.Name), t.Classifications)
}

// Classification is a question: free text, or a radio/checklist over options.
type Classification struct {
	Type            ClassificationType `json:"type"`
	Name            string             `json:"name"`
	Required        bool               `json:"required"`
	Options         []*Option          `json:"options,omitempty"`
	Scope           Scope              `json:"scope,omitempty"`
	UIMode          UIMode             `json:"uiMode,omitempty"`
	SchemaID        string             `json:"schemaNodeId,omitempty"`
	FeatureSchemaID string             `json:"featureSchemaId,omitempty"`
}

func (c *Classification) validate() error {
	if c.Name == "" {
		return fmt.Errorf("a classification needs a name")
	}
	switch c.Type {
	case ClassText:
		if len(c.Options) > 0 {
			return fmt.Errorf("text classification %q cannot have options", c.Name)
		}
	case ClassChecklist, ClassRadio:
		if len(c.Options) == 0 {
			return fmt.Errorf("%v classification %q needs at least one option", c.Type, c.Name)
		}
	default:
		return fmt.Errorf("classification %q has unknown type %q", c.Name, c.Type)
	}
	seen := map[string]bool{}
	for _, o := range c.Options {
		if err := o.validate(); err != nil {
			return err
		}
		if seen[o.Value] {
			return fmt.Errorf("classification %q has duplicate option %q", c.Name, o.Value)
		}
		seen[o.Value] = true
	}
	return nil
}

// Option returns the option whose value matches name, or nil.
func (c *Classification) Option(name string) *Option {
	for _, o := range c.Options {
		if o.Value == name {
			return o
		}
	}
	return nil
}

// Option is one selectable answer of a radio or checklist. Nested
// classifications underneath an option enable deep ontologies.
type Option struct {
	Value           string            `json:"value"`
	Label           string            `json:"label,omitempty"`
	SchemaID        string            `json:"schemaNodeId,omitempty"`
	FeatureSchemaID string            `json:"featureSchemaId,omitempty"`
	Classifications []*Classification `json:"options,omitempty"`
}

func (o *Option) validate() error {
	if o.Value == "" {
		return fmt.Errorf("an option needs a value")
	}
	return validateClassifications(fmt.Sprintf("option %q", o.Value), o.Classifications)
}

// ResponseOption is an Option of a response radio/checklist.
type ResponseOption struct {
	Option
}

// PromptResponseClassification is a prompt or response question for LLM data
// rows. Character constraints apply to prompt and response-text types.
type PromptResponseClassification struct {
	Type            PromptResponseType `json:"type"`
	Name            string             `json:"name"`
	Required        bool               `json:"required"`
	CharacterMin    *int               `json:"minCharacters,omitempty"`
	CharacterMax    *int               `json:"maxCharacters,omitempty"`
	Options         []*ResponseOption  `json:"options,omitempty"`
	SchemaID        string             `json:"schemaNodeId,omitempty"`
	FeatureSchemaID string             `json:"featureSchemaId,omitempty"`
}

func (p *PromptResponseClassification) validate() error {
	if p.Name == "" {
		return fmt.Errorf("a prompt response classification needs a name")
	}
	switch p.Type {
	case PromptResponsePrompt, PromptResponseText:
		if p.CharacterMin != nil && p.CharacterMax != nil && *p.CharacterMin > *p.CharacterMax {
			return fmt.Errorf("%q: minCharacters %v exceeds maxCharacters %v", p.Name, *p.CharacterMin, *p.CharacterMax)
		}
	case PromptResponseRadio, PromptResponseChecklist:
		if len(p.Options) == 0 {
			return fmt.Errorf("%v classification %q needs at least one option", p.Type, p.Name)
		}
	default:
		return fmt.Errorf("prompt response classification %q has unknown type %q", p.Name, p.Type)
	}
	return nil
}

func validateClassifications(parent string, list []*Classification) error {
	seen := map[string]bool{}
	for _, c := range list {
		if err := c.validate(); err != nil {
			return err
		}
		if seen[c.Name] {
			return fmt.Errorf("%v has duplicate classification %q", parent, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// Ontology is a validated tool/classification tree with name indices.
type Ontology struct {
	Tools           []*Tool                         `json:"tools"`
	Classifications []*Classification               `json:"classifications"`
	PromptResponses []*PromptResponseClassification `json:"promptResponses,omitempty"`

	toolsByName   map[string]*Tool
	classesByName map[string]*Classification
}

// New validates the tree and builds the name indices.
func New(tools []*Tool, classifications []*Classification, promptResponses []*PromptResponseClassification) (*Ontology, error) {
	o := &Ontology{Tools: tools, Classifications: classifications, PromptResponses: promptResponses}
	if err := o.check(); err != nil {
		return nil, err
	}
	o.index()
	return o, nil
}

// FromJSON parses the server's ontology document.
func FromJSON(raw []byte) (*Ontology, error) {
	o := &Ontology{}
	if err := json.Unmarshal(raw, o); err != nil {
		return nil, fmt.Errorf("parsing ontology: %w", err)
	}
	if err := o.check(); err != nil {
		return nil, err
	}
	o.index()
	return o, nil
}

// AsJSON renders the document form, as sent to the server.
func (o *Ontology) AsJSON() ([]byte, error) {
	return json.Marshal(o)
}

func (o *Ontology) check() error {
	toolNames := map[string]bool{}
	for _, t := range o.Tools {
		if err := t.validate(); err != nil {
			return err
		}
		if toolNames[t.Name] {
			return fmt.Errorf("ontology has duplicate tool %q", t.Name)
		}
		toolNames[t.Name] = true
	}
	if err := validateClassifications("ontology", o.Classifications); err != nil {
		return err
	}
	prompts := 0
	for _, p := range o.PromptResponses {
		if err := p.validate(); err != nil {
			return err
		}
		if p.Type == PromptResponsePrompt {
			prompts++
		}
	}
	if prompts > 1 {
		return fmt.Errorf("an ontology can hold at most one prompt, got %v", prompts)
	}
	return nil
}

func (o *Ontology) index() {
	o.toolsByName = map[string]*Tool{}
	for _, t := range o.Tools {
		o.toolsByName[t.Name] = t
	}
	o.classesByName = map[string]*Classification{}
	for _, c := range o.Classifications {
		o.classesByName[c.Name] = c
	}
}

// ToolByName returns the tool with the given name, or nil.
func (o *Ontology) ToolByName(name string) *Tool {
	return o.toolsByName[name]
}

// ClassificationByName returns the top-level classification with the given
// name, or nil.
func (o *Ontology) ClassificationByName(name string) *Classification {
	return o.classesByName[name]
}

// ToolBySchemaID returns the tool carrying the given feature schema id, or
// nil.
func (o *Ontology) ToolBySchemaID(id string) *Tool {
	for _, t := range o.Tools {
		if t.FeatureSchemaID == id {
			return t
		}
	}
	return nil
}

// ClassificationBySchemaID returns the top-level classification carrying the
// given feature schema id, or nil.
func (o *Ontology) ClassificationBySchemaID(id string) *Classification {
	for _, c := range o.Classifications {
		if c.FeatureSchemaID == id {
			return c
		}
	}
	return nil
}

// UnknownNameError reports a label feature whose name has no counterpart in
// the ontology.
type UnknownNameError struct {
	Kind string // "tool", "classification" or "option"
	Name string
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("ontology has no %v named %q", e.Kind, e.Name)
}

// AssignFeatureSchemaIDs stamps feature schema ids onto every annotation of
// the label by name lookup. Annotations that already carry an id keep it;
// the walk still descends into their children. Unknown names fail with an
// *UnknownNameError.
func (o *Ontology) AssignFeatureSchemaIDs(label *annotate.Label) error {
	for _, a := range label.Annotations {
		var err error
		switch a := a.(type) {
		case *annotate.ObjectAnnotation:
			err = o.assignObject(a)
		case *annotate.VideoObjectAnnotation:
			err = o.assignObject(&a.ObjectAnnotation)
		case *annotate.DICOMObjectAnnotation:
			err = o.assignObject(&a.ObjectAnnotation)
		case *annotate.RelationshipAnnotation:
			err = o.assignRelationship(a)
		case *annotate.ClassificationAnnotation:
			err = assignClassification(a, o.Classifications)
		case *annotate.VideoClassificationAnnotation:
			err = assignClassification(&a.ClassificationAnnotation, o.Classifications)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Ontology) assignObject(a *annotate.ObjectAnnotation) error {
	tool := o.toolsByName[a.Name]
	if tool == nil {
		return &UnknownNameError{Kind: "tool", Name: a.Name}
	}
	if a.FeatureSchemaID == "" {
		a.FeatureSchemaID = tool.FeatureSchemaID
	}
	for i := range a.Classifications {
		if err := assignClassification(&a.Classifications[i], tool.Classifications); err != nil {
			return err
		}
	}
	return nil
}

func (o *Ontology) assignRelationship(a *annotate.RelationshipAnnotation) error {
	tool := o.toolsByName[a.Name]
	if tool == nil {
		return &UnknownNameError{Kind: "tool", Name: a.Name}
	}
	if a.FeatureSchemaID == "" {
		a.FeatureSchemaID = tool.FeatureSchemaID
	}
	return nil
}

func assignClassification(a *annotate.ClassificationAnnotation, scope []*Classification) error {
	var cls *Classification
	for _, c := range scope {
		if c.Name == a.Name {
			cls = c
			break
		}
	}
	if cls == nil {
		return &UnknownNameError{Kind: "classification", Name: a.Name}
	}
	if a.FeatureSchemaID == "" {
		a.FeatureSchemaID = cls.FeatureSchemaID
	}
	switch v := a.Value.(type) {
	case annotate.Radio:
		if err := assignAnswer(&v.Answer, cls); err != nil {
			return err
		}
		a.Value = v
	case annotate.Checklist:
		for i := range v.Answers {
			if err := assignAnswer(&v.Answers[i], cls); err != nil {
				return err
			}
		}
		a.Value = v
	case annotate.Dropdown:
		for i := range v.Answers {
			if err := assignAnswer(&v.Answers[i], cls); err != nil {
				return err
			}
		}
		a.Value = v
	}
	return nil
}

func assignAnswer(answer *annotate.ClassificationAnswer, parent *Classification) error {
	option := parent.Option(answer.Name)
	if option == nil {
		return &UnknownNameError{Kind: "option", Name: answer.Name}
	}
	if answer.FeatureSchemaID == "" {
		answer.FeatureSchemaID = option.FeatureSchemaID
	}
	for i := range answer.Classifications {
		if err := assignClassification(&answer.Classifications[i], option.Classifications); err != nil {
			return err
		}
	}
	return nil
}
