package ontology

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/labelforge/labelforge/annotate"
	"github.com/labelforge/labelforge/mediadata"
	"github.com/stretchr/testify/require"
)

func sampleTools() []*Tool {
	return []*Tool{
		{Type: ToolBBox, Name: "car", FeatureSchemaID: "cfsid0000000000000000car0"},
		{Type: ToolPolygon, Name: "tree", Color: "#00ff00", FeatureSchemaID: "cfsid000000000000000tree0",
			Classifications: []*Classification{
				{Type: ClassRadio, Name: "species", FeatureSchemaID: "cfsid00000000000species00",
					Options: []*Option{
						{Value: "oak", FeatureSchemaID: "cfsid00000000000000oak000"},
						{Value: "pine", FeatureSchemaID: "cfsid0000000000000pine000"},
					}},
			}},
		{Type: ToolRelationship, Name: "near", FeatureSchemaID: "cfsid000000000000000near0"},
	}
}

func sampleClassifications() []*Classification {
	return []*Classification{
		{Type: ClassChecklist, Name: "weather", FeatureSchemaID: "cfsid0000000000weather000",
			Options: []*Option{
				{Value: "sunny", FeatureSchemaID: "cfsid0000000000sunny00000",
					Classifications: []*Classification{
						{Type: ClassText, Name: "detail", FeatureSchemaID: "cfsid000000000detail00000"},
					}},
				{Value: "rainy", FeatureSchemaID: "cfsid0000000000rainy00000"},
			}},
	}
}

func TestBuilderAssignsColors(t *testing.T) {
	o, err := NewBuilder().
		AddTool(&Tool{Type: ToolBBox, Name: "a"}).
		AddTool(&Tool{Type: ToolBBox, Name: "b", Color: "#123456"}).
		AddTool(&Tool{Type: ToolBBox, Name: "c"}).
		Build()
	require.NoError(t, err)
	// Hue 0 of 3 is pure red; an explicit color is untouched.
	require.Equal(t, "#ff0000", o.Tools[0].Color)
	require.Equal(t, "#123456", o.Tools[1].Color)
	require.NotEmpty(t, o.Tools[2].Color)
	require.NotEqual(t, o.Tools[0].Color, o.Tools[2].Color)
}

func TestBuilderRejectsDuplicates(t *testing.T) {
	_, err := NewBuilder().
		AddTool(&Tool{Type: ToolBBox, Name: "car"}).
		AddTool(&Tool{Type: ToolPolygon, Name: "car"}).
		Build()
	require.Error(t, err)

	_, err = NewBuilder().
		AddClassification(&Classification{Type: ClassRadio, Name: "empty"}).
		Build()
	require.Error(t, err, "radio with no options")

	_, err = NewBuilder().
		AddPromptResponse(&PromptResponseClassification{Type: PromptResponsePrompt, Name: "p1"}).
		AddPromptResponse(&PromptResponseClassification{Type: PromptResponsePrompt, Name: "p2"}).
		Build()
	require.Error(t, err, "only one prompt allowed")
}

func TestJSONRoundTrip(t *testing.T) {
	o, err := New(sampleTools(), sampleClassifications(), nil)
	require.NoError(t, err)
	raw, err := o.AsJSON()
	require.NoError(t, err)

	back, err := FromJSON(raw)
	require.NoError(t, err)
	diff := cmp.Diff(o, back, cmpopts.IgnoreUnexported(Ontology{}))
	require.Empty(t, diff)

	// The wire form keeps the tool type under the "tool" key.
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	first := doc["tools"].([]any)[0].(map[string]any)
	require.Equal(t, "rectangle", first["tool"])
}

func TestIndices(t *testing.T) {
	o, err := New(sampleTools(), sampleClassifications(), nil)
	require.NoError(t, err)
	require.Equal(t, ToolPolygon, o.ToolByName("tree").Type)
	require.Nil(t, o.ToolByName("boat"))
	require.Equal(t, ClassChecklist, o.ClassificationByName("weather").Type)
	require.Equal(t, "car", o.ToolBySchemaID("cfsid0000000000000000car0").Name)
	require.Equal(t, "weather", o.ClassificationBySchemaID("cfsid0000000000weather000").Name)
}

func TestAssignFeatureSchemaIDs(t *testing.T) {
	o, err := New(sampleTools(), sampleClassifications(), nil)
	require.NoError(t, err)

	tree := annotate.NewObjectAnnotation(annotate.FeatureSchema{Name: "tree"}, annotate.TextEntity{Start: 0, End: 4})
	tree.Classifications = []annotate.ClassificationAnnotation{{
		FeatureSchema: annotate.FeatureSchema{Name: "species"},
		Value: annotate.Radio{Answer: annotate.ClassificationAnswer{
			FeatureSchema: annotate.FeatureSchema{Name: "oak"},
		}},
	}}
	weather := annotate.NewClassificationAnnotation(annotate.FeatureSchema{Name: "weather"},
		annotate.Checklist{Answers: []annotate.ClassificationAnswer{
			{FeatureSchema: annotate.FeatureSchema{Name: "sunny"},
				Classifications: []annotate.ClassificationAnnotation{{
					FeatureSchema: annotate.FeatureSchema{Name: "detail"},
					Value:         annotate.Text{Answer: "clear sky"},
				}}},
		}})

	label := &annotate.Label{
		Data:        mediadata.NewTextDataFromText("a tall oak"),
		Annotations: []annotate.Annotation{tree, weather},
	}
	require.NoError(t, o.AssignFeatureSchemaIDs(label))

	require.Equal(t, "cfsid000000000000000tree0", tree.FeatureSchemaID)
	require.Equal(t, "cfsid00000000000species00", tree.Classifications[0].FeatureSchemaID)
	radio := tree.Classifications[0].Value.(annotate.Radio)
	require.Equal(t, "cfsid00000000000000oak000", radio.Answer.FeatureSchemaID)

	checklist := weather.Value.(annotate.Checklist)
	require.Equal(t, "cfsid0000000000sunny00000", checklist.Answers[0].FeatureSchemaID)
	require.Equal(t, "cfsid000000000detail00000", checklist.Answers[0].Classifications[0].FeatureSchemaID)
}

func TestAssignIsIdempotent(t *testing.T) {
	o, err := New(sampleTools(), sampleClassifications(), nil)
	require.NoError(t, err)

	car := annotate.NewObjectAnnotation(annotate.FeatureSchema{Name: "car", FeatureSchemaID: "cfsid000000000000custom00"}, annotate.TextEntity{Start: 0, End: 1})
	label := &annotate.Label{
		Data:        mediadata.NewTextDataFromText("x"),
		Annotations: []annotate.Annotation{car},
	}
	require.NoError(t, o.AssignFeatureSchemaIDs(label))
	require.Equal(t, "cfsid000000000000custom00", car.FeatureSchemaID, "pre-set ids are kept")
}

func TestAssignUnknownName(t *testing.T) {
	o, err := New(sampleTools(), sampleClassifications(), nil)
	require.NoError(t, err)

	boat := annotate.NewObjectAnnotation(annotate.FeatureSchema{Name: "boat"}, annotate.TextEntity{Start: 0, End: 1})
	label := &annotate.Label{
		Data:        mediadata.NewTextDataFromText("x"),
		Annotations: []annotate.Annotation{boat},
	}
	err = o.AssignFeatureSchemaIDs(label)
	var unknown *UnknownNameError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "boat", unknown.Name)
	require.Equal(t, "tool", unknown.Kind)
}
