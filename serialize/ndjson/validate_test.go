package ndjson

import (
	"testing"

	"github.com/labelforge/labelforge/annotate"
	"github.com/labelforge/labelforge/annotate/ontology"
	"github.com/stretchr/testify/require"
)

func testOntology(t *testing.T) *ontology.Ontology {
	o, err := ontology.New(
		[]*ontology.Tool{
			{Type: ontology.ToolBBox, Name: "car", FeatureSchemaID: "cfsid0000000000000000car0"},
			{Type: ontology.ToolPolygon, Name: "lake"},
			{Type: ontology.ToolNER, Name: "entity"},
			{Type: ontology.ToolRelationship, Name: "near"},
			{Type: ontology.ToolRasterSegmentation, Name: "blob"},
		},
		[]*ontology.Classification{
			{Type: ontology.ClassRadio, Name: "color", Options: []*ontology.Option{
				{Value: "red"}, {Value: "blue"},
			}},
			{Type: ontology.ClassChecklist, Name: "attrs", Options: []*ontology.Option{
				{Value: "striped"}, {Value: "short"},
			}},
			{Type: ontology.ClassText, Name: "note"},
		},
		nil)
	require.NoError(t, err)
	return o
}

func parseLines(t *testing.T, lines ...string) []Record {
	records := make([]Record, 0, len(lines))
	for i, line := range lines {
		record, err := ParseRecord([]byte(line), i+1)
		require.NoError(t, err)
		records = append(records, record)
	}
	return records
}

func TestValidateAccepts(t *testing.T) {
	records := parseLines(t,
		`{"uuid":"u1","dataRow":{"id":"D"},"name":"car","bbox":{"top":1,"left":2,"height":3,"width":4}}`,
		`{"uuid":"u2","dataRow":{"id":"D"},"schemaId":"cfsid0000000000000000car0","bbox":{"top":1,"left":2,"height":3,"width":4}}`,
		`{"uuid":"u3","dataRow":{"id":"D"},"name":"color","answer":{"name":"red"}}`,
		`{"uuid":"u4","dataRow":{"id":"D"},"name":"attrs","answer":[{"name":"striped"},{"name":"short"}]}`,
		`{"uuid":"u5","dataRow":{"id":"D"},"name":"note","answer":"free"}`,
		`{"uuid":"u6","dataRow":{"id":"D"},"name":"entity","location":{"start":0,"end":4}}`,
		`{"uuid":"u7","dataRow":{"id":"D"},"name":"near","relationship":{"source":"u1","target":"u2","type":"unidirectional"}}`,
		`{"uuid":"u8","dataRow":{"id":"D"},"name":"blob","mask":{"counts":[1,3],"size":[4,5]}}`,
		`{"uuid":"u9","dataRow":{"id":"D"},"name":"car","segments":[{"keyframes":[{"frame":1,"bbox":{"top":1,"left":2,"height":3,"width":4}}]}]}`,
	)
	require.NoError(t, Validate(records, testOntology(t)))
}

func TestValidateKindMismatch(t *testing.T) {
	records := parseLines(t,
		`{"uuid":"u1","dataRow":{"id":"D"},"name":"car","polygon":[{"x":1,"y":1},{"x":2,"y":2},{"x":3,"y":1}]}`,
	)
	err := Validate(records, testOntology(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "rectangle")
}

func TestValidateUnknownName(t *testing.T) {
	records := parseLines(t,
		`{"uuid":"u1","dataRow":{"id":"D"},"name":"boat","bbox":{"top":1,"left":2,"height":3,"width":4}}`,
	)
	err := Validate(records, testOntology(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "boat")
}

func TestValidateAnswerMembership(t *testing.T) {
	records := parseLines(t,
		`{"uuid":"u1","dataRow":{"id":"D"},"name":"color","answer":{"name":"green"}}`,
	)
	err := Validate(records, testOntology(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "green")
}

func TestValidateDuplicateUUID(t *testing.T) {
	records := parseLines(t,
		`{"uuid":"same","dataRow":{"id":"D"},"name":"note","answer":"a"}`,
		`{"uuid":"same","dataRow":{"id":"D"},"name":"note","answer":"b"}`,
	)
	err := Validate(records, testOntology(t))
	var dup *annotate.UUIDError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "same", dup.UUID)
}

func TestValidateGeometryInvariants(t *testing.T) {
	bad := []string{
		`{"uuid":"u1","dataRow":{"id":"D"},"name":"lake","polygon":[{"x":1,"y":1},{"x":2,"y":2}]}`,
		`{"uuid":"u2","dataRow":{"id":"D"},"name":"blob","mask":{"counts":[1,-3],"size":[4,5]}}`,
		`{"uuid":"u3","dataRow":{"id":"D"},"name":"blob","mask":{"counts":[1,3],"size":[4]}}`,
		`{"uuid":"u4","dataRow":{"id":"D"},"name":"blob","mask":{"instanceURI":"https://x","colorRGB":[300,0,0]}}`,
		`{"uuid":"u5","dataRow":{"id":"D"},"name":"entity","location":{"start":9,"end":2}}`,
	}
	for _, line := range bad {
		records := parseLines(t, line)
		require.Error(t, Validate(records, testOntology(t)), line)
	}
}

func TestValidateReportsLineNumber(t *testing.T) {
	records := parseLines(t,
		`{"uuid":"u1","dataRow":{"id":"D"},"name":"note","answer":"fine"}`,
		`{"uuid":"u2","dataRow":{"id":"D"},"name":"lake","polygon":[{"x":1,"y":1},{"x":2,"y":2}]}`,
	)
	err := Validate(records, testOntology(t))
	var validation *annotate.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, 2, validation.Line)
}

func TestValidateEmptyChecklist(t *testing.T) {
	records := parseLines(t,
		`{"uuid":"u1","dataRow":{"id":"D"},"name":"attrs","answer":[]}`,
	)
	require.Error(t, Validate(records, testOntology(t)))
}
