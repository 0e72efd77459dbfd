package ontology

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Builder accumulates tools and classifications, then validates and builds
// an Ontology. Tools without a color are given one by rotating the hue over
// the tool list, so adjacent tools render distinctly in the editor.
type Builder struct {
	tools           []*Tool
	classifications []*Classification
	promptResponses []*PromptResponseClassification
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) AddTool(t *Tool) *Builder {
	b.tools = append(b.tools, t)
	return b
}

func (b *Builder) AddClassification(c *Classification) *Builder {
	b.classifications = append(b.classifications, c)
	return b
}

func (b *Builder) AddPromptResponse(p *PromptResponseClassification) *Builder {
	b.promptResponses = append(b.promptResponses, p)
	return b
}

func (b *Builder) Build() (*Ontology, error) {
	for i, t := range b.tools {
		if t.Color == "" {
			hue := float32(i) / float32(len(b.tools))
			r, g, blue := hsvToRGB(hue, 1, 1)
			t.Color = fmt.Sprintf("#%02x%02x%02x", r, g, blue)
		}
	}
	return New(b.tools, b.classifications, b.promptResponses)
}

// hsvToRGB converts hue [0,1), saturation and value [0,1] to 8-bit RGB.
func hsvToRGB(h, s, v float32) (uint8, uint8, uint8) {
	h = h - math32.Floor(h)
	sector := h * 6
	i := int(math32.Floor(sector))
	f := sector - float32(i)
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	var r, g, b float32
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	case 5:
		r, g, b = v, p, q
	}
	to8 := func(x float32) uint8 { return uint8(math32.Round(x * 255)) }
	return to8(r), to8(g), to8(b)
}
