package annotate

import (
	"context"

	"github.com/google/uuid"
	"github.com/labelforge/labelforge/client"
	"github.com/labelforge/labelforge/pkg/prefetch"
)

// LabelList is the eager label collection.
type LabelList []*Label

// AddURLToData signs every label's media bytes. No-op for labels that
// already have a URL.
func (list LabelList) AddURLToData(ctx context.Context, signer client.URLSigner) error {
	for _, label := range list {
		if err := label.AddURLToData(ctx, signer); err != nil {
			return err
		}
	}
	return nil
}

// AddURLToMasks signs every in-memory mask raster across the list.
func (list LabelList) AddURLToMasks(ctx context.Context, signer client.URLSigner) error {
	for _, label := range list {
		if err := label.AddURLToMasks(ctx, signer); err != nil {
			return err
		}
	}
	return nil
}

// AddToDataset creates one data row per label. External ids must be unique
// across the list; labels without one get a generated uuid. Media without a
// URL is signed first.
func (list LabelList) AddToDataset(ctx context.Context, sink client.DatasetSink, signer client.URLSigner) error {
	seen := map[string]bool{}
	for _, label := range list {
		externalID := label.Data.Reference().ExternalID
		if externalID != "" && seen[externalID] {
			return Validationf("external id %q appears on more than one label", externalID)
		}
		seen[externalID] = true
	}
	if err := list.AddURLToData(ctx, signer); err != nil {
		return err
	}
	for _, label := range list {
		ref := label.Data.Reference()
		if ref.ExternalID == "" {
			ref.ExternalID = uuid.NewString()
		}
		uid, err := sink.CreateDataRow(ctx, client.DataRow{
			RowData:    label.Data.URL(),
			ExternalID: ref.ExternalID,
			GlobalKey:  ref.GlobalKey,
		})
		if err != nil {
			return err
		}
		ref.UID = uid
	}
	return nil
}

// LabelGenerator is the lazy, single-pass label collection. It composes a
// pipeline of named per-label transforms and drives them through a prefetch
// worker pool, so network-bound transforms overlap with consumer iteration.
// Registering a transform under an existing name replaces it.
type LabelGenerator struct {
	source     func() (*Label, bool)
	transforms []namedTransform
	options    prefetch.Options
	pool       *prefetch.Prefetcher[*Label]
}

type namedTransform struct {
	name string
	fn   func(*Label) (*Label, error)
}

// NewLabelGenerator wraps an upstream iterator. The upstream function returns
// (nil, false) when exhausted; it does not need to be thread-safe.
func NewLabelGenerator(source func() (*Label, bool)) *LabelGenerator {
	return &LabelGenerator{source: source}
}

// Multithreaded switches the pool to the default multithreaded worker count.
// With more than one worker the emission order across labels is
// non-deterministic, but each label's own annotations never reorder.
func (g *LabelGenerator) Multithreaded() *LabelGenerator {
	g.options.Workers = prefetch.DefaultWorkersNumThreads
	return g
}

// PrefetchLimit bounds the queue between the workers and the consumer.
func (g *LabelGenerator) PrefetchLimit(limit int) *LabelGenerator {
	g.options.QueueLimit = limit
	return g
}

// Transform registers (or replaces) a named per-label transform. Returns the
// generator for chaining. Panics if iteration has started.
func (g *LabelGenerator) Transform(name string, fn func(*Label) (*Label, error)) *LabelGenerator {
	if g.pool != nil {
		panic("cannot add transforms after iteration has started")
	}
	for i := range g.transforms {
		if g.transforms[i].name == name {
			g.transforms[i].fn = fn
			return g
		}
	}
	g.transforms = append(g.transforms, namedTransform{name, fn})
	return g
}

func (g *LabelGenerator) start() {
	transforms := make([]namedTransform, len(g.transforms))
	copy(transforms, g.transforms)
	combined := func(label *Label) (*Label, error) {
		var err error
		for _, t := range transforms {
			if label, err = t.fn(label); err != nil {
				return nil, err
			}
		}
		return label, nil
	}
	g.pool = prefetch.New(g.source, combined, g.options)
}

// Next returns the next transformed label. It returns prefetch.Done at the
// end of the stream, or the first transform error, which is then sticky.
func (g *LabelGenerator) Next() (*Label, error) {
	if g.pool == nil {
		g.start()
	}
	return g.pool.Next()
}

// Stop tears down the worker pool. Consuming to the end stops implicitly.
func (g *LabelGenerator) Stop() {
	if g.pool != nil {
		g.pool.Stop()
	}
}

// Collect drains the generator into an eager LabelList.
func (g *LabelGenerator) Collect() (LabelList, error) {
	list := LabelList{}
	for {
		label, err := g.Next()
		if err == prefetch.Done {
			return list, nil
		}
		if err != nil {
			return nil, err
		}
		list = append(list, label)
	}
}
