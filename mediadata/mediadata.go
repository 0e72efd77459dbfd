package mediadata

// Package mediadata holds the media carriers that labels decorate: raster
// images, text, video, documents, conversations, tiled maps, DICOM studies
// and friends. A carrier is constructed from exactly one locator (inline
// bytes, a file path, a URL, or a server-side reference) and decodes its
// content lazily, caching the bytes after the first successful fetch.

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/labelforge/labelforge/client"
)

// Kind identifies the media family of a carrier.
type Kind string

const (
	KindImage        Kind = "IMAGE"
	KindText         Kind = "TEXT"
	KindVideo        Kind = "VIDEO"
	KindDocument     Kind = "DOCUMENT"
	KindConversation Kind = "CONVERSATIONAL"
	KindTiledImage   Kind = "TMS_GEO"
	KindDicom        Kind = "DICOM"
	KindAudio        Kind = "AUDIO"
	KindHTML         Kind = "HTML"
	KindLLMPrompt    Kind = "LLM_PROMPT_CREATION"

	// KindGeneric is a reference-only carrier used when the media family is
	// unknown, eg labels decoded from the compact import format.
	KindGeneric Kind = "GENERIC"
)

// Reference identifies a data row on the server. Any of the three fields may
// address the row.
type Reference struct {
	UID        string
	ExternalID string
	GlobalKey  string
}

func (r Reference) set() bool {
	return r.UID != "" || r.ExternalID != "" || r.GlobalKey != ""
}

// Data is the carrier interface consumed by labels and converters.
type Data interface {
	Kind() Kind
	Reference() *Reference
	// URL is the remote location of the content, or empty.
	URL() string
	// SetURL records the remote location after an upload.
	SetURL(url string)
	// Bytes returns the raw content, fetching and caching it if needed.
	Bytes(ctx context.Context) ([]byte, error)
}

// Options is the shared locator set for carrier constructors. Exactly one of
// URL, FilePath, Bytes, or a Reference field must be given, unless the
// concrete carrier adds its own locators (eg a decoded image array).
type Options struct {
	URL      string
	FilePath string
	Bytes    []byte

	UID        string
	ExternalID string
	GlobalKey  string

	Fetcher      client.BlobFetcher // Required to resolve URL-backed content
	DisableCache bool
}

func (o Options) reference() Reference {
	return Reference{UID: o.UID, ExternalID: o.ExternalID, GlobalKey: o.GlobalKey}
}

// locatorCount counts the content locators present in the shared option set,
// plus extras contributed by concrete carriers. A server reference only
// counts when there is no content locator: reference-only data is valid, and
// exported content normally knows both its URL and its server id.
func (o Options) locatorCount(extras int) int {
	n := extras
	if o.URL != "" {
		n++
	}
	if o.FilePath != "" {
		n++
	}
	if len(o.Bytes) > 0 {
		n++
	}
	if n == 0 && o.reference().set() {
		n++
	}
	return n
}

func checkExactlyOne(kind Kind, o Options, extras int) error {
	if n := o.locatorCount(extras); n != 1 {
		return fmt.Errorf("%v data needs exactly one locator, got %v", kind, n)
	}
	return nil
}

// blob is the common carrier implementation.
type blob struct {
	kind         Kind
	ref          Reference
	url          string
	filePath     string
	raw          []byte
	fetcher      client.BlobFetcher
	disableCache bool

	mu    sync.Mutex
	cache []byte
}

func newBlob(kind Kind, o Options) blob {
	return blob{
		kind:         kind,
		ref:          o.reference(),
		url:          o.URL,
		filePath:     o.FilePath,
		raw:          o.Bytes,
		fetcher:      o.Fetcher,
		disableCache: o.DisableCache,
	}
}

func (b *blob) Kind() Kind {
	return b.kind
}

func (b *blob) Reference() *Reference {
	return &b.ref
}

func (b *blob) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.url
}

func (b *blob) SetURL(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.url = url
}

// Bytes fetches the raw content. The first successful fetch is cached unless
// caching is disabled.
func (b *blob) Bytes(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.raw != nil {
		return b.raw, nil
	}
	if b.cache != nil {
		return b.cache, nil
	}
	data, err := b.fetchLocked(ctx)
	if err != nil {
		return nil, err
	}
	if !b.disableCache {
		b.cache = data
	}
	return data, nil
}

// GenericData addresses a data row without knowing its media family. It has
// no local content.
type GenericData struct{ blob }

func NewGenericData(o Options) (*GenericData, error) {
	if err := checkExactlyOne(KindGeneric, o, 0); err != nil {
		return nil, err
	}
	return &GenericData{newBlob(KindGeneric, o)}, nil
}

func (b *blob) fetchLocked(ctx context.Context) ([]byte, error) {
	switch {
	case b.filePath != "":
		return os.ReadFile(b.filePath)
	case b.url != "":
		if b.fetcher == nil {
			return nil, fmt.Errorf("%v data at %v needs a blob fetcher", b.kind, b.url)
		}
		return b.fetcher.Fetch(ctx, b.url)
	default:
		return nil, fmt.Errorf("%v data %+v has no local content; fetch it from the server first", b.kind, b.ref)
	}
}
