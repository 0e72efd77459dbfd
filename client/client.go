package client

// Package client declares the collaborator contracts the data model consumes,
// plus HTTP implementations of them. The annotation engine itself never talks
// to the network directly; it performs I/O through these interfaces.

import (
	"context"
)

// BlobFetcher downloads raw media bytes. Implementations fail with a
// *NetworkError on non-2xx responses.
type BlobFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// URLSigner uploads a payload and returns a URL from which it can be read
// back. Signing is idempotent for a given payload.
type URLSigner interface {
	Sign(ctx context.Context, data []byte) (string, error)
}

// GraphQLExecutor runs one GraphQL operation. Implementations fail with
// *APILimitError, *TimeoutError or *NetworkError, or ErrNotFound.
type GraphQLExecutor interface {
	Execute(ctx context.Context, query string, vars map[string]any) (map[string]any, error)
}

// DataRow is the minimal shape for creating rows in a dataset.
type DataRow struct {
	RowData    string `json:"rowData"`    // URL or inline content
	ExternalID string `json:"externalId"` // Caller-chosen identifier, unique within a dataset
	GlobalKey  string `json:"globalKey,omitempty"`
}

// DatasetSink accepts new data rows. The server assigns the row uid.
type DatasetSink interface {
	CreateDataRow(ctx context.Context, row DataRow) (uid string, err error)
}

// DefaultPageSize is used by Paginate when the caller passes zero.
const DefaultPageSize = 100

// Page is one page of a cursor-paginated listing. After is empty on the last
// page.
type Page[T any] struct {
	Items []T
	After string
}

// PageFunc fetches one page starting at the given cursor.
type PageFunc[T any] func(ctx context.Context, after string, pageSize int) (Page[T], error)

// Paginate walks a cursor-based listing until the cursor runs out or a page
// comes back short, invoking visit for every item.
func Paginate[T any](ctx context.Context, pageSize int, fetch PageFunc[T], visit func(T) error) error {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	after := ""
	for {
		page, err := fetch(ctx, after, pageSize)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			if err := visit(item); err != nil {
				return err
			}
		}
		if page.After == "" || len(page.Items) < pageSize {
			return nil
		}
		after = page.After
	}
}
