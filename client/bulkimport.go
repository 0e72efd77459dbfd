package client

import (
	"context"
	"fmt"
	"time"

	"github.com/cyclopcam/logs"
)

// ImportState is the lifecycle of a bulk import request on the server:
// RUNNING -> FINISHED | FAILED. Terminal states are sticky.
type ImportState string

const (
	ImportRunning  ImportState = "RUNNING"
	ImportFinished ImportState = "FINISHED"
	ImportFailed   ImportState = "FAILED"
)

func (s ImportState) Terminal() bool {
	return s == ImportFinished || s == ImportFailed
}

// ImportStatus is what the server reports for one bulk import request.
type ImportStatus struct {
	State      ImportState
	ErrorsURL  string // Populated on FAILED (and on partial failures)
	StatusURL  string
	InputCount int
}

// StatusFetch retrieves the current status of a bulk import request.
type StatusFetch func(ctx context.Context) (ImportStatus, error)

const bulkImportQuery = `query bulkImportRequestStatus($id: ID!) {
	bulkImportRequest(where: {id: $id}) { state errorFileUrl statusFileUrl inputCount }
}`

// FetchImportStatus builds a StatusFetch over a GraphQL executor.
func FetchImportStatus(exec GraphQLExecutor, importID string) StatusFetch {
	return func(ctx context.Context) (ImportStatus, error) {
		data, err := exec.Execute(ctx, bulkImportQuery, map[string]any{"id": importID})
		if err != nil {
			return ImportStatus{}, err
		}
		req, _ := data["bulkImportRequest"].(map[string]any)
		if req == nil {
			return ImportStatus{}, fmt.Errorf("bulk import %v: %w", importID, ErrNotFound)
		}
		status := ImportStatus{}
		if s, ok := req["state"].(string); ok {
			status.State = ImportState(s)
		}
		status.ErrorsURL, _ = req["errorFileUrl"].(string)
		status.StatusURL, _ = req["statusFileUrl"].(string)
		if n, ok := req["inputCount"].(float64); ok {
			status.InputCount = int(n)
		}
		return status, nil
	}
}

// WaitForImport polls with exponential backoff until the import reaches a
// terminal state or the context expires. A terminal FAILED state is returned
// as a status, never retried. On context expiry the caller gets a
// *TimeoutError carrying the last observed state.
// initialDelay is the wait after the first poll; zero means 2 seconds.
func WaitForImport(ctx context.Context, logger logs.Log, fetch StatusFetch, initialDelay time.Duration) (ImportStatus, error) {
	delay := initialDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	const maxDelay = 30 * time.Second
	last := ImportStatus{State: ImportRunning}
	for {
		status, err := fetch(ctx)
		if err != nil {
			return last, err
		}
		last = status
		if status.State.Terminal() {
			return status, nil
		}
		logger.Infof("Bulk import still %v, next poll in %v", status.State, delay)
		select {
		case <-ctx.Done():
			return last, &TimeoutError{Operation: "bulk import polling", State: string(last.State)}
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
