package testutil

import (
	"context"
	"testing"

	"minix/internal/database"
	"minix/internal/drive"
	"minix/internal/model"
)

// TestOwner is the user the Harness context is authenticated as.
const TestOwner = "owner-1"

// Harness bundles a DriveService with the fakes behind it.
type Harness struct {
	Service *drive.DriveService
	DB      *database.SQLDatabase
	Objects *FailingObjectStore
	Events  *RecordingPublisher
	Clock   *StubClock
	IDs     *StubIDGenerator

	// Ctx is authenticated as TestOwner.
	Ctx context.Context
}

// NewHarness creates a DriveService backed by an in-memory database, a
// FailingObjectStore and a RecordingPublisher.
func NewHarness(t *testing.T, opts drive.Options) *Harness {
	t.Helper()

	h := &Harness{
		DB:      NewTestDatabase(t),
		Objects: NewFailingObjectStore(),
		Events:  NewRecordingPublisher(),
		Clock:   FixedClock(),
		IDs:     NewStubIDGenerator(),
		Ctx:     UserContext(TestOwner),
	}
	h.Service = drive.NewDriveService(h.DB, h.Objects, h.Events, nil, nil, h.Clock, h.IDs, opts)
	return h
}

// UserContext returns a background context authenticated as ownerID.
func UserContext(ownerID string) context.Context {
	return drive.WithUser(context.Background(), &model.User{ID: ownerID, Email: ownerID + "@example.com"})
}
