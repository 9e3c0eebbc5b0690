package metadata

import (
	"context"
	"time"
)

// Record describes one uploaded writeup.
type Record struct {
	Filename    string    `json:"filename"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	UploadDate  time.Time `json:"upload_date"`
	Size        int64     `json:"size"`
}

// Store holds the ordered list of records. Implementations keep insertion
// order.
type Store interface {
	// List returns every record, oldest first. It never returns a nil slice
	// without an error.
	List(ctx context.Context) ([]Record, error)
	Append(ctx context.Context, record Record) error
	// Remove deletes every record whose filename equals filename and reports
	// how many were deleted. Removing an unknown filename is not an error.
	Remove(ctx context.Context, filename string) (int, error)
}
