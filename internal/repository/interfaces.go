package repository

import (
	"context"

	"github.com/jwalitptl/booking-feed/internal/model"
)

// Backend collaborators. Storage lives on the server; these are the client
// side of its HTTP API.
type (
	// NotificationRepository reaches the history and acknowledgment endpoints.
	NotificationRepository interface {
		// Acknowledge returns the canonical record whether or not this caller
		// was the first to confirm.
		Acknowledge(ctx context.Context, id, staffID string) (*model.Acknowledgment, error)
		List(ctx context.Context, filter model.ListFilter) (*model.Page, error)
	}

	// CustomerRepository resolves customer identities for display.
	CustomerRepository interface {
		Get(ctx context.Context, id string) (*model.Customer, error)
	}
)
