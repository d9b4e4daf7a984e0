package presenter

import (
	"context"
	"fmt"
	"strings"

	"github.com/jwalitptl/booking-feed/internal/model"
)

// View is one notification as the UI list renders it.
type View struct {
	model.Notification
	Title              string `json:"title"`
	Summary            string `json:"summary"`
	CustomerProfileURL string `json:"customerProfileUrl,omitempty"`
}

type Renderer struct {
	directory *CustomerDirectory
}

// NewRenderer accepts a nil directory; names then come from the event itself.
func NewRenderer(directory *CustomerDirectory) *Renderer {
	return &Renderer{directory: directory}
}

func (r *Renderer) Render(ctx context.Context, n model.Notification) (View, error) {
	if !n.Type.Valid() {
		return View{}, fmt.Errorf("notification %s: %w", n.ID, model.ErrInvalidType)
	}

	v := View{
		Notification:       n,
		Title:              title(n.Type),
		CustomerProfileURL: "/customers/" + n.CustomerID,
	}
	if r.directory != nil && n.CustomerID != "" {
		// Lookup failures fall back to what the event carried.
		if c, err := r.directory.Lookup(ctx, n.CustomerID); err == nil {
			if c.Name != "" {
				v.CustomerName = c.Name
			}
			if v.CustomerCode == nil {
				v.CustomerCode = c.Code
			}
			if c.ProfileURL != "" {
				v.CustomerProfileURL = c.ProfileURL
			}
		}
	}
	v.Summary = summary(v.Notification)
	return v, nil
}

func title(t model.NotificationType) string {
	switch t {
	case model.NotificationTypeCreated:
		return "New booking"
	case model.NotificationTypeCancelled:
		return "Booking cancelled"
	default:
		return "Booking modified"
	}
}

func summary(n model.Notification) string {
	parts := []string{n.CustomerName}
	when := strings.TrimSpace(n.Metadata.FormattedDate + " " + n.BookingTime)
	if when != "" {
		parts = append(parts, when)
	}
	if n.Bay != nil {
		parts = append(parts, *n.Bay)
	}
	if n.Duration != nil {
		parts = append(parts, fmt.Sprintf("%gh", *n.Duration))
	}
	if n.Metadata.NumberOfPeople > 0 {
		parts = append(parts, fmt.Sprintf("%d pax", n.Metadata.NumberOfPeople))
	}

	s := strings.Join(parts, " · ")
	if len(n.Metadata.Changes) > 0 {
		changes := make([]string, 0, len(n.Metadata.Changes))
		for _, c := range n.Metadata.Changes {
			changes = append(changes, fmt.Sprintf("%s: %v → %v", c.Field, display(c.Old), display(c.New)))
		}
		s += " (" + strings.Join(changes, ", ") + ")"
	}
	return s
}

func display(v interface{}) interface{} {
	if v == nil {
		return "none"
	}
	return v
}
