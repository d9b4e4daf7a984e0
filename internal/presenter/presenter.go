// Package presenter holds the read-only adapters the staff UI is built from:
// the compact dropdown, the filtered page view and per-item rendering.
package presenter

import (
	"iter"

	"github.com/jwalitptl/booking-feed/internal/model"
)

const DefaultDropdownLimit = 5

// Dropdown returns the newest limit unread notifications in log order.
func Dropdown(seq iter.Seq[model.Notification], limit int) []model.Notification {
	if limit <= 0 {
		limit = DefaultDropdownLimit
	}
	out := make([]model.Notification, 0, limit)
	for n := range seq {
		if n.Read {
			continue
		}
		out = append(out, n)
		if len(out) == limit {
			break
		}
	}
	return out
}

type PageFilter struct {
	Type   model.NotificationType `form:"type" binding:"omitempty,oneof=created cancelled modified"`
	Unread *bool                  `form:"unread"`
	Limit  int                    `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset int                    `form:"offset" binding:"omitempty,min=0"`
}

func (f PageFilter) matches(n model.Notification) bool {
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.Unread != nil && *f.Unread == n.Read {
		return false
	}
	return true
}

// Page applies f to the sequence. total counts every match, not just the
// returned window.
func Page(seq iter.Seq[model.Notification], f PageFilter) (items []model.Notification, total int) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	items = make([]model.Notification, 0, f.Limit)
	for n := range seq {
		if !f.matches(n) {
			continue
		}
		if total >= f.Offset && len(items) < f.Limit {
			items = append(items, n)
		}
		total++
	}
	return items, total
}
