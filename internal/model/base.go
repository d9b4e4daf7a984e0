package model

import (
	"time"
)

// Pagination represents common pagination parameters
type Pagination struct {
	Page     int `json:"page" form:"page"`
	PageSize int `json:"pageSize" form:"page_size"`
}

// ListFilter narrows a history request against the backend.
type ListFilter struct {
	Pagination
	Scope  string           `json:"scope,omitempty"`
	Since  *time.Time       `json:"since,omitempty"`
	Type   NotificationType `json:"type,omitempty"`
	Unread *bool            `json:"unread,omitempty"`
	Limit  int              `json:"limit,omitempty"`
}

// Page is one page of historical notifications.
type Page struct {
	Items    []Notification `json:"items"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
	Total    int            `json:"total"`
	// Dropped counts items the decoder rejected as malformed.
	Dropped int `json:"-"`
}

// Customer is the identity record used to render names and links.
type Customer struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Code       *string `json:"code,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	ProfileURL string  `json:"profileUrl,omitempty"`
}
