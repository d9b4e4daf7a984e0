package notification

import (
	"context"
	"iter"
	"time"

	"github.com/jwalitptl/booking-feed/internal/model"
)

// Connectivity reports whether the live subscription is up.
type Connectivity interface {
	IsConnected() bool
}

// Status is a point-in-time summary of the feed.
type Status struct {
	Connected   bool       `json:"connected"`
	UnreadCount int        `json:"unreadCount"`
	Total       int        `json:"total"`
	Watermark   *time.Time `json:"watermark"`
}

// Service is the read/acknowledge surface consumed by presentation code.
type Service interface {
	Notifications() iter.Seq[model.Notification]
	UnreadCount() int
	IsConnected() bool
	Acknowledge(ctx context.Context, id, staffID string) (*Result, error)
	Status() Status
}

type service struct {
	log   *Log
	acker *Acknowledger
	conn  Connectivity
}

func NewService(log *Log, acker *Acknowledger, conn Connectivity) Service {
	return &service{
		log:   log,
		acker: acker,
		conn:  conn,
	}
}

func (s *service) Notifications() iter.Seq[model.Notification] {
	return s.log.Notifications()
}

func (s *service) UnreadCount() int {
	return s.log.UnreadCount()
}

func (s *service) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

// Acknowledge uses the configured staff member when staffID is empty.
func (s *service) Acknowledge(ctx context.Context, id, staffID string) (*Result, error) {
	if staffID == "" {
		return s.acker.Acknowledge(ctx, id)
	}
	return s.acker.AcknowledgeAs(ctx, id, staffID)
}

func (s *service) Status() Status {
	st := Status{
		Connected:   s.IsConnected(),
		UnreadCount: s.log.UnreadCount(),
		Total:       s.log.Len(),
	}
	if wm, ok := s.log.Watermark(); ok {
		st.Watermark = &wm
	}
	return st
}
