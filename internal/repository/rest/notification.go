package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jwalitptl/booking-feed/internal/model"
	"github.com/jwalitptl/booking-feed/internal/repository"
	wire "github.com/jwalitptl/booking-feed/pkg/event"
)

type notificationRepository struct {
	client  *Client
	decoder *wire.Decoder
}

func NewNotificationRepository(client *Client) repository.NotificationRepository {
	return &notificationRepository{
		client:  client,
		decoder: wire.NewDecoder(),
	}
}

func (r *notificationRepository) Acknowledge(ctx context.Context, id, staffID string) (*model.Acknowledgment, error) {
	var ack model.Acknowledgment
	path := fmt.Sprintf("/notifications/%s/ack", url.PathEscape(id))
	if err := r.client.postJSON(ctx, "acknowledge", path, model.AckRequest{StaffID: staffID}, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

type pageResponse struct {
	Items    []json.RawMessage `json:"items"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	Total    int               `json:"total"`
}

// List fetches one history page. Items go through the same decoder as live
// events; malformed ones are dropped and counted in Page.Dropped.
func (r *notificationRepository) List(ctx context.Context, filter model.ListFilter) (*model.Page, error) {
	var resp pageResponse
	if err := r.client.getJSON(ctx, "list_notifications", "/notifications", listQuery(filter), &resp); err != nil {
		return nil, err
	}

	page := &model.Page{
		Items:    make([]model.Notification, 0, len(resp.Items)),
		Page:     resp.Page,
		PageSize: resp.PageSize,
		Total:    resp.Total,
	}
	for _, raw := range resp.Items {
		n, err := r.decoder.Decode(raw)
		if err != nil {
			page.Dropped++
			r.client.logger.Warn("dropped malformed history item", "error", err.Error())
			continue
		}
		page.Items = append(page.Items, n)
	}
	return page, nil
}

func listQuery(f model.ListFilter) url.Values {
	q := url.Values{}
	if f.Scope != "" {
		q.Set("scope", f.Scope)
	}
	if f.Since != nil {
		q.Set("since", f.Since.UTC().Format(time.RFC3339Nano))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(f.PageSize))
	}
	if f.Type != "" {
		q.Set("type", string(f.Type))
	}
	if f.Unread != nil {
		q.Set("unread", strconv.FormatBool(*f.Unread))
	}
	return q
}

