package rest

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jwalitptl/booking-feed/internal/model"
	"github.com/jwalitptl/booking-feed/internal/repository"
)

type customerRepository struct {
	client *Client
}

func NewCustomerRepository(client *Client) repository.CustomerRepository {
	return &customerRepository{client: client}
}

func (r *customerRepository) Get(ctx context.Context, id string) (*model.Customer, error) {
	var customer model.Customer
	path := fmt.Sprintf("/customers/%s", url.PathEscape(id))
	if err := r.client.getJSON(ctx, "get_customer", path, nil, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}
