package memory

import (
	"context"
	"time"

	"github.com/GreaZeY/bms/internal/domain/customer"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
)

type CustomerRepository struct {
	store
	customers map[int64]*customer.Customer
}

func NewCustomerRepository() *CustomerRepository {
	return &CustomerRepository{customers: make(map[int64]*customer.Customer)}
}

func (r *CustomerRepository) Create(_ context.Context, c *customer.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.ID = r.id()
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	r.customers[c.ID] = &cp
	return nil
}

func (r *CustomerRepository) FindByID(_ context.Context, id int64) (*customer.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.customers[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *CustomerRepository) FindByEmail(_ context.Context, email string) (*customer.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.customers {
		if c.Email == email {
			cp := *c
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *CustomerRepository) Update(_ context.Context, c *customer.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.customers[c.ID]; !ok {
		return xerrors.ErrNotFound
	}
	c.UpdatedAt = time.Now()
	cp := *c
	r.customers[c.ID] = &cp
	return nil
}
