package plan

import "context"

type Repository interface {
	Create(ctx context.Context, p *Plan, allowedCustomerIDs []int64) error
	FindByID(ctx context.Context, id int64) (*Plan, error)
	FindByCode(ctx context.Context, code string) (*Plan, error)
	List(ctx context.Context, filters *ListFilters) ([]Plan, error)
	Update(ctx context.Context, p *Plan) error
	AllowedCustomerIDs(ctx context.Context, planID int64) ([]int64, error)
	ReplaceAllowedCustomers(ctx context.Context, planID int64, customerIDs []int64) error
}
