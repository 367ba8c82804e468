package repo

import (
	"context"
)

type IOrder interface {
	Upsert(ctx context.Context, record *OrderRecord) error
}

type IOrderEvent interface {
	BulkCreate(ctx context.Context, records []*OrderEventRecord) ([]*OrderEventRecord, error)
}
