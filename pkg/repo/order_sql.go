package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderSQLRepo struct {
	db *gorm.DB
}

func NewOrderSQLRepo(db *gorm.DB) *OrderSQLRepo {
	return &OrderSQLRepo{
		db: db,
	}
}

func (r *OrderSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// supersedesSQL mirrors OrderRecord.Supersedes for the conflict update.
const supersedesSQL = `(orders.watermark_block, orders.watermark_tx, orders.watermark_log) < (excluded.watermark_block, excluded.watermark_tx, excluded.watermark_log)
	OR ((orders.watermark_block, orders.watermark_tx, orders.watermark_log) = (excluded.watermark_block, excluded.watermark_tx, excluded.watermark_log)
		AND orders.terms_pending AND NOT excluded.terms_pending)`

// Upsert stores record unless the stored row is at a later chain watermark.
func (r *OrderSQLRepo) Upsert(ctx context.Context, record *OrderRecord) error {
	return r.dbWithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"maker", "maker_asset", "taker_asset", "maker_amount", "taker_amount", "filled_amount",
			"status", "terms_pending", "suspect", "watermark_block", "watermark_tx", "watermark_log", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: supersedesSQL},
		}},
	}).Create(record).Error
}
