package fixgateway

import (
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/quickfix"
	"github.com/shopspring/decimal"
)

// NewOrderSingle carries the fields of an inbound order that describe the
// signed order's terms. ClOrdID is the order hash.
type NewOrderSingle struct {
	SessionID quickfix.SessionID

	ClOrdID      string
	Account      string
	Symbol       string
	Side         enum.Side
	OrderQty     decimal.Decimal
	Price        decimal.Decimal
	ExpireTime   time.Time
	TransactTime time.Time
}
