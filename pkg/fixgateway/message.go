package fixgateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joripage/orderbook-sync/pkg/chainevent"
	"github.com/joripage/orderbook-sync/pkg/notify"
	"github.com/joripage/orderbook-sync/pkg/orderbook"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/fix44/executionreport"
	"github.com/quickfixgo/fix44/newordersingle"
	"github.com/quickfixgo/quickfix"
	"github.com/shopspring/decimal"
)

var errBadOrder = errors.New("bad order message")

var ordStatusMapping = map[orderbook.Status]enum.OrdStatus{
	orderbook.StatusOpen:            enum.OrdStatus_NEW,
	orderbook.StatusPartiallyFilled: enum.OrdStatus_PARTIALLY_FILLED,
	orderbook.StatusFilled:          enum.OrdStatus_FILLED,
	orderbook.StatusCancelled:       enum.OrdStatus_CANCELED,
	orderbook.StatusExpired:         enum.OrdStatus_EXPIRED,
}

func fromNewOrderSingle(msg newordersingle.NewOrderSingle) (*NewOrderSingle, quickfix.MessageRejectError) {
	clOrdID, err := msg.GetClOrdID()
	if err != nil {
		return nil, err
	}
	symbol, err := msg.GetSymbol()
	if err != nil {
		return nil, err
	}
	side, err := msg.GetSide()
	if err != nil {
		return nil, err
	}
	orderQty, err := msg.GetOrderQty()
	if err != nil {
		return nil, err
	}
	price, err := msg.GetPrice()
	if err != nil {
		return nil, err
	}
	account, _ := msg.GetAccount()
	expireTime, _ := msg.GetExpireTime()
	transactTime, _ := msg.GetTransactTime()

	return &NewOrderSingle{
		ClOrdID:      clOrdID,
		Account:      account,
		Symbol:       symbol,
		Side:         side,
		OrderQty:     orderQty,
		Price:        price,
		ExpireTime:   expireTime,
		TransactTime: transactTime,
	}, nil
}

// ToTerms maps the order onto the maker's signed terms. ClOrdID carries the
// order hash the maker signed. Symbol is
// BASE/QUOTE. A sell gives OrderQty of base for OrderQty*Price of quote, a
// buy gives the quote amount for OrderQty of base.
func (m *NewOrderSingle) ToTerms() (string, orderbook.Terms, error) {
	base, quote, ok := strings.Cut(m.Symbol, "/")
	if !ok || base == "" || quote == "" {
		return "", orderbook.Terms{}, fmt.Errorf("%w: symbol %q is not BASE/QUOTE", errBadOrder, m.Symbol)
	}
	hash, err := chainevent.ParseOrderHash(m.ClOrdID)
	if err != nil {
		return "", orderbook.Terms{}, fmt.Errorf("%w: ClOrdID: %w", errBadOrder, err)
	}

	terms := orderbook.Terms{
		Maker:      m.Account,
		Taker:      orderbook.OpenTaker,
		Expiration: m.ExpireTime,
	}
	quoteAmount := m.OrderQty.Mul(m.Price)
	switch m.Side {
	case enum.Side_SELL:
		terms.MakerAsset, terms.TakerAsset = base, quote
		terms.MakerAmount, terms.TakerAmount = m.OrderQty, quoteAmount
	case enum.Side_BUY:
		terms.MakerAsset, terms.TakerAsset = quote, base
		terms.MakerAmount, terms.TakerAmount = quoteAmount, m.OrderQty
	default:
		return "", orderbook.Terms{}, fmt.Errorf("%w: unsupported side %q", errBadOrder, m.Side)
	}

	return hash, terms.Normalized(), nil
}

func execType(m notify.Message) enum.ExecType {
	switch {
	case m.Order.Status == orderbook.StatusCancelled:
		return enum.ExecType_CANCELED
	case m.Order.Status == orderbook.StatusExpired:
		return enum.ExecType_EXPIRED
	case m.Type == notify.KindOrderAdded && m.Order.FilledAmount.IsZero():
		return enum.ExecType_NEW
	case m.PreviousStatus == m.Order.Status:
		return enum.ExecType_ORDER_STATUS
	case m.Order.FilledAmount.IsPositive():
		return enum.ExecType_TRADE
	default:
		return enum.ExecType_ORDER_STATUS
	}
}

// orderExecutionReport renders a notification as a drop copy. Every order
// is reported as a sell of its maker asset for its taker asset.
func orderExecutionReport(m notify.Message) executionreport.ExecutionReport {
	o := m.Order
	avgPx := decimal.Zero
	if o.FilledAmount.IsPositive() {
		avgPx = o.FilledTakerAmount.Div(o.FilledAmount)
	}

	leaves := o.RemainingAmount()
	scale := qtyScale(o.Terms.MakerAmount, o.FilledAmount, leaves)

	er := executionreport.New(
		field.NewOrderID(o.Hash),
		field.NewExecID(m.EventID()),
		field.NewExecType(execType(m)),
		field.NewOrdStatus(ordStatusMapping[o.Status]),
		field.NewSide(enum.Side_SELL),
		field.NewLeavesQty(leaves, scale),
		field.NewCumQty(o.FilledAmount, scale),
		field.NewAvgPx(avgPx, 8),
	)
	er.SetClOrdID(o.Hash)
	er.SetSymbol(o.Terms.MakerAsset + "/" + o.Terms.TakerAsset)
	er.SetAccount(o.Terms.Maker)
	er.SetOrderQty(o.Terms.MakerAmount, scale)
	er.SetPrice(o.Terms.Price(), 8)
	er.SetTransactTime(m.At)
	if !o.Terms.Expiration.IsZero() {
		er.SetExpireTime(o.Terms.Expiration)
	}
	if o.Suspect {
		er.SetText("SUSPECT")
	}
	return er
}

// qtyScale is the number of decimal places needed to render every quantity
// exactly. Amounts are never rounded on the wire.
func qtyScale(qtys ...decimal.Decimal) int32 {
	var scale int32
	for _, q := range qtys {
		if exp := -q.Exponent(); exp > scale {
			scale = exp
		}
	}
	return scale
}

func rejectExecutionReport(req *NewOrderSingle, execID string, reason error) executionreport.ExecutionReport {
	er := executionreport.New(
		field.NewOrderID(req.ClOrdID),
		field.NewExecID(execID),
		field.NewExecType(enum.ExecType_REJECTED),
		field.NewOrdStatus(enum.OrdStatus_REJECTED),
		field.NewSide(req.Side),
		field.NewLeavesQty(decimal.Zero, 0),
		field.NewCumQty(decimal.Zero, 0),
		field.NewAvgPx(decimal.Zero, 0),
	)
	er.SetClOrdID(req.ClOrdID)
	er.SetSymbol(req.Symbol)
	er.SetText(reason.Error())
	return er
}
