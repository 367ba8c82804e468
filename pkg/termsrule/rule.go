package termsrule

import (
	"errors"

	"github.com/joripage/orderbook-sync/pkg/orderbook"
)

var ErrInvalidTerms = errors.New("invalid order terms")

// Rule rejects order terms before they are admitted to the book.
type Rule interface {
	Check(terms orderbook.Terms) error
}

// Chain runs rules in order and stops at the first failure.
type Chain []Rule

func (c Chain) Check(terms orderbook.Terms) error {
	for _, r := range c {
		if err := r.Check(terms); err != nil {
			return err
		}
	}
	return nil
}
