package termsrule

import (
	"fmt"
	"time"

	"github.com/joripage/orderbook-sync/pkg/orderbook"
)

// BasicRule checks the fields every order needs.
type BasicRule struct{}

func (BasicRule) Check(terms orderbook.Terms) error {
	switch {
	case terms.Maker == "":
		return fmt.Errorf("%w: missing maker", ErrInvalidTerms)
	case terms.MakerAsset == "" || terms.TakerAsset == "":
		return fmt.Errorf("%w: missing asset", ErrInvalidTerms)
	case terms.MakerAsset == terms.TakerAsset:
		return fmt.Errorf("%w: maker and taker asset are both %s", ErrInvalidTerms, terms.MakerAsset)
	case !terms.MakerAmount.IsPositive() || !terms.TakerAmount.IsPositive():
		return fmt.Errorf("%w: amounts must be positive", ErrInvalidTerms)
	}
	return nil
}

// ExpirationRule rejects orders that expire within MinLifetime of now.
type ExpirationRule struct {
	MinLifetime time.Duration
	Now         func() time.Time
}

func (r ExpirationRule) Check(terms orderbook.Terms) error {
	if terms.Expiration.IsZero() {
		return fmt.Errorf("%w: missing expiration", ErrInvalidTerms)
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	if !terms.Expiration.After(now().Add(r.MinLifetime)) {
		return fmt.Errorf("%w: expires at %s", ErrInvalidTerms, terms.Expiration.Format(time.RFC3339))
	}
	return nil
}
