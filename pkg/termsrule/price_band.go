package termsrule

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joripage/orderbook-sync/pkg/orderbook"
	"github.com/shopspring/decimal"
)

// PriceBand is the allowed taker/maker price range of one pair.
type PriceBand struct {
	Floor decimal.Decimal `json:"floor"`
	Ceil  decimal.Decimal `json:"ceil"` // zero = no ceiling
}

// PriceBandRule bounds the taker/maker price per directional pair, keyed
// "makerAsset/takerAsset". Pairs without a band pass.
type PriceBandRule struct {
	Bands map[string]PriceBand
}

// NewPriceBandRuleFromFile loads bands from a JSON file.
func NewPriceBandRuleFromFile(path string) (*PriceBandRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var bands map[string]PriceBand
	if err := json.Unmarshal(data, &bands); err != nil {
		return nil, err
	}

	return &PriceBandRule{Bands: bands}, nil
}

func (r *PriceBandRule) Check(terms orderbook.Terms) error {
	band, ok := r.Bands[terms.MakerAsset+"/"+terms.TakerAsset]
	if !ok {
		return nil
	}

	price := terms.Price()
	if price.LessThan(band.Floor) || (band.Ceil.IsPositive() && price.GreaterThan(band.Ceil)) {
		return fmt.Errorf("%w: price %s outside [%s, %s]", ErrInvalidTerms, price, band.Floor, band.Ceil)
	}
	return nil
}
