package orderbook

import (
	"slices"

	"github.com/gammazero/deque"
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideAny Side = ""
	SideAsk Side = "ASK"
	SideBid Side = "BID"
)

// AssetPair names a market as base/quote.
type AssetPair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// bookKey is a directional pair: orders that give maker for taker.
type bookKey struct {
	maker string
	taker string
}

type priceLevel struct {
	price  decimal.Decimal
	hashes *deque.Deque[string]
}

// halfBook keeps the levels of one bookKey sorted by taker/maker price,
// lowest first, which is the best rate for a taker whichever side of the
// pair the caller looks from.
type halfBook struct {
	levels map[string]*priceLevel
	prices []decimal.Decimal
}

type location struct {
	key   bookKey
	price string
}

type priceIndex struct {
	books   map[bookKey]*halfBook
	located map[string]location
}

func newPriceIndex() *priceIndex {
	return &priceIndex{
		books:   make(map[bookKey]*halfBook),
		located: make(map[string]location),
	}
}

func keyOf(o *Order) bookKey {
	return bookKey{maker: o.Terms.MakerAsset, taker: o.Terms.TakerAsset}
}

func (ix *priceIndex) contains(hash string) bool {
	_, ok := ix.located[hash]
	return ok
}

// sameSlot reports whether the order is indexed at the place it would be
// added to, so an update can keep its time priority.
func (ix *priceIndex) sameSlot(o *Order) bool {
	loc, ok := ix.located[o.Hash]
	return ok && loc.key == keyOf(o) && loc.price == o.Terms.Price().String()
}

func (ix *priceIndex) add(o *Order) {
	key := keyOf(o)
	price := o.Terms.Price()
	priceKey := price.String()

	book := ix.books[key]
	if book == nil {
		book = &halfBook{levels: make(map[string]*priceLevel)}
		ix.books[key] = book
	}

	level := book.levels[priceKey]
	if level == nil {
		level = &priceLevel{price: price, hashes: &deque.Deque[string]{}}
		book.levels[priceKey] = level
		at, _ := slices.BinarySearchFunc(book.prices, price, func(a, b decimal.Decimal) int {
			return a.Cmp(b)
		})
		book.prices = slices.Insert(book.prices, at, price)
	}
	level.hashes.PushBack(o.Hash)
	ix.located[o.Hash] = location{key: key, price: priceKey}
}

func (ix *priceIndex) remove(hash string) {
	loc, ok := ix.located[hash]
	if !ok {
		return
	}
	delete(ix.located, hash)

	book := ix.books[loc.key]
	level := book.levels[loc.price]
	if i := level.hashes.Index(func(h string) bool { return h == hash }); i >= 0 {
		level.hashes.Remove(i)
	}
	if level.hashes.Len() > 0 {
		return
	}

	delete(book.levels, loc.price)
	if at, found := slices.BinarySearchFunc(book.prices, level.price, func(a, b decimal.Decimal) int {
		return a.Cmp(b)
	}); found {
		book.prices = slices.Delete(book.prices, at, at+1)
	}
	if len(book.levels) == 0 {
		delete(ix.books, loc.key)
	}
}

// walk visits the hashes of one directional book in price-time order until
// visit returns false.
func (ix *priceIndex) walk(key bookKey, visit func(hash string) bool) {
	book := ix.books[key]
	if book == nil {
		return
	}
	for _, price := range book.prices {
		level := book.levels[price.String()]
		for i := 0; i < level.hashes.Len(); i++ {
			if !visit(level.hashes.At(i)) {
				return
			}
		}
	}
}

// depth returns the number of indexed orders per directional book.
func (ix *priceIndex) depth(key bookKey) int {
	book := ix.books[key]
	if book == nil {
		return 0
	}
	n := 0
	for _, level := range book.levels {
		n += level.hashes.Len()
	}
	return n
}
