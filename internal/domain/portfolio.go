// Package domain holds the portfolio document model and its derived
// computations. Everything here is pure: values are immutable, mutation
// helpers return new values, and nothing touches I/O.
package domain

import "encoding/json"

// Schema and default constants for the portfolio document.
const (
	SchemaVersion   = 1
	DefaultCurrency = "INR"
	DefaultKind     = "stock"
)

// Lot is one discrete purchase record contributing to a holding's cost basis.
// Lots are append-only; they are never edited or removed.
type Lot struct {
	Qty   float64 `json:"qty"`
	Price float64 `json:"price"`
	Date  string  `json:"date"` // ISO calendar date, yyyy-MM-dd
}

// Holding groups the lots of one symbol. At most one holding exists per
// distinct symbol within a portfolio; the symbol is the upsert merge key.
type Holding struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
	Lots     []Lot  `json:"lots"`
}

// Portfolio is the authoritative document. It is replaced wholesale on every
// mutation, never field-patched.
type Portfolio struct {
	Version              int       `json:"version"`
	DisplayCurrency      string    `json:"displayCurrency"`
	Holdings             []Holding `json:"holdings"`
	LastModifiedAt       string    `json:"lastModifiedAt,omitempty"`
	LastModifiedByClient string    `json:"lastModifiedByClient"`
}

// New returns an empty portfolio with schema defaults.
func New() Portfolio {
	return Portfolio{
		Version:         SchemaVersion,
		DisplayCurrency: DefaultCurrency,
		Holdings:        []Holding{},
	}
}

// Decode parses a portfolio document. Fields absent from the JSON keep their
// schema defaults (version=1, displayCurrency=INR, empty holdings).
func Decode(data []byte) (Portfolio, error) {
	p := New()
	if err := json.Unmarshal(data, &p); err != nil {
		return Portfolio{}, err
	}
	if p.Holdings == nil {
		p.Holdings = []Holding{}
	}
	return p, nil
}

// Encode serializes a portfolio document.
func Encode(p Portfolio) ([]byte, error) {
	return json.Marshal(p)
}

// UpsertLot returns a new portfolio with a lot appended to the holding that
// matches symbol, or with a new holding created when no match exists. Holding
// order is insertion order of first lot; lot order within a holding is
// append order. The receiver is never mutated.
func (p Portfolio) UpsertLot(symbol string, qty, price float64, dateISO string) Portfolio {
	lot := Lot{Qty: qty, Price: price, Date: dateISO}

	updated := make([]Holding, len(p.Holdings))
	copy(updated, p.Holdings)

	for i, h := range updated {
		if h.Symbol == symbol {
			lots := make([]Lot, len(h.Lots), len(h.Lots)+1)
			copy(lots, h.Lots)
			updated[i].Lots = append(lots, lot)
			out := p
			out.Holdings = updated
			return out
		}
	}

	updated = append(updated, Holding{
		ID:       symbol, // stable identity, currently the symbol itself
		Kind:     DefaultKind,
		Symbol:   symbol,
		Currency: DefaultCurrency,
		Lots:     []Lot{lot},
	})
	out := p
	out.Holdings = updated
	return out
}

// FindHolding returns the holding for symbol, if present.
func (p Portfolio) FindHolding(symbol string) (Holding, bool) {
	for _, h := range p.Holdings {
		if h.Symbol == symbol {
			return h, true
		}
	}
	return Holding{}, false
}

// TotalQty is the sum of lot quantities.
func (h Holding) TotalQty() float64 {
	var q float64
	for _, l := range h.Lots {
		q += l.Qty
	}
	return q
}

// Invested is the capital put into the holding: sum(qty*price) over lots.
func (h Holding) Invested() float64 {
	var c float64
	for _, l := range h.Lots {
		c += l.Qty * l.Price
	}
	return c
}

// AvgCost is invested capital divided by total quantity, 0 when total
// quantity is not positive.
func (h Holding) AvgCost() float64 {
	q := h.TotalQty()
	if q <= 0 {
		return 0
	}
	return h.Invested() / q
}

// CurrentValue is total quantity times the last known price.
func (h Holding) CurrentValue(lastPrice float64) float64 {
	return h.TotalQty() * lastPrice
}

// PnLAbs is current value minus invested capital.
func (h Holding) PnLAbs(lastPrice float64) float64 {
	return h.CurrentValue(lastPrice) - h.Invested()
}

// PnLPct is absolute P&L as a percentage of invested capital, 0 when the
// invested capital is not positive.
func (h Holding) PnLPct(lastPrice float64) float64 {
	invested := h.Invested()
	if invested <= 0 {
		return 0
	}
	return h.PnLAbs(lastPrice) / invested * 100.0
}
