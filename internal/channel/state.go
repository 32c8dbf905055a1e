package channel

import (
	"fmt"

	"catalog-service/internal/models"

	"github.com/shopspring/decimal"
)

// ProductKey holds errors that belong to the product rather than a variant.
const ProductKey = "_product"

// CellStatus is the state of one variant × channel cell.
type CellStatus string

const (
	StatusMissing CellStatus = "MISSING"
	StatusInvalid CellStatus = "INVALID"
	StatusValid   CellStatus = "VALID"
)

// ApportionMode decides how a unified total is spread across channels.
type ApportionMode string

const (
	// ApportionCeiling writes ceil(total/n) into every channel.
	ApportionCeiling ApportionMode = "ceiling"
	// ApportionRemainder gives the first total%n channels one extra unit so
	// the cells sum to the total.
	ApportionRemainder ApportionMode = "remainder"
)

// ParseApportionMode validates a mode name.
func ParseApportionMode(s string) (ApportionMode, error) {
	switch m := ApportionMode(s); m {
	case ApportionCeiling, ApportionRemainder:
		return m, nil
	}
	return "", fmt.Errorf("unknown apportion mode %q", s)
}

// Entry is one channel cell of a variant. Pointer fields are never mutated
// in place; a change replaces the pointer.
type Entry struct {
	Channel   models.Channel   `json:"channel"`
	Price     *decimal.Decimal `json:"price"`
	CellPrice *decimal.Decimal `json:"cellPrice"`
	Quantity  *int             `json:"quantity"`
	MRP       *decimal.Decimal `json:"mrp,omitempty"`
	Status    CellStatus       `json:"status"`
}

// Asset is an asset reference in a variant's ordered list.
type Asset struct {
	ID       string           `json:"id"`
	URL      string           `json:"url"`
	Kind     models.AssetKind `json:"kind"`
	BackView bool             `json:"backView"`
}

// Variant is one row of the editor.
type Variant struct {
	Key             string                   `json:"key"`
	ID              string                   `json:"id,omitempty"`
	Attributes      models.AttributePairs    `json:"attributes"`
	Custom          bool                     `json:"custom,omitempty"`
	ExternalID      models.ExternalProductID `json:"externalId"`
	IdentifierTaken bool                     `json:"identifierTaken,omitempty"`
	TotalQuantity   *int                     `json:"totalQuantity"`
	DisplayTotal    *int                     `json:"displayTotal"`
	Entries         []Entry                  `json:"entries"`
	Assets          []Asset                  `json:"assets"`
}

// Entry returns the cell for ch.
func (v *Variant) Entry(ch models.Channel) (*Entry, bool) {
	for i := range v.Entries {
		if v.Entries[i].Channel == ch {
			return &v.Entries[i], true
		}
	}
	return nil, false
}

// State is the full editor state of one product.
type State struct {
	Policy    models.InventoryPolicy `json:"policy"`
	Apportion ApportionMode          `json:"apportion"`
	MinAssets int                    `json:"minAssets"`
	Channels  []models.Channel       `json:"channels"`
	SamePrice bool                   `json:"samePrice"`
	Price     *decimal.Decimal       `json:"price"`
	MRP       *decimal.Decimal       `json:"mrp"`
	Quantity  *int                   `json:"quantity"`
	Varying   []string               `json:"varying"`
	Selection map[string][]string    `json:"selection"`
	Variants  []Variant              `json:"variants"`
}

func (s *State) variant(key string) (*Variant, error) {
	for i := range s.Variants {
		if s.Variants[i].Key == key {
			return &s.Variants[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrVariantNotFound, key)
}

func (s *State) hasChannel(ch models.Channel) bool {
	for _, c := range s.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// Errors maps a variant key (or ProductKey) to field → message.
type Errors map[string]map[string]string

// Valid reports whether no errors were recorded.
func (e Errors) Valid() bool {
	for _, fields := range e {
		if len(fields) > 0 {
			return false
		}
	}
	return true
}

func (e Errors) add(key, field, msg string) {
	if e[key] == nil {
		e[key] = make(map[string]string)
	}
	e[key][field] = msg
}

func (e Errors) clone() Errors {
	out := make(Errors, len(e))
	for k, fields := range e {
		m := make(map[string]string, len(fields))
		for f, msg := range fields {
			m[f] = msg
		}
		out[k] = m
	}
	return out
}

// Field names used in Errors.
func priceField(ch models.Channel) string    { return "price." + string(ch) }
func quantityField(ch models.Channel) string { return "quantity." + string(ch) }

const (
	fieldQuantity   = "quantity"
	fieldAssets     = "assets"
	fieldBackView   = "backView"
	fieldExternalID = "externalId"
	fieldChannels   = "channels"
)

// Apportion splits total across n channels.
func Apportion(total, n int, mode ApportionMode) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, n)
	if mode == ApportionRemainder {
		base, rem := total/n, total%n
		for i := range out {
			out[i] = base
			if i < rem {
				out[i]++
			}
		}
		return out
	}
	share := (total + n - 1) / n
	for i := range out {
		out[i] = share
	}
	return out
}

// Recompute derives the next state and its error map from s. It is pure:
// s is not modified.
func Recompute(s State) (State, Errors) {
	next := clone(s)
	errs := make(Errors)

	if len(next.Variants) > 0 && len(next.Channels) == 0 {
		errs.add(ProductKey, fieldChannels, "at least one channel must be enabled")
	}

	for i := range next.Variants {
		v := &next.Variants[i]
		v.Entries = reconcileEntries(next, v.Entries)
		applyQuantities(next, v)
		applyPrices(next, v)
		v.Assets = normalizeAssets(v.Assets)
		validateVariant(next, v, errs)
	}
	return next, errs
}

// reconcileEntries keeps one entry per enabled channel, in channel order,
// seeding entries for newly enabled channels from product defaults.
func reconcileEntries(s State, entries []Entry) []Entry {
	out := make([]Entry, 0, len(s.Channels))
	for _, ch := range s.Channels {
		var found *Entry
		for i := range entries {
			if entries[i].Channel == ch {
				found = &entries[i]
				break
			}
		}
		if found != nil {
			out = append(out, *found)
			continue
		}
		seed := Entry{Channel: ch, CellPrice: s.Price}
		if s.Policy == models.PolicySplit {
			seed.Quantity = s.Quantity
		}
		out = append(out, seed)
	}
	return out
}

func applyQuantities(s State, v *Variant) {
	if s.Policy == models.PolicyUnified {
		v.DisplayTotal = v.TotalQuantity
		if v.TotalQuantity == nil {
			for i := range v.Entries {
				v.Entries[i].Quantity = nil
			}
			return
		}
		shares := Apportion(*v.TotalQuantity, len(v.Entries), s.Apportion)
		for i := range v.Entries {
			q := shares[i]
			v.Entries[i].Quantity = &q
		}
		return
	}

	var sum int
	present := false
	for _, e := range v.Entries {
		if e.Quantity != nil {
			sum += *e.Quantity
			present = true
		}
	}
	v.DisplayTotal = nil
	if present {
		v.DisplayTotal = &sum
	}
}

func applyPrices(s State, v *Variant) {
	for i := range v.Entries {
		if s.SamePrice {
			v.Entries[i].Price = s.Price
		} else {
			v.Entries[i].Price = v.Entries[i].CellPrice
		}
	}
}

// normalizeAssets keeps at most one back-view asset and moves it last.
func normalizeAssets(assets []Asset) []Asset {
	back := -1
	for i := range assets {
		if assets[i].BackView {
			back = i
		}
	}
	out := make([]Asset, 0, len(assets))
	for i, a := range assets {
		if i == back {
			continue
		}
		a.BackView = false
		out = append(out, a)
	}
	if back >= 0 {
		out = append(out, assets[back])
	}
	return out
}

func validateVariant(s State, v *Variant, errs Errors) {
	if s.Policy == models.PolicyUnified {
		if v.TotalQuantity == nil {
			errs.add(v.Key, fieldQuantity, "quantity is required")
		} else if *v.TotalQuantity < 0 {
			errs.add(v.Key, fieldQuantity, "quantity must be a non-negative integer")
		}
	}

	for i := range v.Entries {
		e := &v.Entries[i]
		missing, invalid := false, false

		switch {
		case e.Price == nil:
			missing = true
			errs.add(v.Key, priceField(e.Channel), "price is required")
		case !e.Price.GreaterThan(decimal.Zero):
			invalid = true
			errs.add(v.Key, priceField(e.Channel), "price must be greater than 0")
		default:
			mrp := e.MRP
			if mrp == nil {
				mrp = s.MRP
			}
			if mrp != nil && !e.Price.LessThan(*mrp) {
				invalid = true
				errs.add(v.Key, priceField(e.Channel), "price must be less than mrp")
			}
		}

		switch {
		case e.Quantity == nil:
			missing = true
			if s.Policy == models.PolicySplit {
				errs.add(v.Key, quantityField(e.Channel), "quantity is required")
			}
		case *e.Quantity < 0:
			invalid = true
			if s.Policy == models.PolicySplit {
				errs.add(v.Key, quantityField(e.Channel), "quantity must be a non-negative integer")
			}
		}

		switch {
		case missing:
			e.Status = StatusMissing
		case invalid:
			e.Status = StatusInvalid
		default:
			e.Status = StatusValid
		}
	}

	if len(v.Assets) < s.MinAssets {
		errs.add(v.Key, fieldAssets, fmt.Sprintf("at least %d assets are required", s.MinAssets))
	}
	if n := len(v.Assets); n == 0 || !v.Assets[n-1].BackView {
		errs.add(v.Key, fieldBackView, "a back view asset is required")
	}
	if v.IdentifierTaken {
		errs.add(v.Key, fieldExternalID, models.ErrDuplicateIdentifier.Error())
	}
}

func clone(s State) State {
	out := s
	out.Channels = append([]models.Channel(nil), s.Channels...)
	out.Varying = append([]string(nil), s.Varying...)
	if s.Selection != nil {
		out.Selection = make(map[string][]string, len(s.Selection))
		for k, vals := range s.Selection {
			out.Selection[k] = append([]string(nil), vals...)
		}
	}
	out.Variants = make([]Variant, len(s.Variants))
	for i, v := range s.Variants {
		v.Attributes = append(models.AttributePairs(nil), v.Attributes...)
		v.Entries = append([]Entry(nil), v.Entries...)
		v.Assets = append([]Asset(nil), v.Assets...)
		out.Variants[i] = v
	}
	return out
}
