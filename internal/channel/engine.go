package channel

import (
	"fmt"
	"sync"

	"catalog-service/internal/models"
	"catalog-service/internal/variant"

	"github.com/shopspring/decimal"
)

// Options configure a new Engine.
type Options struct {
	Policy    models.InventoryPolicy
	Apportion ApportionMode
	MinAssets int
	Channels  []models.Channel
}

// Engine owns the variant × channel state of one product. Every mutation
// goes through one of its methods, which edit a copy of the state and then
// run Recompute over it.
type Engine struct {
	mu    sync.Mutex
	state State
	errs  Errors
}

// NewEngine creates an engine with no variants.
func NewEngine(opts Options) *Engine {
	if opts.Policy == "" {
		opts.Policy = models.PolicyUnified
	}
	if opts.Apportion == "" {
		opts.Apportion = ApportionCeiling
	}
	e := &Engine{}
	e.state, e.errs = Recompute(State{
		Policy:    opts.Policy,
		Apportion: opts.Apportion,
		MinAssets: opts.MinAssets,
		Channels:  dedupeChannels(opts.Channels),
	})
	return e
}

// Restore creates an engine from a previously captured state.
func Restore(s State) *Engine {
	e := &Engine{}
	e.state, e.errs = Recompute(s)
	return e
}

func (e *Engine) apply(fn func(*State) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	draft := clone(e.state)
	if err := fn(&draft); err != nil {
		return err
	}
	e.state, e.errs = Recompute(draft)
	return nil
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.state)
}

// Errors returns a copy of the current error map.
func (e *Engine) Errors() Errors {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errs.clone()
}

// Valid reports whether the channel data has no errors.
func (e *Engine) Valid() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errs.Valid()
}

// SetPricing sets the product-level price and list price. Cells that have
// no price of their own are seeded with the new price.
func (e *Engine) SetPricing(price, mrp *decimal.Decimal) error {
	return e.apply(func(s *State) error {
		s.Price, s.MRP = price, mrp
		for i := range s.Variants {
			for j := range s.Variants[i].Entries {
				if s.Variants[i].Entries[j].CellPrice == nil {
					s.Variants[i].Entries[j].CellPrice = price
				}
			}
		}
		return nil
	})
}

// SetProductQuantity sets the starting quantity used to seed split cells.
func (e *Engine) SetProductQuantity(q *int) error {
	return e.apply(func(s *State) error {
		s.Quantity = q
		return nil
	})
}

// ApplyMatrix records the selection and adds a row for every combination
// not yet present. Existing rows are never removed here.
func (e *Engine) ApplyMatrix(sel variant.Selection) (variant.Result, error) {
	res, err := variant.Build(sel)
	if err != nil {
		return variant.Result{}, err
	}
	err = e.apply(func(s *State) error {
		s.Varying = append([]string(nil), sel.Varying...)
		s.Selection = make(map[string][]string, len(sel.Values))
		for k, vals := range sel.Values {
			s.Selection[k] = append([]string(nil), vals...)
		}
		for _, row := range res.Rows {
			if _, err := s.variant(row.Key); err == nil {
				continue
			}
			s.Variants = append(s.Variants, Variant{Key: row.Key, Attributes: row.Attributes})
		}
		return nil
	})
	return res, err
}

// AddVariant adds an ad-hoc combination with its own identifier and assets.
func (e *Engine) AddVariant(pairs []models.AttributePair, externalID models.ExternalProductID, assets []Asset) (string, error) {
	var key string
	err := e.apply(func(s *State) error {
		rows := make([]variant.Row, 0, len(s.Variants))
		for _, v := range s.Variants {
			rows = append(rows, variant.Row{Key: v.Key})
		}
		row, err := variant.Custom(pairs, rows)
		if err != nil {
			return err
		}
		key = row.Key
		s.Variants = append(s.Variants, Variant{
			Key:        row.Key,
			Attributes: row.Attributes,
			Custom:     true,
			ExternalID: externalID,
			Assets:     appendAssets(nil, assets),
		})
		return nil
	})
	return key, err
}

// RemoveVariant deletes a row with its channel entries and asset links.
// Removing the last row resets the variation and channel selection.
func (e *Engine) RemoveVariant(key string) error {
	return e.apply(func(s *State) error {
		if _, err := s.variant(key); err != nil {
			return err
		}
		kept := s.Variants[:0]
		for _, v := range s.Variants {
			if v.Key != key {
				kept = append(kept, v)
			}
		}
		s.Variants = kept
		if len(s.Variants) == 0 {
			s.Variants = nil
			s.Varying = nil
			s.Selection = nil
			s.Channels = nil
		}
		return nil
	})
}

// EnableChannel adds ch; every variant gets a seeded entry for it.
func (e *Engine) EnableChannel(ch models.Channel) error {
	return e.apply(func(s *State) error {
		if !s.hasChannel(ch) {
			s.Channels = append(s.Channels, ch)
		}
		return nil
	})
}

// DisableChannel removes ch and its entry from every variant.
func (e *Engine) DisableChannel(ch models.Channel) error {
	return e.apply(func(s *State) error {
		kept := s.Channels[:0]
		for _, c := range s.Channels {
			if c != ch {
				kept = append(kept, c)
			}
		}
		s.Channels = kept
		return nil
	})
}

// SetSamePrice toggles mirroring the product price into every cell. Cell
// prices entered while the toggle was off are kept and return when it is
// switched off again.
func (e *Engine) SetSamePrice(on bool) error {
	return e.apply(func(s *State) error {
		s.SamePrice = on
		return nil
	})
}

// SetPolicy switches the inventory policy. Moving to UNIFIED redistributes
// each variant's split total; moving to SPLIT clears the cells for re-entry.
func (e *Engine) SetPolicy(p models.InventoryPolicy) error {
	return e.apply(func(s *State) error {
		if s.Policy == p {
			return nil
		}
		for i := range s.Variants {
			v := &s.Variants[i]
			switch p {
			case models.PolicyUnified:
				v.TotalQuantity = splitTotal(v.Entries)
			case models.PolicySplit:
				v.TotalQuantity = nil
				for j := range v.Entries {
					v.Entries[j].Quantity = nil
				}
			}
		}
		s.Policy = p
		return nil
	})
}

// SetTotalQuantity sets a variant's pooled quantity. UNIFIED only.
func (e *Engine) SetTotalQuantity(key string, q *int) error {
	return e.apply(func(s *State) error {
		if s.Policy != models.PolicyUnified {
			return fmt.Errorf("%w: total quantity requires UNIFIED policy", models.ErrReadOnlyField)
		}
		v, err := s.variant(key)
		if err != nil {
			return err
		}
		v.TotalQuantity = q
		return nil
	})
}

// SetChannelQuantity sets one cell's quantity. SPLIT only.
func (e *Engine) SetChannelQuantity(key string, ch models.Channel, q *int) error {
	return e.apply(func(s *State) error {
		if s.Policy != models.PolicySplit {
			return fmt.Errorf("%w: channel quantity requires SPLIT policy", models.ErrReadOnlyField)
		}
		entry, err := cell(s, key, ch)
		if err != nil {
			return err
		}
		entry.Quantity = q
		return nil
	})
}

// SetChannelPrice sets one cell's price. Read-only while same price is on.
func (e *Engine) SetChannelPrice(key string, ch models.Channel, price *decimal.Decimal) error {
	return e.apply(func(s *State) error {
		if s.SamePrice {
			return fmt.Errorf("%w: price is shared across channels", models.ErrReadOnlyField)
		}
		entry, err := cell(s, key, ch)
		if err != nil {
			return err
		}
		entry.CellPrice = price
		return nil
	})
}

// SetChannelMRP overrides the list price of one cell.
func (e *Engine) SetChannelMRP(key string, ch models.Channel, mrp *decimal.Decimal) error {
	return e.apply(func(s *State) error {
		entry, err := cell(s, key, ch)
		if err != nil {
			return err
		}
		entry.MRP = mrp
		return nil
	})
}

// SetExternalID changes a variant's code. Any previous uniqueness result is
// dropped until the new value is checked.
func (e *Engine) SetExternalID(key string, id models.ExternalProductID) error {
	return e.apply(func(s *State) error {
		v, err := s.variant(key)
		if err != nil {
			return err
		}
		v.ExternalID = id
		v.IdentifierTaken = false
		return nil
	})
}

// ApplyIdentifierResult records a uniqueness check. Results for a value the
// variant no longer holds are ignored.
func (e *Engine) ApplyIdentifierResult(key, value string, taken bool) error {
	return e.apply(func(s *State) error {
		v, err := s.variant(key)
		if err != nil {
			return err
		}
		if v.ExternalID.Value == value {
			v.IdentifierTaken = taken
		}
		return nil
	})
}

// AttachAssets appends assets, keeping a flagged back view last.
func (e *Engine) AttachAssets(key string, assets ...Asset) error {
	return e.apply(func(s *State) error {
		v, err := s.variant(key)
		if err != nil {
			return err
		}
		v.Assets = appendAssets(v.Assets, assets)
		return nil
	})
}

// DetachAsset removes an asset link from a variant. The asset itself is
// left alone.
func (e *Engine) DetachAsset(key, assetID string) error {
	return e.apply(func(s *State) error {
		v, err := s.variant(key)
		if err != nil {
			return err
		}
		kept := v.Assets[:0]
		for _, a := range v.Assets {
			if a.ID != assetID {
				kept = append(kept, a)
			}
		}
		v.Assets = kept
		return nil
	})
}

// MarkBackView flags assetID as the variant's back view, clearing the flag
// elsewhere. Recompute moves it to the last position.
func (e *Engine) MarkBackView(key, assetID string) error {
	return e.apply(func(s *State) error {
		v, err := s.variant(key)
		if err != nil {
			return err
		}
		found := false
		for i := range v.Assets {
			v.Assets[i].BackView = v.Assets[i].ID == assetID
			found = found || v.Assets[i].BackView
		}
		if !found {
			return fmt.Errorf("%w: asset %s is not attached to %s", models.ErrValidationFailed, assetID, key)
		}
		return nil
	})
}

// Finalize gives every unsaved variant a persisted id from next and returns
// the resulting state. When the current state has errors nothing changes and
// the error map is returned instead.
func (e *Engine) Finalize(next func() string) (State, Errors) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.errs.Valid() {
		return State{}, e.errs.clone()
	}
	draft := clone(e.state)
	for i := range draft.Variants {
		if draft.Variants[i].ID == "" {
			draft.Variants[i].ID = next()
		}
	}
	e.state, e.errs = Recompute(draft)
	return clone(e.state), nil
}

// GroupSummary aggregates the variants sharing one grouping value.
type GroupSummary struct {
	Value         string           `json:"value"`
	Keys          []string         `json:"keys"`
	TotalQuantity int              `json:"totalQuantity"`
	MinPrice      *decimal.Decimal `json:"minPrice"`
	MaxPrice      *decimal.Decimal `json:"maxPrice"`
}

// Groups summarises variants grouped by attribute.
func (e *Engine) Groups(attribute string) []GroupSummary {
	s := e.Snapshot()

	rows := make([]variant.Row, 0, len(s.Variants))
	byKey := make(map[string]*Variant, len(s.Variants))
	for i := range s.Variants {
		rows = append(rows, variant.Row{Key: s.Variants[i].Key, Attributes: s.Variants[i].Attributes})
		byKey[s.Variants[i].Key] = &s.Variants[i]
	}

	groups := variant.GroupBy(rows, attribute)
	out := make([]GroupSummary, 0, len(groups))
	for _, g := range groups {
		sum := GroupSummary{Value: g.Value, Keys: g.Keys}
		for _, key := range g.Keys {
			v := byKey[key]
			if v.DisplayTotal != nil {
				sum.TotalQuantity += *v.DisplayTotal
			}
			for _, entry := range v.Entries {
				if entry.Price == nil {
					continue
				}
				p := *entry.Price
				if sum.MinPrice == nil || p.LessThan(*sum.MinPrice) {
					sum.MinPrice = &p
				}
				if sum.MaxPrice == nil || p.GreaterThan(*sum.MaxPrice) {
					sum.MaxPrice = &p
				}
			}
		}
		out = append(out, sum)
	}
	return out
}

func cell(s *State, key string, ch models.Channel) (*Entry, error) {
	v, err := s.variant(key)
	if err != nil {
		return nil, err
	}
	entry, ok := v.Entry(ch)
	if !ok {
		return nil, fmt.Errorf("%w: channel %s is not enabled", models.ErrValidationFailed, ch)
	}
	return entry, nil
}

func splitTotal(entries []Entry) *int {
	if len(entries) == 0 {
		return nil
	}
	sum := 0
	for _, e := range entries {
		if e.Quantity == nil {
			return nil
		}
		sum += *e.Quantity
	}
	return &sum
}

func appendAssets(existing, added []Asset) []Asset {
	seen := make(map[string]bool, len(existing)+len(added))
	out := make([]Asset, 0, len(existing)+len(added))
	for _, a := range existing {
		seen[a.ID] = true
		out = append(out, a)
	}
	for _, a := range added {
		if a.ID == "" || seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return normalizeAssets(out)
}

func dedupeChannels(chs []models.Channel) []models.Channel {
	var out []models.Channel
	seen := make(map[models.Channel]bool, len(chs))
	for _, c := range chs {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
