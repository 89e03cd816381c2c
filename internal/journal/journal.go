package journal

import (
	"sort"
	"time"
)

// Status is the clearing state of a transaction or posting.
type Status int

// Clearing states, written as nothing, "!" and "*" respectively.
const (
	Uncleared Status = iota
	Pending
	Cleared
)

func (s Status) String() string {
	switch s {
	case Cleared:
		return "*"
	case Pending:
		return "!"
	default:
		return ""
	}
}

// Kind distinguishes real postings from the two flavours of virtual posting.
type Kind int

// Posting kinds: plain, "[Account]" (balanced virtual) and "(Account)" (unbalanced virtual).
const (
	Real Kind = iota
	BalancedVirtual
	UnbalancedVirtual
)

// Posting moves an amount into or out of one account.
type Posting struct {
	Account string  `json:"account"`
	Amount  Amount  `json:"amount"`
	Cost    *Amount `json:"cost,omitempty"`
	Price   *Amount `json:"price,omitempty"` // as written after "@" or "@@"
	PerUnit bool    `json:"per_unit,omitempty"`
	Status  Status  `json:"status"`
	Kind    Kind    `json:"kind"`
	Note    string  `json:"note,omitempty"`
	Elided  bool    `json:"elided,omitempty"`
	Line    int     `json:"line"`
}

// EffectiveStatus returns the posting's own status, falling back to its transaction's.
func (p *Posting) EffectiveStatus(x *Transaction) Status {
	if p.Status != Uncleared {
		return p.Status
	}
	return x.Status
}

// weight is what the posting contributes to its transaction's balance.
func (p *Posting) weight() Amount {
	if p.Cost != nil {
		return *p.Cost
	}
	return p.Amount
}

// Transaction is one dated entry of balanced postings.
type Transaction struct {
	Date     time.Time  `json:"date"`
	AuxDate  *time.Time `json:"aux_date,omitempty"`
	Status   Status     `json:"status"`
	Code     string     `json:"code,omitempty"`
	Payee    string     `json:"payee"`
	Note     string     `json:"note,omitempty"`
	Postings []*Posting `json:"postings"`
	Source   string     `json:"source"`
	Line     int        `json:"line"`
}

// Price is a market price recorded by a "P" directive.
type Price struct {
	Date      time.Time `json:"date"`
	Commodity string    `json:"commodity"`
	Price     Amount    `json:"price"`
}

// Journal holds parsed transactions and the declarations seen alongside them.
// Transactions are immutable once a Journal has accepted them; Clone shares them.
type Journal struct {
	Transactions []*Transaction
	Prices       []Price
	Sources      []string

	accounts    map[string]bool // value reports an explicit declaration
	payees      map[string]bool
	tags        map[string]bool
	commodities map[string]*Commodity
}

// New returns an empty journal.
func New() *Journal {
	return &Journal{
		accounts:    make(map[string]bool),
		payees:      make(map[string]bool),
		tags:        make(map[string]bool),
		commodities: make(map[string]*Commodity),
	}
}

// Clone returns a journal that can be extended without affecting j.
func (j *Journal) Clone() *Journal {
	c := &Journal{
		Transactions: append([]*Transaction(nil), j.Transactions...),
		Prices:       append([]Price(nil), j.Prices...),
		Sources:      append([]string(nil), j.Sources...),
		accounts:     make(map[string]bool, len(j.accounts)),
		payees:       make(map[string]bool, len(j.payees)),
		tags:         make(map[string]bool, len(j.tags)),
		commodities:  make(map[string]*Commodity, len(j.commodities)),
	}
	for k, v := range j.accounts {
		c.accounts[k] = v
	}
	for k, v := range j.payees {
		c.payees[k] = v
	}
	for k, v := range j.tags {
		c.tags[k] = v
	}
	for k, v := range j.commodities {
		cp := *v
		c.commodities[k] = &cp
	}
	return c
}

// Accounts returns every account used or declared, sorted.
func (j *Journal) Accounts() []string {
	return sortedKeys(j.accounts)
}

// HasAccount reports whether name was used or declared.
func (j *Journal) HasAccount(name string) bool {
	_, ok := j.accounts[name]
	return ok
}

// Payees returns every payee used or declared, sorted.
func (j *Journal) Payees() []string {
	return sortedKeys(j.payees)
}

// Tags returns every declared tag, sorted.
func (j *Journal) Tags() []string {
	return sortedKeys(j.tags)
}

// Commodities returns every commodity used or declared, sorted by symbol.
// The bare (empty) commodity is omitted.
func (j *Journal) Commodities() []Commodity {
	out := make([]Commodity, 0, len(j.commodities))
	for sym, c := range j.commodities {
		if sym == "" {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Symbol < out[k].Symbol })
	return out
}

// Postings returns the number of postings across all transactions.
func (j *Journal) Postings() int {
	n := 0
	for _, x := range j.Transactions {
		n += len(x.Postings)
	}
	return n
}

// Format renders an amount in the style its commodity was first written in.
func (j *Journal) Format(a Amount) string {
	if c, ok := j.commodities[a.Commodity]; ok {
		return c.Format(a.Quantity)
	}
	return Commodity{Symbol: a.Commodity, Prefix: true}.Format(a.Quantity)
}

func (j *Journal) observeCommodity(style Commodity) {
	if c, ok := j.commodities[style.Symbol]; ok {
		c.learn(style)
		return
	}
	cp := style
	j.commodities[style.Symbol] = &cp
}

func (j *Journal) declareCommodity(style Commodity) {
	if c, ok := j.commodities[style.Symbol]; ok {
		c.Declared = true
		c.learn(style)
		return
	}
	cp := style
	cp.Declared = true
	j.commodities[style.Symbol] = &cp
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
