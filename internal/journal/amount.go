package journal

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Amount is a quantity of a single commodity. An empty Commodity is a bare number.
type Amount struct {
	Commodity string          `json:"commodity"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// IsZero reports whether the quantity is zero.
func (a Amount) IsZero() bool { return a.Quantity.IsZero() }

// Neg returns the amount with its sign flipped.
func (a Amount) Neg() Amount {
	return Amount{Commodity: a.Commodity, Quantity: a.Quantity.Neg()}
}

// Commodity records how a commodity was written the first time it was seen,
// so reports print amounts the way the journal author wrote them.
type Commodity struct {
	Symbol    string `json:"symbol"`
	Prefix    bool   `json:"prefix"`
	Spaced    bool   `json:"spaced"`
	Thousands bool   `json:"thousands"`
	Precision int32  `json:"precision"`
	Declared  bool   `json:"declared"`

	seen bool // placement fixed by an actual usage or a formatted declaration
}

// learn folds one more observed usage into the display style.
// Placement is fixed by the first usage; precision only grows.
func (c *Commodity) learn(s Commodity) {
	if !c.seen && s.seen {
		c.Prefix, c.Spaced, c.seen = s.Prefix, s.Spaced, true
	}
	if s.Precision > c.Precision {
		c.Precision = s.Precision
	}
	if s.Thousands {
		c.Thousands = true
	}
}

// Format renders q using the commodity's display style.
func (c Commodity) Format(q decimal.Decimal) string {
	num := formatNumber(q.Abs(), c.Precision, c.Thousands)
	sign := ""
	if q.IsNegative() && !q.Round(c.Precision).IsZero() {
		sign = "-"
	}
	sym := quoteCommodity(c.Symbol)
	if sym == "" {
		return sign + num
	}

	sep := ""
	if c.Spaced {
		sep = " "
	}
	if c.Prefix {
		return sym + sep + sign + num
	}
	return sign + num + sep + sym
}

func formatNumber(q decimal.Decimal, precision int32, thousands bool) string {
	s := q.StringFixed(precision)
	if !thousands {
		return s
	}

	intPart, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

func quoteCommodity(sym string) string {
	if sym == "" {
		return ""
	}
	for _, r := range sym {
		if unicode.IsSpace(r) || unicode.IsDigit(r) || strings.ContainsRune("-+.,;@=()[]", r) {
			return `"` + sym + `"`
		}
	}
	return sym
}

// Balance is a sum of amounts across commodities. The zero value is an empty balance.
type Balance struct {
	amounts map[string]decimal.Decimal
}

// Add accumulates a into the balance.
func (b *Balance) Add(a Amount) {
	if b.amounts == nil {
		b.amounts = make(map[string]decimal.Decimal)
	}
	b.amounts[a.Commodity] = b.amounts[a.Commodity].Add(a.Quantity)
}

// Merge adds every amount of o into b.
func (b *Balance) Merge(o Balance) {
	for c, q := range o.amounts {
		b.Add(Amount{Commodity: c, Quantity: q})
	}
}

// Amounts returns the non-zero amounts sorted by commodity symbol.
func (b Balance) Amounts() []Amount {
	out := make([]Amount, 0, len(b.amounts))
	for c, q := range b.amounts {
		if q.IsZero() {
			continue
		}
		out = append(out, Amount{Commodity: c, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Commodity < out[j].Commodity })
	return out
}

// IsZero reports whether every commodity in the balance sums to zero.
func (b Balance) IsZero() bool {
	for _, q := range b.amounts {
		if !q.IsZero() {
			return false
		}
	}
	return true
}

// parseAmount parses a written amount such as "$1,000.00", "-$5", "$-5",
// "10 EUR" or `5 "ACME Corp"`. It returns the amount and the style it was
// written in.
func parseAmount(s string) (Amount, Commodity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, Commodity{}, fmt.Errorf("empty amount")
	}

	neg := false
	if s[0] == '-' || s[0] == '+' {
		neg = s[0] == '-'
		s = strings.TrimLeft(s[1:], " \t")
	}

	var (
		style  Commodity
		numStr string
	)
	if startsNumber(s) {
		numStr, s = splitNumber(s)
		rest := strings.TrimLeft(s, " \t")
		style.Spaced = len(rest) != len(s)
		sym, tail, err := readCommodity(rest)
		if err != nil {
			return Amount{}, Commodity{}, err
		}
		if strings.TrimSpace(tail) != "" {
			return Amount{}, Commodity{}, fmt.Errorf("unexpected %q after amount", strings.TrimSpace(tail))
		}
		style.Symbol = sym
	} else {
		sym, tail, err := readCommodity(s)
		if err != nil {
			return Amount{}, Commodity{}, err
		}
		if sym == "" {
			return Amount{}, Commodity{}, fmt.Errorf("invalid amount %q", s)
		}
		style.Symbol = sym
		style.Prefix = true
		rest := strings.TrimLeft(tail, " \t")
		style.Spaced = len(rest) != len(tail)
		if rest != "" && rest[0] == '-' {
			neg = !neg
			rest = strings.TrimLeft(rest[1:], " \t")
		}
		if !startsNumber(rest) {
			return Amount{}, Commodity{}, fmt.Errorf("missing quantity after commodity %q", sym)
		}
		numStr, rest = splitNumber(rest)
		if strings.TrimSpace(rest) != "" {
			return Amount{}, Commodity{}, fmt.Errorf("unexpected %q after amount", strings.TrimSpace(rest))
		}
	}

	q, precision, thousands, err := parseQuantity(numStr)
	if err != nil {
		return Amount{}, Commodity{}, err
	}
	if neg {
		q = q.Neg()
	}
	style.Precision = precision
	style.Thousands = thousands
	style.seen = true

	return Amount{Commodity: style.Symbol, Quantity: q}, style, nil
}

func startsNumber(s string) bool {
	return s != "" && (s[0] >= '0' && s[0] <= '9' || s[0] == '.')
}

func splitNumber(s string) (num, rest string) {
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.' || s[i] == ',') {
		i++
	}
	return s[:i], s[i:]
}

func parseQuantity(s string) (decimal.Decimal, int32, bool, error) {
	thousands := strings.Contains(s, ",")
	if thousands {
		intPart, _, _ := strings.Cut(s, ".")
		groups := strings.Split(intPart, ",")
		for i, g := range groups {
			if (i == 0 && (len(g) == 0 || len(g) > 3)) || (i > 0 && len(g) != 3) {
				return decimal.Decimal{}, 0, false, fmt.Errorf("misplaced thousands separator in %q", s)
			}
		}
	}

	plain := strings.ReplaceAll(s, ",", "")
	q, err := decimal.NewFromString(plain)
	if err != nil {
		return decimal.Decimal{}, 0, false, fmt.Errorf("invalid quantity %q", s)
	}

	var precision int32
	if _, frac, ok := strings.Cut(plain, "."); ok {
		precision = int32(len(frac))
	}
	return q, precision, thousands, nil
}

// readCommodity reads a quoted or bare commodity symbol from the front of s.
func readCommodity(s string) (sym, rest string, err error) {
	if s == "" {
		return "", "", nil
	}
	if s[0] == '"' {
		end := strings.IndexByte(s[1:], '"')
		if end < 0 {
			return "", "", fmt.Errorf("unterminated quoted commodity")
		}
		return s[1 : end+1], s[end+2:], nil
	}

	i := 0
	for i < len(s) {
		c := s[i]
		if c >= '0' && c <= '9' || c == ' ' || c == '\t' || strings.IndexByte("-+.,;@=()[]{}\"", c) >= 0 {
			break
		}
		i++
	}
	return s[:i], s[i:], nil
}
