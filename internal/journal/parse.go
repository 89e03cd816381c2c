package journal

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DefaultSource names byte buffers that arrive without a file name.
const DefaultSource = "<buffer>"

const unspecifiedPayee = "<Unspecified payee>"

// Parse parses data as a standalone journal.
func Parse(source string, data []byte) (*Journal, error) {
	return New().Extend(source, data)
}

// Extend returns a copy of j with the contents of data appended. j itself is
// never modified, so a failed parse leaves the caller's journal exactly as it was.
func (j *Journal) Extend(source string, data []byte) (*Journal, error) {
	if source == "" {
		source = DefaultSource
	}
	p := &parser{j: j.Clone(), source: source}
	if err := p.parse(string(data)); err != nil {
		return nil, err
	}
	p.j.Sources = append(p.j.Sources, source)
	return p.j, nil
}

type parser struct {
	j      *Journal
	source string
	year   int

	cur         *Transaction
	block       string // open "comment"/"test" block
	inDirective bool   // indented lines belong to the previous directive
}

func (p *parser) errorf(line, col int, format string, args ...any) error {
	return &ParseError{Source: p.source, Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parse(text string) error {
	text = strings.TrimPrefix(text, "\ufeff")
	lines := strings.Split(text, "\n")

	for i, raw := range lines {
		lineNo := i + 1
		raw = strings.TrimSuffix(raw, "\r")
		trimmed := strings.TrimSpace(raw)

		if p.block != "" {
			if trimmed == "end "+p.block {
				p.block = ""
			}
			continue
		}

		if trimmed == "" {
			if err := p.finish(); err != nil {
				return err
			}
			p.inDirective = false
			continue
		}

		switch c := raw[0]; {
		case c == ' ' || c == '\t':
			if err := p.indented(raw, trimmed, lineNo); err != nil {
				return err
			}
		case strings.IndexByte(";#%|*", c) >= 0:
			if err := p.finish(); err != nil {
				return err
			}
		case c >= '0' && c <= '9':
			if err := p.finish(); err != nil {
				return err
			}
			p.inDirective = false
			if err := p.header(raw, lineNo); err != nil {
				return err
			}
		default:
			if err := p.finish(); err != nil {
				return err
			}
			p.inDirective = false
			if err := p.directive(trimmed, lineNo); err != nil {
				return err
			}
		}
	}

	if p.block != "" {
		return p.errorf(len(lines), 0, "unterminated %q block", p.block)
	}
	return p.finish()
}

func (p *parser) indented(raw, trimmed string, lineNo int) error {
	if p.cur == nil {
		if p.inDirective || trimmed[0] == ';' {
			return nil
		}
		return p.errorf(lineNo, 1, "unexpected indented line outside a transaction")
	}

	if trimmed[0] == ';' {
		note := strings.TrimSpace(trimmed[1:])
		if n := len(p.cur.Postings); n > 0 {
			p.cur.Postings[n-1].Note = joinNote(p.cur.Postings[n-1].Note, note)
		} else {
			p.cur.Note = joinNote(p.cur.Note, note)
		}
		return nil
	}

	indent := len(raw) - len(strings.TrimLeft(raw, " \t"))
	return p.posting(raw[indent:], indent, lineNo)
}

func joinNote(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}

// header parses "DATE[=AUX] [*|!] [(CODE)] PAYEE [; NOTE]".
func (p *parser) header(raw string, lineNo int) error {
	dateEnd := strings.IndexAny(raw, " \t")
	if dateEnd < 0 {
		dateEnd = len(raw)
	}
	dateStr, auxStr, hasAux := strings.Cut(raw[:dateEnd], "=")

	date, err := parseJournalDate(dateStr, p.year)
	if err != nil {
		return p.errorf(lineNo, 1, "%v", err)
	}

	x := &Transaction{Date: date, Source: p.source, Line: lineNo}
	if hasAux {
		aux, err := parseJournalDate(auxStr, date.Year())
		if err != nil {
			return p.errorf(lineNo, len(dateStr)+2, "%v", err)
		}
		x.AuxDate = &aux
	}

	rest := strings.TrimLeft(raw[dateEnd:], " \t")
	rest, x.Status = readStatus(rest)
	if strings.HasPrefix(rest, "(") {
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			return p.errorf(lineNo, len(raw)-len(rest)+1, "unterminated transaction code")
		}
		x.Code = rest[1:end]
		rest = strings.TrimLeft(rest[end+1:], " \t")
	}

	payee, note, _ := strings.Cut(rest, ";")
	x.Payee = strings.TrimSpace(payee)
	x.Note = strings.TrimSpace(note)
	if x.Payee == "" {
		x.Payee = unspecifiedPayee
	}

	p.cur = x
	return nil
}

func readStatus(s string) (string, Status) {
	if s == "" {
		return s, Uncleared
	}
	switch s[0] {
	case '*':
		return strings.TrimLeft(s[1:], " \t"), Cleared
	case '!':
		return strings.TrimLeft(s[1:], " \t"), Pending
	}
	return s, Uncleared
}

// posting parses "[*|!] ACCOUNT[  AMOUNT [@|@@ COST]] [; NOTE]". col is the
// 0-based offset of text within the raw line.
func (p *parser) posting(text string, col, lineNo int) error {
	ps := &Posting{Line: lineNo}

	body, note, _ := strings.Cut(text, ";")
	ps.Note = strings.TrimSpace(note)

	stripped, status := readStatus(body)
	ps.Status = status
	col += len(body) - len(stripped)
	body = stripped

	accountPart, amountPart := splitPosting(body)
	account := strings.TrimSpace(accountPart)
	switch {
	case strings.HasPrefix(account, "(") && strings.HasSuffix(account, ")"):
		ps.Kind = UnbalancedVirtual
		account = account[1 : len(account)-1]
	case strings.HasPrefix(account, "[") && strings.HasSuffix(account, "]"):
		ps.Kind = BalancedVirtual
		account = account[1 : len(account)-1]
	}

	name, err := normalizeAccount(account)
	if err != nil {
		return p.errorf(lineNo, col+1, "%v", err)
	}
	ps.Account = name

	amountCol := col + len(accountPart) + (len(amountPart) - len(strings.TrimLeft(amountPart, " \t"))) + 1
	amountPart = strings.TrimSpace(amountPart)
	if amountPart == "" {
		if ps.Kind == UnbalancedVirtual {
			return p.errorf(lineNo, col+1, "virtual posting to %q requires an amount", name)
		}
		ps.Elided = true
	} else if err := p.postingAmount(ps, amountPart); err != nil {
		return p.errorf(lineNo, amountCol, "%v", err)
	}

	if _, ok := p.j.accounts[name]; !ok {
		p.j.accounts[name] = false
	}
	p.cur.Postings = append(p.cur.Postings, ps)
	return nil
}

func (p *parser) postingAmount(ps *Posting, s string) error {
	amountStr, costStr, total := s, "", false
	if a, c, ok := strings.Cut(s, "@@"); ok {
		amountStr, costStr, total = a, c, true
	} else if a, c, ok := strings.Cut(s, "@"); ok {
		amountStr, costStr = a, c
	}

	amount, style, err := parseAmount(amountStr)
	if err != nil {
		return err
	}
	p.j.observeCommodity(style)
	ps.Amount = amount

	if costStr == "" {
		return nil
	}
	price, priceStyle, err := parseAmount(costStr)
	if err != nil {
		return fmt.Errorf("cost: %w", err)
	}
	if price.Commodity == amount.Commodity {
		return fmt.Errorf("cost must be in a different commodity than %q", amount.Commodity)
	}
	p.j.observeCommodity(priceStyle)

	cost := Amount{Commodity: price.Commodity}
	if total {
		cost.Quantity = price.Quantity.Abs()
		if amount.Quantity.IsNegative() {
			cost.Quantity = cost.Quantity.Neg()
		}
	} else {
		cost.Quantity = price.Quantity.Mul(amount.Quantity)
	}
	ps.Cost = &cost
	ps.Price = &price
	ps.PerUnit = !total
	return nil
}

// splitPosting splits at the first tab or run of two spaces, which is what
// separates an account name (which may contain single spaces) from its amount.
func splitPosting(s string) (account, amount string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\t' || (s[i] == ' ' && i+1 < len(s) && s[i+1] == ' ') {
			return s[:i], s[i:]
		}
	}
	return s, ""
}

func normalizeAccount(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("missing account name")
	}
	for _, seg := range strings.Split(name, ":") {
		if strings.TrimSpace(seg) == "" {
			return "", fmt.Errorf("invalid account name %q", name)
		}
	}
	return norm.NFC.String(name), nil
}

// finish closes the transaction under construction: it fills in an elided
// amount and rejects transactions whose postings do not sum to zero.
func (p *parser) finish() error {
	x := p.cur
	if x == nil {
		return nil
	}
	p.cur = nil

	if len(x.Postings) == 0 {
		return p.errorf(x.Line, 0, "transaction has no postings")
	}

	for _, kind := range []Kind{Real, BalancedVirtual} {
		var (
			sum    Balance
			elided *Posting
		)
		for _, ps := range x.Postings {
			if ps.Kind != kind {
				continue
			}
			if ps.Elided {
				if elided != nil {
					return p.errorf(ps.Line, 0, "only one posting with a null amount is allowed per transaction")
				}
				elided = ps
				continue
			}
			sum.Add(ps.weight())
		}

		remainder := sum.Amounts()
		if elided != nil {
			x.Postings = fillElided(x.Postings, elided, remainder)
			continue
		}
		if len(remainder) > 0 {
			parts := make([]string, len(remainder))
			for i, a := range remainder {
				parts[i] = p.j.Format(a)
			}
			return p.errorf(x.Line, 0, "transaction does not balance: remainder is %s", strings.Join(parts, ", "))
		}
	}

	if _, ok := p.j.payees[x.Payee]; !ok {
		p.j.payees[x.Payee] = false
	}
	p.j.Transactions = append(p.j.Transactions, x)
	return nil
}

// fillElided gives the elided posting the negated remainder. A remainder in
// several commodities yields one posting per commodity.
func fillElided(postings []*Posting, elided *Posting, remainder []Amount) []*Posting {
	if len(remainder) == 0 {
		return postings
	}
	elided.Amount = remainder[0].Neg()
	if len(remainder) == 1 {
		return postings
	}

	out := make([]*Posting, 0, len(postings)+len(remainder)-1)
	for _, ps := range postings {
		out = append(out, ps)
		if ps != elided {
			continue
		}
		for _, a := range remainder[1:] {
			extra := *elided
			extra.Amount = a.Neg()
			out = append(out, &extra)
		}
	}
	return out
}

func (p *parser) directive(line string, lineNo int) error {
	word, arg, _ := strings.Cut(line, " ")
	if w, a, ok := strings.Cut(line, "\t"); ok && len(w) < len(word) {
		word, arg = w, a
	}
	arg = strings.TrimSpace(arg)

	switch word {
	case "account":
		name, err := normalizeAccount(stripNote(arg))
		if err != nil {
			return p.errorf(lineNo, len(word)+2, "%v", err)
		}
		p.j.accounts[name] = true
		p.inDirective = true
	case "commodity":
		if err := p.commodity(stripNote(arg)); err != nil {
			return p.errorf(lineNo, len(word)+2, "%v", err)
		}
		p.inDirective = true
	case "payee":
		if name := stripNote(arg); name != "" {
			p.j.payees[name] = true
		} else {
			return p.errorf(lineNo, 0, "payee directive requires a name")
		}
		p.inDirective = true
	case "tag":
		if name := stripNote(arg); name != "" {
			p.j.tags[name] = true
		} else {
			return p.errorf(lineNo, 0, "tag directive requires a name")
		}
		p.inDirective = true
	case "year", "Y":
		return p.setYear(arg, lineNo)
	case "comment", "test":
		p.block = word
	case "P":
		return p.price(arg, lineNo)
	case "include":
		return p.errorf(lineNo, 1, "include directive is not supported when reading from a buffer")
	default:
		if len(word) > 1 && word[0] == 'Y' {
			if _, err := strconv.Atoi(word[1:]); err == nil {
				return p.setYear(word[1:], lineNo)
			}
		}
		return p.errorf(lineNo, 1, "unknown directive %q", word)
	}
	return nil
}

func stripNote(s string) string {
	s, _, _ = strings.Cut(s, ";")
	return strings.TrimSpace(s)
}

func (p *parser) setYear(arg string, lineNo int) error {
	y, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || y < 1 || y > 9999 {
		return p.errorf(lineNo, 0, "invalid year %q", arg)
	}
	p.year = y
	return nil
}

func (p *parser) commodity(arg string) error {
	if arg == "" {
		return fmt.Errorf("commodity directive requires a symbol")
	}
	if _, style, err := parseAmount(arg); err == nil && style.Symbol != "" {
		p.j.declareCommodity(style)
		return nil
	}
	sym, rest, err := readCommodity(arg)
	if err != nil {
		return err
	}
	if sym == "" || strings.TrimSpace(rest) != "" {
		return fmt.Errorf("invalid commodity %q", arg)
	}
	p.j.declareCommodity(Commodity{Symbol: sym})
	return nil
}

// price parses "P DATE [TIME] SYMBOL AMOUNT".
func (p *parser) price(arg string, lineNo int) error {
	fields := strings.Fields(arg)
	if len(fields) < 3 {
		return p.errorf(lineNo, 0, "price directive requires a date, commodity and price")
	}
	date, err := parseJournalDate(fields[0], p.year)
	if err != nil {
		return p.errorf(lineNo, 3, "%v", err)
	}
	fields = fields[1:]
	if strings.Count(fields[0], ":") >= 1 && len(fields) > 2 {
		fields = fields[1:]
	}

	sym, _, err := readCommodity(fields[0])
	if err != nil || sym == "" {
		return p.errorf(lineNo, 0, "invalid commodity %q in price directive", fields[0])
	}
	amount, style, err := parseAmount(strings.Join(fields[1:], " "))
	if err != nil {
		return p.errorf(lineNo, 0, "price: %v", err)
	}
	p.j.observeCommodity(style)
	p.j.Prices = append(p.j.Prices, Price{Date: date, Commodity: sym, Price: amount})
	return nil
}

// parseJournalDate accepts YYYY-MM-DD with '-', '/' or '.' separators, or
// MM-DD when a default year has been set.
func parseJournalDate(s string, year int) (time.Time, error) {
	d := strings.NewReplacer("/", "-", ".", "-").Replace(s)
	parts := strings.Split(d, "-")
	switch len(parts) {
	case 3:
	case 2:
		if year == 0 {
			return time.Time{}, fmt.Errorf("date %q has no year and no year directive is in effect", s)
		}
		d = strconv.Itoa(year) + "-" + d
	default:
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}

	t, err := time.Parse("2006-1-2", d)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// ParseDate parses a report boundary date: YYYY-MM-DD, YYYY-MM or YYYY, with
// '-', '/' or '.' separators.
func ParseDate(s string) (time.Time, error) {
	d := strings.NewReplacer("/", "-", ".", "-").Replace(strings.TrimSpace(s))
	for _, layout := range []string{"2006-1-2", "2006-1", "2006"} {
		if t, err := time.Parse(layout, d); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
