package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/seantiz/tally/internal/journal"
)

type statsCommand struct{}

func (statsCommand) Info() Info {
	return Info{Name: "stats", Description: "Summarise the journal"}
}

func (statsCommand) Run(ctx context.Context, req Request) (string, error) {
	opts, err := parseOptions("stats", req.Args)
	if err != nil {
		return "", err
	}
	if err := opts.checkPatterns(req.Journal); err != nil {
		return "", err
	}

	sel := opts.filter(req.Journal)
	if len(sel) == 0 {
		return "", nil
	}

	var (
		first, last time.Time
		sources     []string
		seenSource  = make(map[string]bool)
		payees      = make(map[string]bool)
		accounts    = make(map[string]bool)
		uncleared   int
	)
	for i, s := range sel {
		if i == 0 || s.x.Date.Before(first) {
			first = s.x.Date
		}
		if i == 0 || s.x.Date.After(last) {
			last = s.x.Date
		}
		if !seenSource[s.x.Source] {
			seenSource[s.x.Source] = true
			sources = append(sources, s.x.Source)
		}
		payees[s.x.Payee] = true
		accounts[s.p.Account] = true
		if s.p.EffectiveStatus(s.x) != journal.Cleared {
			uncleared++
		}
	}

	days := int(last.Sub(first).Hours()/24) + 1
	var b strings.Builder
	fmt.Fprintf(&b, "Time period: %s to %s (%d %s)\n\n",
		first.Format(printDate), last.Format(printDate), days, plural(days, "day"))
	b.WriteString("  Files these postings came from:\n")
	for _, src := range sources {
		fmt.Fprintf(&b, "    %s\n", src)
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "  Unique payees:          %d\n", len(payees))
	fmt.Fprintf(&b, "  Unique accounts:        %d\n", len(accounts))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "  Number of postings:     %d (%.1f per day)\n", len(sel), float64(len(sel))/float64(days))
	fmt.Fprintf(&b, "  Uncleared postings:     %d\n", uncleared)
	return b.String(), nil
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
