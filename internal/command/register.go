package command

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/seantiz/tally/internal/journal"
)

type registerCommand struct{}

func (registerCommand) Info() Info {
	return Info{
		Name:        "register",
		Aliases:     []string{"reg", "r"},
		Description: "List matching postings with a running total",
	}
}

func (registerCommand) Run(ctx context.Context, req Request) (string, error) {
	opts, err := parseOptions("register", req.Args)
	if err != nil {
		return "", err
	}
	if err := opts.checkPatterns(req.Journal); err != nil {
		return "", err
	}

	var (
		lines   []string
		running journal.Balance
		last    *journal.Transaction
	)
	for _, s := range opts.filter(req.Journal) {
		running.Add(s.p.Amount)

		date, payee := "", ""
		if s.x != last {
			date = s.x.Date.Format("06-Jan-02")
			payee = s.x.Payee
			last = s.x
		}

		totals := formatAmounts(req.Journal, running)
		account := decorateAccount(opts.truncate(s.p.Account), s.p.Kind)
		lines = append(lines, fmt.Sprintf("%-9s %-20s %-22s %12s %12s",
			date, clip(payee, 20), clip(account, 22), req.Journal.Format(s.p.Amount), totals[0]))
		for _, t := range totals[1:] {
			lines = append(lines, fmt.Sprintf("%79s", t))
		}
	}
	return joinLines(lines), nil
}

// formatAmounts renders each commodity of b, or "0" for an empty balance.
func formatAmounts(j *journal.Journal, b journal.Balance) []string {
	amounts := b.Amounts()
	if len(amounts) == 0 {
		return []string{"0"}
	}
	out := make([]string, len(amounts))
	for i, a := range amounts {
		out[i] = j.Format(a)
	}
	return out
}

func decorateAccount(account string, kind journal.Kind) string {
	switch kind {
	case journal.BalancedVirtual:
		return "[" + account + "]"
	case journal.UnbalancedVirtual:
		return "(" + account + ")"
	}
	return account
}

// clip shortens s to at most width runes, marking the cut with "..".
func clip(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	return strings.TrimRight(string(r[:width-2]), " ") + ".."
}
