package command

import (
	"context"
	"fmt"
	"sort"

	"github.com/seantiz/tally/internal/journal"
)

type accountsCommand struct{}

func (accountsCommand) Info() Info {
	return Info{Name: "accounts", Description: "List accounts with matching postings"}
}

func (accountsCommand) Run(ctx context.Context, req Request) (string, error) {
	opts, err := parseOptions("accounts", req.Args)
	if err != nil {
		return "", err
	}
	if err := opts.checkPatterns(req.Journal); err != nil {
		return "", err
	}

	seen := make(map[string]bool)
	for _, s := range opts.filter(req.Journal) {
		seen[opts.truncate(s.p.Account)] = true
	}
	return joinLines(sortedSet(seen)), nil
}

type payeesCommand struct{}

func (payeesCommand) Info() Info {
	return Info{Name: "payees", Description: "List payees of matching transactions"}
}

func (payeesCommand) Run(ctx context.Context, req Request) (string, error) {
	opts, err := parseOptions("payees", req.Args)
	if err != nil {
		return "", err
	}
	if err := opts.checkPatterns(req.Journal); err != nil {
		return "", err
	}

	seen := make(map[string]bool)
	for _, s := range opts.filter(req.Journal) {
		seen[s.x.Payee] = true
	}
	return joinLines(sortedSet(seen)), nil
}

type commoditiesCommand struct{}

func (commoditiesCommand) Info() Info {
	return Info{Name: "commodities", Description: "List commodities used by matching postings"}
}

func (commoditiesCommand) Run(ctx context.Context, req Request) (string, error) {
	opts, err := parseOptions("commodities", req.Args)
	if err != nil {
		return "", err
	}
	if err := opts.checkPatterns(req.Journal); err != nil {
		return "", err
	}

	seen := make(map[string]bool)
	for _, s := range opts.filter(req.Journal) {
		seen[s.p.Amount.Commodity] = true
		if s.p.Price != nil {
			seen[s.p.Price.Commodity] = true
		}
	}
	delete(seen, "")
	return joinLines(sortedSet(seen)), nil
}

type pricesCommand struct{}

func (pricesCommand) Info() Info {
	return Info{Name: "prices", Description: "List market prices and per-unit posting costs"}
}

// Run treats positional patterns as commodity patterns rather than accounts.
func (pricesCommand) Run(ctx context.Context, req Request) (string, error) {
	opts, err := parseOptions("prices", req.Args)
	if err != nil {
		return "", err
	}

	prices := append([]journal.Price(nil), req.Journal.Prices...)
	for _, x := range req.Journal.Transactions {
		for _, p := range x.Postings {
			if p.Price != nil && p.PerUnit {
				prices = append(prices, journal.Price{Date: x.Date, Commodity: p.Amount.Commodity, Price: *p.Price})
			}
		}
	}
	sort.SliceStable(prices, func(i, j int) bool { return prices[i].Date.Before(prices[j].Date) })

	var lines []string
	for _, pr := range prices {
		if !opts.begin.IsZero() && pr.Date.Before(opts.begin) {
			continue
		}
		if !opts.end.IsZero() && !pr.Date.Before(opts.end) {
			continue
		}
		if len(opts.accountPatterns) > 0 && !anyMatchPatterns(opts.accountPatterns, pr.Commodity) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %-10s %12s",
			pr.Date.Format(printDate), pr.Commodity, req.Journal.Format(pr.Price)))
	}
	return joinLines(lines), nil
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
