package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/seantiz/tally/internal/journal"
)

const printDate = "2006/01/02"

type printCommand struct{}

func (printCommand) Info() Info {
	return Info{
		Name:        "print",
		Aliases:     []string{"p", "xact"},
		Description: "Print matching transactions in journal syntax",
	}
}

func (printCommand) Run(ctx context.Context, req Request) (string, error) {
	opts, err := parseOptions("print", req.Args)
	if err != nil {
		return "", err
	}
	if err := opts.checkPatterns(req.Journal); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, x := range req.Journal.Transactions {
		if !opts.includeTransaction(x) || !anyPosting(opts, x) {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		writeTransaction(&b, req.Journal, x)
	}
	return b.String(), nil
}

func anyPosting(opts *options, x *journal.Transaction) bool {
	for _, p := range x.Postings {
		if opts.includePosting(x, p) {
			return true
		}
	}
	return false
}

func writeTransaction(b *strings.Builder, j *journal.Journal, x *journal.Transaction) {
	b.WriteString(x.Date.Format(printDate))
	if x.AuxDate != nil {
		b.WriteString("=" + x.AuxDate.Format(printDate))
	}
	if x.Status != journal.Uncleared {
		b.WriteString(" " + x.Status.String())
	}
	if x.Code != "" {
		b.WriteString(" (" + x.Code + ")")
	}
	b.WriteString(" " + x.Payee)
	writeNote(b, x.Note)
	b.WriteByte('\n')

	// Elided amounts spanning several commodities were expanded into one
	// posting each; only the first is written so the output parses again.
	elided := make(map[journal.Kind]bool)
	for _, p := range x.Postings {
		if p.Elided && elided[p.Kind] {
			continue
		}

		account := decorateAccount(p.Account, p.Kind)
		if p.Status != journal.Uncleared {
			account = p.Status.String() + " " + account
		}

		if p.Elided {
			elided[p.Kind] = true
			b.WriteString("    " + account)
		} else {
			fmt.Fprintf(b, "    %-34s  %12s", account, postingAmount(j, p))
		}
		writeNote(b, p.Note)
		b.WriteByte('\n')
	}
}

func postingAmount(j *journal.Journal, p *journal.Posting) string {
	s := j.Format(p.Amount)
	if p.Price == nil {
		return s
	}
	if p.PerUnit {
		return s + " @ " + j.Format(*p.Price)
	}
	return s + " @@ " + j.Format(*p.Price)
}

// writeNote writes the first note line inline and the rest as indented comments.
func writeNote(b *strings.Builder, note string) {
	if note == "" {
		return
	}
	first, rest, _ := strings.Cut(note, "\n")
	b.WriteString("  ; " + first)
	for _, line := range strings.Split(rest, "\n") {
		if line != "" {
			b.WriteString("\n    ; " + line)
		}
	}
}
