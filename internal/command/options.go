package command

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/seantiz/tally/internal/journal"
)

// options are the report flags shared by every built-in command.
type options struct {
	begin, end time.Time
	depth      int
	flat       bool
	empty      bool
	cleared    bool
	uncleared  bool

	accountPatterns []*regexp.Regexp
	payeePatterns   []*regexp.Regexp
}

// parseOptions parses args with pflag. Positional arguments become
// case-insensitive account patterns, or payee patterns when written "@text".
func parseOptions(name string, args []string) (*options, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(true)

	var (
		opts       options
		begin, end string
	)
	fs.StringVarP(&begin, "begin", "b", "", "only include postings on or after this date")
	fs.StringVarP(&end, "end", "e", "", "only include postings before this date")
	fs.IntVar(&opts.depth, "depth", 0, "collapse accounts deeper than this")
	fs.BoolVar(&opts.flat, "flat", false, "show full account names without a tree")
	fs.BoolVarP(&opts.empty, "empty", "E", false, "show accounts with zero balances")
	fs.BoolVarP(&opts.cleared, "cleared", "C", false, "only include cleared postings")
	fs.BoolVarP(&opts.uncleared, "uncleared", "U", false, "only include uncleared postings")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, fmt.Errorf("%w: %s does not take --help", ErrInvalidArguments, name)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	var err error
	if begin != "" {
		if opts.begin, err = journal.ParseDate(begin); err != nil {
			return nil, fmt.Errorf("%w: --begin: %v", ErrInvalidArguments, err)
		}
	}
	if end != "" {
		if opts.end, err = journal.ParseDate(end); err != nil {
			return nil, fmt.Errorf("%w: --end: %v", ErrInvalidArguments, err)
		}
	}
	if opts.depth < 0 {
		return nil, fmt.Errorf("%w: --depth must not be negative", ErrInvalidArguments)
	}
	if opts.cleared && opts.uncleared {
		return nil, fmt.Errorf("%w: --cleared and --uncleared are mutually exclusive", ErrInvalidArguments)
	}

	for _, arg := range fs.Args() {
		target := &opts.accountPatterns
		pattern := arg
		if strings.HasPrefix(arg, "@") {
			target = &opts.payeePatterns
			pattern = arg[1:]
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid pattern %q: %v", ErrInvalidArguments, arg, err)
		}
		*target = append(*target, re)
	}
	return &opts, nil
}

// checkPatterns fails when a pattern matches nothing the journal knows about.
func (o *options) checkPatterns(j *journal.Journal) error {
	for _, re := range o.accountPatterns {
		if !anyMatch(re, j.Accounts()) {
			return fmt.Errorf("%w: no account matches %q", ErrEngineFailure, strings.TrimPrefix(re.String(), "(?i)"))
		}
	}
	for _, re := range o.payeePatterns {
		if !anyMatch(re, j.Payees()) {
			return fmt.Errorf("%w: no payee matches %q", ErrEngineFailure, strings.TrimPrefix(re.String(), "(?i)"))
		}
	}
	return nil
}

func anyMatch(re *regexp.Regexp, items []string) bool {
	for _, s := range items {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func anyMatchPatterns(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// includeTransaction applies the date and payee filters.
func (o *options) includeTransaction(x *journal.Transaction) bool {
	if !o.begin.IsZero() && x.Date.Before(o.begin) {
		return false
	}
	if !o.end.IsZero() && !x.Date.Before(o.end) {
		return false
	}
	if len(o.payeePatterns) > 0 && !anyMatchPatterns(o.payeePatterns, x.Payee) {
		return false
	}
	return true
}

// includePosting applies the status and account filters.
func (o *options) includePosting(x *journal.Transaction, p *journal.Posting) bool {
	status := p.EffectiveStatus(x)
	if o.cleared && status != journal.Cleared {
		return false
	}
	if o.uncleared && status == journal.Cleared {
		return false
	}
	if len(o.accountPatterns) > 0 && !anyMatchPatterns(o.accountPatterns, p.Account) {
		return false
	}
	return true
}

// selected is a posting that passed every filter, paired with its transaction.
type selected struct {
	x *journal.Transaction
	p *journal.Posting
}

// filter returns the postings that pass every filter, in journal order.
func (o *options) filter(j *journal.Journal) []selected {
	var out []selected
	for _, x := range j.Transactions {
		if !o.includeTransaction(x) {
			continue
		}
		for _, p := range x.Postings {
			if o.includePosting(x, p) {
				out = append(out, selected{x: x, p: p})
			}
		}
	}
	return out
}

// truncate limits an account name to the configured depth.
func (o *options) truncate(account string) string {
	if o.depth == 0 {
		return account
	}
	parts := strings.SplitN(account, ":", o.depth+1)
	if len(parts) <= o.depth {
		return account
	}
	return strings.Join(parts[:o.depth], ":")
}
