package command

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/seantiz/tally/internal/journal"
)

// amountWidth is the width of the right-aligned amount column in reports.
const amountWidth = 20

type balanceCommand struct{}

func (balanceCommand) Info() Info {
	return Info{
		Name:        "balance",
		Aliases:     []string{"bal", "b"},
		Description: "Show account totals with parent subtotals and a grand total",
	}
}

func (balanceCommand) Run(ctx context.Context, req Request) (string, error) {
	opts, err := parseOptions("balance", req.Args)
	if err != nil {
		return "", err
	}
	if err := opts.checkPatterns(req.Journal); err != nil {
		return "", err
	}

	root := newAccountNode("")
	for _, s := range opts.filter(req.Journal) {
		root.add(opts.truncate(s.p.Account), s.p.Amount)
	}

	var (
		lines []string
		shown int
	)
	if opts.flat {
		shown = renderFlat(&lines, req.Journal, root, "", opts.empty)
	} else {
		shown = renderTree(&lines, req.Journal, root, 0, opts.empty)
	}

	if shown > 1 {
		lines = append(lines, strings.Repeat("-", amountWidth))
		lines = appendAmounts(lines, req.Journal, root.total, "")
	}
	return joinLines(lines), nil
}

// accountNode is one segment of the account tree built by balance.
type accountNode struct {
	name     string
	children map[string]*accountNode
	own      journal.Balance
	total    journal.Balance
	posted   bool
}

func newAccountNode(name string) *accountNode {
	return &accountNode{name: name, children: make(map[string]*accountNode)}
}

// add records a under account, updating the totals of every ancestor.
func (n *accountNode) add(account string, a journal.Amount) {
	n.total.Add(a)
	cur := n
	for _, seg := range strings.Split(account, ":") {
		child, ok := cur.children[seg]
		if !ok {
			child = newAccountNode(seg)
			cur.children[seg] = child
		}
		child.total.Add(a)
		cur = child
	}
	cur.own.Add(a)
	cur.posted = true
}

func (n *accountNode) sortedChildren() []*accountNode {
	out := make([]*accountNode, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (n *accountNode) visible(empty bool) bool {
	if n.posted && (empty || !n.total.IsZero()) {
		return true
	}
	for _, c := range n.children {
		if c.visible(empty) {
			return true
		}
	}
	return false
}

func (n *accountNode) visibleChildren(empty bool) []*accountNode {
	var out []*accountNode
	for _, c := range n.sortedChildren() {
		if c.visible(empty) {
			out = append(out, c)
		}
	}
	return out
}

// renderTree appends the indented tree under n and returns how many entries
// it displayed at this level. A parent without postings of its own and a
// single visible child is shown on one line as "Parent:Child".
func renderTree(lines *[]string, j *journal.Journal, n *accountNode, indent int, empty bool) int {
	shown := 0
	for _, child := range n.visibleChildren(empty) {
		name := child.name
		cur := child
		for !cur.posted {
			vis := cur.visibleChildren(empty)
			if len(vis) != 1 {
				break
			}
			cur = vis[0]
			name += ":" + cur.name
		}

		*lines = appendAmounts(*lines, j, cur.total, strings.Repeat("  ", indent)+name)
		renderTree(lines, j, cur, indent+1, empty)
		shown++
	}
	return shown
}

// renderFlat appends one line per posted account with its own total.
func renderFlat(lines *[]string, j *journal.Journal, n *accountNode, prefix string, empty bool) int {
	shown := 0
	for _, child := range n.sortedChildren() {
		full := child.name
		if prefix != "" {
			full = prefix + ":" + child.name
		}
		if child.posted && (empty || !child.own.IsZero()) {
			*lines = appendAmounts(*lines, j, child.own, full)
			shown++
		}
		shown += renderFlat(lines, j, child, full, empty)
	}
	return shown
}

// appendAmounts renders a balance right-aligned in the amount column, one
// commodity per line, with label after the last one.
func appendAmounts(lines []string, j *journal.Journal, b journal.Balance, label string) []string {
	amounts := b.Amounts()
	texts := make([]string, len(amounts))
	for i, a := range amounts {
		texts[i] = j.Format(a)
	}
	if len(texts) == 0 {
		texts = []string{"0"}
	}

	for i, text := range texts {
		if i < len(texts)-1 || label == "" {
			lines = append(lines, fmt.Sprintf("%*s", amountWidth, text))
			continue
		}
		lines = append(lines, fmt.Sprintf("%*s  %s", amountWidth, text, label))
	}
	return lines
}
