package command

import (
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Invocation is a tokenised command line.
type Invocation struct {
	Name  string   // command name or alias, "" when the line has none
	Args  []string // remaining tokens in order, flags included
	Files []string // journal sources named with -f/--file
}

// valueFlags are the flags whose value is a separate token.
var valueFlags = map[string]bool{
	"-b": true, "--begin": true,
	"-e": true, "--end": true,
	"--depth": true,
}

// ParseLine splits a command line shell-style and separates the command name
// and journal sources from the remaining arguments.
func ParseLine(line string) (Invocation, error) {
	tokens, err := shellquote.Split(line)
	if err != nil {
		return Invocation{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return SplitTokens(tokens)
}

// SplitTokens is ParseLine for a line that has already been tokenised.
func SplitTokens(tokens []string) (Invocation, error) {
	var inv Invocation
	positional := false

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if positional || tok == "-" || !strings.HasPrefix(tok, "-") {
			if inv.Name == "" {
				inv.Name = tok
				continue
			}
			inv.Args = append(inv.Args, tok)
			continue
		}

		if tok == "--" {
			positional = true
			inv.Args = append(inv.Args, tok)
			continue
		}

		switch {
		case tok == "-f" || tok == "--file":
			if i+1 >= len(tokens) {
				return Invocation{}, fmt.Errorf("%w: %s requires a file name", ErrInvalidArguments, tok)
			}
			i++
			inv.Files = append(inv.Files, tokens[i])
			continue
		case strings.HasPrefix(tok, "--file="):
			inv.Files = append(inv.Files, strings.TrimPrefix(tok, "--file="))
			continue
		case strings.HasPrefix(tok, "-f") && !strings.HasPrefix(tok, "--"):
			inv.Files = append(inv.Files, strings.TrimPrefix(tok, "-f"))
			continue
		}

		inv.Args = append(inv.Args, tok)
		if valueFlags[tok] && i+1 < len(tokens) {
			i++
			inv.Args = append(inv.Args, tokens[i])
		}
	}
	return inv, nil
}
