package journal

import (
	"errors"
	"fmt"
)

// ErrParse matches every *ParseError via errors.Is.
var ErrParse = errors.New("journal: parse error")

// ParseError reports malformed journal input with its position.
// Line and Column are 1-based; Column is 0 when the error concerns a whole line.
type ParseError struct {
	Source string
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.Source, e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Msg)
}

// Unwrap lets errors.Is(err, ErrParse) match.
func (e *ParseError) Unwrap() error { return ErrParse }
