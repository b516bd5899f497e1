package store

import (
	"fmt"
	"strings"
	"unicode"
)

// TranslateFTSQuery normalizes a user search expression into an FTS5 MATCH
// expression. The accepted dialect: bare terms (implicit AND), quoted
// phrases, trailing-* prefix terms, and the OR / NOT operators. Every term
// is emitted as a quoted string so punctuation inside identifiers
// ("Player_123", "Actor.cpp") cannot be misread as FTS5 syntax.
//
// A syntactically invalid expression returns ErrInput.
func TranslateFTSQuery(query string) (string, error) {
	tokens, err := tokenizeFTS(query)
	if err != nil {
		return "", err
	}
	if len(tokens) == 0 {
		return "", fmt.Errorf("%w: empty search query", ErrInput)
	}

	// Operators are binary in FTS5: they may not open or close the
	// expression, and may not be adjacent to each other.
	var out []string
	prevOp := true // expression start behaves like "after an operator"
	for i, tok := range tokens {
		switch tok.kind {
		case ftsOperator:
			if prevOp {
				return "", fmt.Errorf("%w: operator %s at position %d has no left operand", ErrInput, tok.text, i)
			}
			if i == len(tokens)-1 {
				return "", fmt.Errorf("%w: operator %s has no right operand", ErrInput, tok.text)
			}
			out = append(out, tok.text)
			prevOp = true
		case ftsTerm, ftsPhrase:
			quoted := `"` + strings.ReplaceAll(tok.text, `"`, `""`) + `"`
			if tok.prefix {
				quoted += "*"
			}
			out = append(out, quoted)
			prevOp = false
		}
	}

	return strings.Join(out, " "), nil
}

type ftsTokenKind int

const (
	ftsTerm ftsTokenKind = iota
	ftsPhrase
	ftsOperator
)

type ftsToken struct {
	kind   ftsTokenKind
	text   string
	prefix bool
}

func tokenizeFTS(query string) ([]ftsToken, error) {
	var tokens []ftsToken
	runes := []rune(query)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '"':
			// Quoted phrase: runs to the closing quote.
			j := i + 1
			for j < len(runes) && runes[j] != '"' {
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("%w: unterminated phrase", ErrInput)
			}
			phrase := strings.TrimSpace(string(runes[i+1 : j]))
			if phrase != "" {
				tokens = append(tokens, ftsToken{kind: ftsPhrase, text: phrase})
			}
			i = j + 1
		default:
			j := i
			for j < len(runes) && !unicode.IsSpace(runes[j]) && runes[j] != '"' {
				j++
			}
			word := string(runes[i:j])
			i = j

			switch word {
			case "OR", "NOT":
				tokens = append(tokens, ftsToken{kind: ftsOperator, text: word})
			case "AND":
				// Implicit between terms; normalize away the explicit form.
			default:
				prefix := false
				if strings.HasSuffix(word, "*") {
					prefix = true
					word = strings.TrimSuffix(word, "*")
				}
				if strings.ContainsRune(word, '*') {
					return nil, fmt.Errorf("%w: * is only valid at the end of a term", ErrInput)
				}
				if word == "" {
					return nil, fmt.Errorf("%w: bare * is not a term", ErrInput)
				}
				tokens = append(tokens, ftsToken{kind: ftsTerm, text: word, prefix: prefix})
			}
		}
	}
	return tokens, nil
}
