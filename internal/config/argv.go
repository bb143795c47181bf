package config

import (
	"fmt"
	"strings"
	"unicode"
)

// Power commands are exec'd directly, so anything that only a shell would
// interpret is rejected instead of being passed through as a literal word.
const shellOperators = "|&;<>`"

type argvLexer struct {
	input   string
	argv    []string
	word    strings.Builder
	inWord  bool
	quote   rune
	escaped bool
}

func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	lx := argvLexer{input: input}
	runes := []rune(input)
	for i, r := range runes {
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		if err := lx.step(r, next); err != nil {
			return nil, err
		}
	}
	return lx.finish()
}

func (lx *argvLexer) step(r, next rune) error {
	switch {
	case lx.escaped:
		lx.word.WriteRune(r)
		lx.escaped = false
	case lx.quote == '\'':
		if r == '\'' {
			lx.quote = 0
			return nil
		}
		lx.word.WriteRune(r)
	case lx.quote == '"':
		switch r {
		case '"':
			lx.quote = 0
		case '\\':
			lx.escaped = true
		default:
			lx.word.WriteRune(r)
		}
	case r == '\\':
		lx.escaped = true
		lx.inWord = true
	case r == '\'' || r == '"':
		lx.quote = r
		lx.inWord = true
	case unicode.IsSpace(r):
		lx.flush()
	case strings.ContainsRune(shellOperators, r) || (r == '$' && next == '('):
		op := string(r)
		if r == '$' {
			op = "$("
		}
		return fmt.Errorf("shell syntax %q is not supported in command %q; wrap it in a script", op, lx.input)
	default:
		lx.word.WriteRune(r)
		lx.inWord = true
	}
	return nil
}

func (lx *argvLexer) flush() {
	if !lx.inWord {
		return
	}
	lx.argv = append(lx.argv, lx.word.String())
	lx.word.Reset()
	lx.inWord = false
}

func (lx *argvLexer) finish() ([]string, error) {
	if lx.escaped {
		return nil, fmt.Errorf("unterminated escape sequence in command: %q", lx.input)
	}
	if lx.quote != 0 {
		return nil, fmt.Errorf("unterminated quote in command: %q", lx.input)
	}
	lx.flush()
	return lx.argv, nil
}

func mustParseArgv(input string) []string {
	argv, err := parseArgv(input)
	if err != nil {
		panic(err)
	}
	return argv
}
