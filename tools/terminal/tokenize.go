package terminal

import "errors"

// tokenize splits a command string into an argv using POSIX-like
// quoting rules: whitespace separates tokens, single quotes preserve
// everything literally, double quotes preserve everything except
// backslash escapes of `"` and `\`, and a bare backslash escapes the
// next character. No expansion of any kind is performed.
func tokenize(s string) ([]string, error) {
	var argv []string
	var cur []rune
	inToken := false

	const (
		plain = iota
		single
		double
	)
	state := plain
	escaped := false

	for _, r := range s {
		if escaped {
			cur = append(cur, r)
			inToken = true
			escaped = false
			continue
		}
		switch state {
		case plain:
			switch r {
			case '\\':
				escaped = true
				inToken = true
			case '\'':
				state = single
				inToken = true
			case '"':
				state = double
				inToken = true
			case ' ', '\t', '\n', '\r':
				if inToken {
					argv = append(argv, string(cur))
					cur = cur[:0]
					inToken = false
				}
			default:
				cur = append(cur, r)
				inToken = true
			}
		case single:
			if r == '\'' {
				state = plain
			} else {
				cur = append(cur, r)
			}
		case double:
			switch r {
			case '"':
				state = plain
			case '\\':
				escaped = true
			default:
				cur = append(cur, r)
			}
		}
	}

	if escaped {
		return nil, errors.New("cmd ends with an unfinished escape")
	}
	if state != plain {
		return nil, errors.New("cmd has an unterminated quote")
	}
	if inToken {
		argv = append(argv, string(cur))
	}
	return argv, nil
}
