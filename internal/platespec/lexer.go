package platespec

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"scanlapse/internal/services"
)

type line struct {
	number int
	tokens []string
}

// scanLines reads r and returns the non-empty token rows. Comment lines and
// trailing comment tokens are dropped.
func scanLines(r io.Reader, source string) ([]line, error) {
	var out []line
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	number := 0
	for scanner.Scan() {
		number++
		if tokens := tokenize(scanner.Text()); len(tokens) > 0 {
			out = append(out, line{number: number, tokens: tokens})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "platespec", "read", source, err)
	}
	return out, nil
}

func tokenize(raw string) []string {
	raw = strings.TrimPrefix(raw, "\ufeff")
	if strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, `"#`) {
		return nil
	}
	var tokens []string
	for _, field := range strings.Split(raw, "\t") {
		field = unquote(strings.TrimSpace(field))
		if field == "" {
			continue
		}
		if strings.HasPrefix(field, "#") {
			break
		}
		tokens = append(tokens, field)
	}
	return tokens
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func lineError(source string, number int, format string, args ...any) error {
	return services.Wrap(services.ErrConfiguration, "platespec", fmt.Sprintf("%s:%d", source, number), fmt.Sprintf(format, args...), nil)
}
