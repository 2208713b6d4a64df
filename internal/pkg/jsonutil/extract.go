package jsonutil

import (
	"strings"
)

// ExtractObject returns the first balanced {...} block in raw.
func ExtractObject(raw string) (string, bool) {
	out, _, ok := extractJSONObject(strings.TrimSpace(raw))
	return out, ok
}

func extractJSONObject(raw string) (string, int, bool) {
	start := strings.Index(raw, "{")
	if start == -1 {
		return "", -1, false
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(raw[start : i+1]), start, true
			}
		}
	}
	return "", -1, false
}

// Pair is one key/value fragment recovered by ScanPairs.
type Pair struct {
	Key    string
	Value  string
	Quoted bool
}

// ScanPairs walks a JSON-like text and recovers `"key": value` pairs without
// requiring the text to be valid JSON. Fragments that do not look like a
// quoted key followed by a colon are skipped.
func ScanPairs(raw string) []Pair {
	var out []Pair
	i := 0
	n := len(raw)
	for i < n {
		open := strings.IndexByte(raw[i:], '"')
		if open == -1 {
			break
		}
		open += i
		close := strings.IndexByte(raw[open+1:], '"')
		if close == -1 {
			break
		}
		close += open + 1
		key := raw[open+1 : close]
		if strings.TrimSpace(key) == "" {
			// ""key": the second quote opens the real key
			i = close
			continue
		}
		j := skipSpace(raw, close+1)
		if j >= n || raw[j] != ':' {
			i = close + 1
			continue
		}
		j = skipSpace(raw, j+1)
		if j >= n {
			break
		}
		if raw[j] == '"' {
			val, end, ok := readQuoted(raw, j)
			if !ok {
				out = append(out, Pair{Key: key, Value: strings.TrimSpace(raw[j+1:]), Quoted: true})
				break
			}
			out = append(out, Pair{Key: key, Value: val, Quoted: true})
			i = end + 1
			continue
		}
		end := j
		for end < n && raw[end] != ',' && raw[end] != '}' && raw[end] != '\n' {
			end++
		}
		val := strings.TrimSpace(raw[j:end])
		if val != "" {
			out = append(out, Pair{Key: key, Value: val})
		}
		i = end
	}
	return out
}

func skipSpace(raw string, i int) int {
	for i < len(raw) && (raw[i] == ' ' || raw[i] == '\t' || raw[i] == '\r' || raw[i] == '\n') {
		i++
	}
	return i
}

// readQuoted reads a quoted string starting at raw[start] == '"' and returns
// the unescaped body and the index of the closing quote.
func readQuoted(raw string, start int) (string, int, bool) {
	var b strings.Builder
	escape := false
	for i := start + 1; i < len(raw); i++ {
		ch := raw[i]
		if escape {
			switch ch {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(ch)
			}
			escape = false
			continue
		}
		if ch == '\\' {
			escape = true
			continue
		}
		if ch == '"' {
			return b.String(), i, true
		}
		b.WriteByte(ch)
	}
	return "", -1, false
}
