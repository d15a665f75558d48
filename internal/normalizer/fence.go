package normalizer

import "strings"

const fence = "```"

// StripFences removes a markdown code fence wrapping the trimmed input. The
// opening fence (with an optional language tag) must start the string and the
// closing fence must end it; fences inside the payload are left alone. The
// second return value reports whether anything was stripped.
func StripFences(s string) (string, bool) {
	body := strings.TrimSpace(s)
	stripped := false

	if strings.HasPrefix(body, fence) {
		body = stripOpeningFence(body)
		stripped = true
	}
	if strings.HasSuffix(body, fence) {
		body = strings.TrimSuffix(body, fence)
		stripped = true
	}

	return strings.TrimSpace(body), stripped
}

// stripOpeningFence drops "```" plus a language tag. On a single line the tag
// must be followed by whitespace to be told apart from the payload itself.
func stripOpeningFence(s string) string {
	rest := s[len(fence):]

	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		header := strings.TrimSpace(rest[:nl])
		if isLanguageTag(header) {
			return rest[nl+1:]
		}
		return rest
	}

	end := 0
	for end < len(rest) && isTagByte(rest[end]) {
		end++
	}
	if end > 0 && end < len(rest) && (rest[end] == ' ' || rest[end] == '\t') {
		return rest[end:]
	}
	return rest
}

func isLanguageTag(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isTagByte(s[i]) {
			return false
		}
	}
	return true
}

func isTagByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-' || c == '+' || c == '.' || c == '#':
		return true
	}
	return false
}
