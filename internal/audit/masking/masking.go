package masking

import "strings"

const maskToken = "****"

// sensitiveKeys are snapshot fields never stored in clear text.
var sensitiveKeys = map[string]struct{}{
	"reference":      {},
	"card_number":    {},
	"account_number": {},
	"token":          {},
}

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}
	return prefix + maskToken + remainder[len(remainder)-4:]
}

func IsSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskSensitive returns a copy of input where string values under sensitive
// keys are masked, at any depth. Other values are copied as is.
func MaskSensitive(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		if s, ok := value.(string); ok && IsSensitiveKey(key) {
			masked[key] = MaskSecret(s)
			continue
		}
		masked[key] = maskNested(value)
	}
	return masked
}

func maskNested(value any) any {
	switch cast := value.(type) {
	case map[string]any:
		return MaskSensitive(cast)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskNested(item))
		}
		return out
	default:
		return value
	}
}

func splitPrefix(value string) (string, string) {
	lastUnderscore := strings.LastIndex(value, "_")
	if lastUnderscore == -1 || lastUnderscore == len(value)-1 {
		return "", value
	}
	return value[:lastUnderscore+1], value[lastUnderscore+1:]
}
