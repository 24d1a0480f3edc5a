package secret

import "strings"

const placeholder = "********"

var sensitiveKeys = map[string]struct{}{
	"password":   {},
	"apikey":     {},
	"privatekey": {},
	"passphrase": {},
	"token":      {},
	"secret":     {},
}

// MaskConfig returns a copy of config with secret-bearing values replaced by
// a placeholder, for display in logs and admin responses. Reference fields
// ("...Ref") are left intact since they point at secrets rather than contain
// them.
func MaskConfig(config map[string]any) map[string]any {
	masked := make(map[string]any, len(config))

	for key, value := range config {
		if nested, ok := value.(map[string]any); ok {
			masked[key] = MaskConfig(nested)
			continue
		}

		str, isString := value.(string)
		if isString && str != "" && isSensitiveKey(key) {
			masked[key] = placeholder
			continue
		}

		masked[key] = value
	}

	return masked
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	if strings.HasSuffix(lower, "ref") {
		return false
	}

	_, ok := sensitiveKeys[lower]
	return ok
}
