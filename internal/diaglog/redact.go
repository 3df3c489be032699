package diaglog

import "strings"

const redacted = "[REDACTED]"

// sensitiveKeys never reach the log file; matching ignores case
var sensitiveKeys = map[string]bool{
	"authorization":   true,
	"token":           true,
	"validator_token": true,
	"bearer":          true,
	"api_key":         true,
	"password":        true,
	"secret":          true,
}

func isSensitive(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

// Redact returns a copy of v with sensitive map values replaced, walking
// nested maps and slices. v itself is not modified; other types pass
// through unchanged.
func Redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[k] = redactValue(k, child)
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[k] = redactValue(k, child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = Redact(elem)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = Redact(elem)
		}
		return out
	default:
		return v
	}
}

func redactValue(key string, v interface{}) interface{} {
	if isSensitive(key) {
		return redacted
	}
	return Redact(v)
}
