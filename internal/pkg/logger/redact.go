package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
)

type ruleAction int

const (
	actionRedact ruleAction = iota + 1
	actionHash
	actionSummarize
)

// redactionRules match on a substring of the lowercased key; first match wins.
var redactionRules = []struct {
	match  string
	action ruleAction
}{
	{"password", actionRedact},
	{"secret", actionRedact},
	{"token", actionRedact},
	{"authorization", actionRedact},
	{"credentials", actionRedact},
	{"api_key", actionRedact},
	{"dsn", actionRedact},
	{"user_id", actionHash},
	{"uploaded_by", actionHash},
	// Spreadsheet cell values are customer data; log their shape only.
	{"row_fields", actionSummarize},
	{"sample_rows", actionSummarize},
}

var (
	redactOnce sync.Once
	redactOn   bool
	hashSalt   string
)

func loadRedactionEnv() {
	redactOnce.Do(func() {
		switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
		case "0", "false", "no", "off":
		default:
			redactOn = true
		}
		hashSalt = strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))
	})
}

func sanitizeKVs(kv []interface{}) []interface{} {
	loadRedactionEnv()
	if len(kv) == 0 || !redactOn {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		out[i+1] = sanitizeValue(strings.ToLower(toString(out[i])), out[i+1])
	}
	return out
}

func sanitizeValue(key string, val interface{}) interface{} {
	for _, r := range redactionRules {
		if !strings.Contains(key, r.match) {
			continue
		}
		switch r.action {
		case actionRedact:
			return "[REDACTED]"
		case actionHash:
			return hashValue(val)
		case actionSummarize:
			return summarize(val)
		}
	}
	if m, ok := val.(map[string]interface{}); ok {
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = sanitizeValue(strings.ToLower(k), v)
		}
		return out
	}
	return val
}

func summarize(val interface{}) string {
	switch v := val.(type) {
	case map[string]interface{}:
		return fmt.Sprintf("[%d fields]", len(v))
	case map[string]string:
		return fmt.Sprintf("[%d fields]", len(v))
	case []map[string]interface{}:
		return fmt.Sprintf("[%d rows]", len(v))
	case []byte:
		return fmt.Sprintf("[%d bytes]", len(v))
	case string:
		return fmt.Sprintf("[%d bytes]", len(v))
	default:
		return "[omitted]"
	}
}

func hashValue(val interface{}) string {
	raw := toString(val)
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(hashSalt + raw))
	return "hash:" + hex.EncodeToString(sum[:])[:12]
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
