package logger

import "testing"

func TestSanitizeValueRedactsSecrets(t *testing.T) {
	t.Parallel()
	if got := sanitizeValue("redis_password", "hunter2"); got != "[REDACTED]" {
		t.Fatalf("password not redacted: %v", got)
	}
	if got := sanitizeValue("postgres_dsn", "postgres://u:p@h/db"); got != "[REDACTED]" {
		t.Fatalf("dsn not redacted: %v", got)
	}
	if got := sanitizeValue("org_id", "abc"); got != "abc" {
		t.Fatalf("org_id should pass through: %v", got)
	}
}

func TestHashValueIsStable(t *testing.T) {
	t.Parallel()
	a := hashValue("user-1")
	b := hashValue("user-1")
	if a != b || len(a) != len("hash:")+12 {
		t.Fatalf("unexpected hash: %q %q", a, b)
	}
	if hashValue("") != "" {
		t.Fatalf("empty value should hash to empty")
	}
}

func TestSanitizeValueSummarizesRowData(t *testing.T) {
	t.Parallel()
	row := map[string]interface{}{"Revenue": "100", "Studio": "A"}
	if got := sanitizeValue("row_fields", row); got != "[2 fields]" {
		t.Fatalf("row fields leaked: %v", got)
	}
	nested := sanitizeValue("context", map[string]interface{}{"db_password": "x", "upload_id": "u-1"}).(map[string]interface{})
	if nested["db_password"] != "[REDACTED]" || nested["upload_id"] != "u-1" {
		t.Fatalf("nested = %v", nested)
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l *Logger
	l.Info("dropped", "k", "v")
	if l.With("k", "v") != nil {
		t.Fatalf("With on nil logger should stay nil")
	}
}
