package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// rule replaces the secret part of a match; repl may refer to groups kept around it.
type rule struct {
	re   *regexp.Regexp
	repl string
}

// Redactor masks credentials in log lines.
type Redactor struct {
	rules []rule
}

// NewRedactor creates a redactor with the default rules: vendor API keys, bearer tokens,
// credentials embedded in DSNs and URLs, and password/secret/api_key fields.
func NewRedactor() *Redactor {
	return &Redactor{rules: []rule{
		{re: regexp.MustCompile(`sk-(?:ant-|proj-)?[A-Za-z0-9_-]{20,}`), repl: redacted},
		{re: regexp.MustCompile(`tvly-[A-Za-z0-9_-]{16,}`), repl: redacted},
		{re: regexp.MustCompile(`AKIA[0-9A-Z]{16}`), repl: redacted},
		{re: regexp.MustCompile(`(Bearer\s+)[A-Za-z0-9._~+/-]+=*`), repl: "${1}" + redacted},
		{re: regexp.MustCompile(`([a-z][a-z0-9+.-]*://[^:/@\s"]*:)[^@/\s"]+(@)`), repl: "${1}" + redacted + "${2}"},
		{re: regexp.MustCompile(`(?i)((?:password|passwd|pwd|secret|api_key|apikey|token)\\?"?\s*[:=]\s*\\?"?)[^\s"\\,}]+`), repl: "${1}" + redacted},
	}}
}

// AddPattern adds a custom rule; the whole match is masked.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, rule{re: re, repl: redacted})
	return nil
}

// Redact masks every secret in s.
func (r *Redactor) Redact(s string) string {
	for _, ru := range r.rules {
		s = ru.re.ReplaceAllString(s, ru.repl)
	}
	return s
}

// Wrap returns a writer that redacts before writing to w.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{w: w, r: r}
}

type redactingWriter struct {
	w io.Writer
	r *Redactor
}

// Write reports len(p) on success so callers do not treat a shortened line as a short write.
func (rw *redactingWriter) Write(p []byte) (int, error) {
	if _, err := rw.w.Write([]byte(rw.r.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
