package audit

import (
	"fmt"
	"strconv"
	"strings"
)

// TemplateFormatter renders a PurgeEvent into a single line.
// Placeholders are field names in braces, e.g. "{trigger}\t{outcome}".
type TemplateFormatter struct {
	template string
	segments []segment
}

// segment is either literal text or a field lookup
type segment struct {
	literal string
	field   fieldFunc
}

type fieldFunc func(e *PurgeEvent) string

var fields = map[string]fieldFunc{
	"timestamp":   func(e *PurgeEvent) string { return e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z") },
	"trigger_id":  func(e *PurgeEvent) string { return quote(e.TriggerID) },
	"trigger":     func(e *PurgeEvent) string { return quote(e.Trigger) },
	"kind":        func(e *PurgeEvent) string { return quote(e.Kind) },
	"zone_id":     func(e *PurgeEvent) string { return quote(e.ZoneID) },
	"url_count":   func(e *PurgeEvent) string { return strconv.Itoa(len(e.URLs)) },
	"first_url":   func(e *PurgeEvent) string { return quote(firstURL(e.URLs)) },
	"outcome":     func(e *PurgeEvent) string { return quote(e.Outcome) },
	"status_code": func(e *PurgeEvent) string { return strconv.Itoa(e.StatusCode) },
	"message":     func(e *PurgeEvent) string { return quote(e.Message) },
	"error_type":  func(e *PurgeEvent) string { return quote(e.ErrorType) },
	"duration":    func(e *PurgeEvent) string { return fmt.Sprintf("%.3f", e.Duration) },
	"daemon_id":   func(e *PurgeEvent) string { return quote(e.DaemonID) },
}

// NewTemplateFormatter parses template. Unknown or unclosed placeholders are errors.
func NewTemplateFormatter(template string) (*TemplateFormatter, error) {
	if template == "" {
		return nil, fmt.Errorf("template cannot be empty")
	}

	var segments []segment
	rest := template
	offset := 0
	for {
		open := strings.IndexByte(rest, '{')
		if open == -1 {
			if rest != "" {
				segments = append(segments, segment{literal: rest})
			}
			break
		}
		if open > 0 {
			segments = append(segments, segment{literal: rest[:open]})
		}

		closing := strings.IndexByte(rest[open:], '}')
		if closing == -1 {
			return nil, fmt.Errorf("unclosed placeholder at position %d", offset+open)
		}
		name := rest[open+1 : open+closing]
		if name == "" {
			return nil, fmt.Errorf("empty placeholder at position %d", offset+open)
		}
		fn, ok := fields[name]
		if !ok {
			return nil, fmt.Errorf("unknown placeholder {%s}", name)
		}
		segments = append(segments, segment{field: fn})

		consumed := open + closing + 1
		rest = rest[consumed:]
		offset += consumed
	}

	return &TemplateFormatter{template: template, segments: segments}, nil
}

func (f *TemplateFormatter) Template() string {
	return f.template
}

func (f *TemplateFormatter) Format(event *PurgeEvent) string {
	var b strings.Builder
	for _, s := range f.segments {
		if s.field != nil {
			b.WriteString(s.field(event))
			continue
		}
		b.WriteString(s.literal)
	}
	return b.String()
}

func firstURL(urls []string) string {
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`, "\r", `\r`)

// quote renders empty strings as "-" and everything else quoted and escaped
func quote(s string) string {
	if s == "" {
		return "-"
	}
	return `"` + escaper.Replace(s) + `"`
}
