package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() *PurgeEvent {
	return &PurgeEvent{
		TriggerID:  "a1b2c-switch-theme",
		Trigger:    "switch_theme",
		Kind:       "full",
		ZoneID:     "023e105f4ecef8ad9ca31a8372d0c353",
		Outcome:    OutcomeFailure,
		StatusCode: 429,
		Message:    "rate \"limited\"\tnow",
		Duration:   0.1234,
		CreatedAt:  time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
		DaemonID:   "purge-1",
	}
}

func TestNewTemplateFormatter_Errors(t *testing.T) {
	tests := []struct {
		name        string
		template    string
		errContains string
	}{
		{"empty", "", "template cannot be empty"},
		{"unknown", "{trigger} {host}", "unknown placeholder {host}"},
		{"unclosed", "{trigger", "unclosed placeholder at position 0"},
		{"empty placeholder", "x {}", "empty placeholder at position 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewTemplateFormatter(tt.template)
			require.Error(t, err)
			assert.Nil(t, f)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestTemplateFormatter_Format(t *testing.T) {
	tests := []struct {
		name     string
		template string
		event    *PurgeEvent
		expected string
	}{
		{
			name:     "literal only",
			template: "purge",
			event:    sampleEvent(),
			expected: "purge",
		},
		{
			name:     "escaping and numbers",
			template: "{trigger} {status_code} {duration} {message}",
			event:    sampleEvent(),
			expected: `"switch_theme" 429 0.123 "rate \"limited\"\tnow"`,
		},
		{
			name:     "timestamp and empty fields",
			template: "{timestamp}|{error_type}|{url_count}|{first_url}",
			event:    sampleEvent(),
			expected: "2024-05-01T10:30:00.000Z|-|0|-",
		},
		{
			name:     "selective urls",
			template: "{kind}:{url_count}:{first_url}",
			event: &PurgeEvent{
				Kind: "selective",
				URLs: []string{"https://example.com/a/", "https://example.com/"},
			},
			expected: `"selective":2:"https://example.com/a/"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewTemplateFormatter(tt.template)
			require.NoError(t, err)
			assert.Equal(t, tt.template, f.Template())
			assert.Equal(t, tt.expected, f.Format(tt.event))
		})
	}
}

func TestDefaultTemplateIsValid(t *testing.T) {
	f, err := NewTemplateFormatter(DefaultTemplate)
	require.NoError(t, err)
	assert.Contains(t, f.Format(sampleEvent()), `"023e105f4ecef8ad9ca31a8372d0c353"`)
}
