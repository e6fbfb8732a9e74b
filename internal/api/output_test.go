package api

import (
	"bytes"
	"strings"
	"testing"
)

func TestOutputTo(t *testing.T) {
	data := map[string]any{"source_id": "gutendex", "enabled": true}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := OutputTo(&buf, OutputFormatJSON, data); err != nil {
			t.Fatalf("OutputTo: %v", err)
		}
		if !strings.Contains(buf.String(), `"source_id": "gutendex"`) {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := OutputTo(&buf, OutputFormatYAML, data); err != nil {
			t.Fatalf("OutputTo: %v", err)
		}
		if !strings.Contains(buf.String(), "source_id: gutendex") {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		var buf bytes.Buffer
		if err := OutputTo(&buf, OutputFormat("xml"), data); err == nil {
			t.Fatal("want error for unknown format")
		}
	})
}

func TestSetOutputFormat(t *testing.T) {
	t.Cleanup(func() { SetOutputFormat("yaml") })

	SetOutputFormat("json")
	if GetOutputFormat() != OutputFormatJSON {
		t.Errorf("format = %q, want json", GetOutputFormat())
	}

	SetOutputFormat("csv")
	if GetOutputFormat() != OutputFormatYAML {
		t.Errorf("unknown format must fall back to yaml, got %q", GetOutputFormat())
	}
}
