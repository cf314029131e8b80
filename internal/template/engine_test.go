package template

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"forge/internal/pkg/errors"
)

const lipsyncTemplate = `{
  "1": {
    "class_type": "LoadVideo",
    "inputs": {"video": "{{VIDEO}}", "width": "{{WIDTH}}", "height": "{{HEIGHT}}"}
  },
  "2": {
    "class_type": "LoadAudio",
    "inputs": {"audio": "{{AUDIO}}", "loop": "{{LOOP}}"}
  }
}`

func writeTemplate(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	writeTemplate(t, dir, "Lipsync", lipsyncTemplate)
	return NewEngine(NewStore(dir)), dir
}

func TestBuildSubstitutesAllPlaceholders(t *testing.T) {
	e, _ := newTestEngine(t)

	req, err := e.Build("Lipsync", map[string]any{
		"VIDEO":  "a.mp4",
		"AUDIO":  "b.wav",
		"WIDTH":  640,
		"HEIGHT": 360,
		"LOOP":   true,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if req.ClientID == "" {
		t.Error("expected a correlation id")
	}

	node1 := req.Document["1"].(map[string]any)["inputs"].(map[string]any)
	if got := node1["video"]; got != "a.mp4" {
		t.Errorf("video = %v, want a.mp4", got)
	}
	if got, ok := node1["width"].(float64); !ok || got != 640 {
		t.Errorf("width = %v (%T), want numeric 640", node1["width"], node1["width"])
	}

	node2 := req.Document["2"].(map[string]any)["inputs"].(map[string]any)
	if got, ok := node2["loop"].(bool); !ok || !got {
		t.Errorf("loop = %v (%T), want boolean true", node2["loop"], node2["loop"])
	}
}

func TestBuildMissingParameter(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Build("Lipsync", map[string]any{
		"VIDEO":  "a.mp4",
		"AUDIO":  "b.wav",
		"WIDTH":  640,
		"HEIGHT": 360,
	})
	if err == nil {
		t.Fatal("expected error for missing LOOP parameter")
	}
	if !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	fields := errors.GetFields(err)
	missing, _ := fields["placeholders"].([]string)
	if !reflect.DeepEqual(missing, []string{"LOOP"}) {
		t.Errorf("placeholders = %v, want [LOOP]", missing)
	}
}

func TestBuildEscapesQuotedStrings(t *testing.T) {
	e, _ := newTestEngine(t)

	req, err := e.Build("Lipsync", map[string]any{
		"VIDEO":  `file "with" quotes.mp4`,
		"AUDIO":  "line\nbreak.wav",
		"WIDTH":  640,
		"HEIGHT": 360,
		"LOOP":   false,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	node1 := req.Document["1"].(map[string]any)["inputs"].(map[string]any)
	if got := node1["video"]; got != `file "with" quotes.mp4` {
		t.Errorf("video = %v, quotes not preserved", got)
	}
}

func TestBuildTemplateNotFound(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Build("Missing", nil)
	if !errors.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     map[string]any
		wantErr bool
	}{
		{
			name:    "empty document",
			doc:     map[string]any{},
			wantErr: true,
		},
		{
			name: "valid node",
			doc: map[string]any{
				"1": map[string]any{"class_type": "LoadVideo", "inputs": map[string]any{}},
			},
			wantErr: false,
		},
		{
			name: "node not an object",
			doc: map[string]any{
				"1": "nope",
			},
			wantErr: true,
		},
		{
			name: "missing class_type",
			doc: map[string]any{
				"1": map[string]any{"inputs": map[string]any{}},
			},
			wantErr: true,
		},
		{
			name: "missing inputs",
			doc: map[string]any{
				"1": map[string]any{"class_type": "LoadVideo"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.doc)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParameters(t *testing.T) {
	e, _ := newTestEngine(t)

	params, err := e.Parameters("Lipsync")
	if err != nil {
		t.Fatalf("Parameters: %v", err)
	}

	want := []string{"AUDIO", "HEIGHT", "LOOP", "VIDEO", "WIDTH"}
	if !reflect.DeepEqual(params, want) {
		t.Errorf("Parameters = %v, want %v", params, want)
	}
}

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"int", 640, "640"},
		{"float", 1.5, "1.5"},
		{"string", "a.mp4", `"a.mp4"`},
		{"string with quote", `a"b`, `"a\"b"`},
		{"other type", []int{1, 2}, `"[1 2]"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encodeValue(tt.in); got != tt.want {
				t.Errorf("encodeValue(%v) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}
