package extractor

import "testing"

func TestDecodeLLMJSON(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: `{"title":"a"}`, want: "a"},
		{name: "fenced", in: "```json\n{\"title\":\"b\"}\n```", want: "b"},
		{name: "upper fence", in: "```JSON\n{\"title\":\"c\"}\n```", want: "c"},
		{name: "prose around", in: "Sure! {\"title\":\"d\"} Hope this helps.", want: "d"},
		{name: "braces in strings", in: "note: {\"title\":\"e}\"} trailing }", want: "e}"},
		{name: "fence inside string", in: "```json\n{\"title\":\"Go notes\",\"content\":\"Example:\\n```go\\nfmt.Println(1)\\n```\"}\n```", want: "Go notes"},
		{name: "braces in prose", in: "Here is the note {as requested}: {\"title\":\"T\",\"content\":\"C\"}", want: "T"},
		{name: "empty", in: "  ", wantErr: true},
		{name: "no json", in: "I cannot help with that", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out struct {
				Title string `json:"title"`
			}
			err := DecodeLLMJSON(tc.in, &out)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out.Title != tc.want {
				t.Fatalf("title = %q, want %q", out.Title, tc.want)
			}
		})
	}
}

func TestDecodeLLMJSONKeepsFencedMarkdown(t *testing.T) {
	in := "```json\n{\"title\":\"Go notes\",\"content\":\"Example:\\n```go\\nfmt.Println(1)\\n```\"}\n```"
	var out struct {
		Content string `json:"content"`
	}
	if err := DecodeLLMJSON(in, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if want := "Example:\n```go\nfmt.Println(1)\n```"; out.Content != want {
		t.Fatalf("content = %q, want %q", out.Content, want)
	}
}

func TestExtractJSONSkipsInvalidCandidates(t *testing.T) {
	got := extractJSON("see {this} and [also] then {\"ok\":true}")
	if got != `{"ok":true}` {
		t.Fatalf("extractJSON = %q", got)
	}
	if extractJSON("nothing here") != "" {
		t.Fatal("expected no candidate")
	}
}

func TestExtractContentFromChoices(t *testing.T) {
	cases := map[string]string{
		`{"choices":[{"message":{"content":"hello"}}]}`: "hello",
		`{"choices":[{"delta":{"content":"streamed"}}]}`: "streamed",
		`{"choices":[{"text":"legacy"}]}`:                 "legacy",
		`{"choices":[]}`:                                  "",
		`not json`:                                        "",
	}
	for body, want := range cases {
		if got := extractContentFromChoices([]byte(body)); got != want {
			t.Fatalf("extractContentFromChoices(%s) = %q, want %q", body, got, want)
		}
	}
}
