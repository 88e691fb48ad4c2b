package vidget

import (
	"strings"
	"testing"
)

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"plain title", "plain title"},
		{"<script>alert('x')</script>", "&lt;script&gt;alert(&#039;x&#039;)&lt;/script&gt;"},
		{`Tom & "Jerry"`, "Tom &amp; &quot;Jerry&quot;"},
		{"&lt;", "&amp;lt;"},
		{"<&>", "&lt;&amp;&gt;"},
	}
	for _, tt := range tests {
		if got := EscapeHTML(tt.in); got != tt.want {
			t.Errorf("EscapeHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapeHTMLLeavesNoMarkup(t *testing.T) {
	inputs := []string{
		`<img src=x onerror="alert(1)">`,
		`'';!--"<XSS>=&{()}`,
		"&&&<<<>>>\"\"\"'''",
		"ünïcödé & <b>bold</b>",
	}
	for _, in := range inputs {
		out := EscapeHTML(in)
		if strings.ContainsAny(out, `<>"'`) {
			t.Errorf("EscapeHTML(%q) = %q still contains markup characters", in, out)
		}
		// Every remaining ampersand must start one of the entities we emit.
		rest := out
		for {
			i := strings.IndexByte(rest, '&')
			if i < 0 {
				break
			}
			rest = rest[i:]
			ok := false
			for _, ent := range []string{"&amp;", "&lt;", "&gt;", "&quot;", "&#039;"} {
				if strings.HasPrefix(rest, ent) {
					ok = true
					break
				}
			}
			if !ok {
				t.Errorf("EscapeHTML(%q) = %q contains an unescaped ampersand", in, out)
				break
			}
			rest = rest[1:]
		}
	}
}
