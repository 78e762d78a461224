package services

import (
	"errors"
	"strings"
	"testing"
)

func TestExtractHTMLStripsBoilerplate(t *testing.T) {
	html := `<html><head><title>t</title><style>body{color:red}</style></head>
	<body>
	<nav>navigation links</nav>
	<header>site header</header>
	<script>var x = 1;</script>
	<main><p>The actual article content lives here.</p></main>
	<footer>copyright footer</footer>
	</body></html>`

	got, err := NewExtractor().ExtractHTML([]byte(html))
	if err != nil {
		t.Fatalf("ExtractHTML: %v", err)
	}

	if !strings.Contains(got, "The actual article content lives here.") {
		t.Errorf("article text missing: %q", got)
	}
	for _, boilerplate := range []string{"navigation links", "site header", "copyright footer", "var x = 1"} {
		if strings.Contains(got, boilerplate) {
			t.Errorf("boilerplate %q not stripped", boilerplate)
		}
	}
}

func TestExtractHTMLEmptyBody(t *testing.T) {
	html := `<html><body><script>only();</script></body></html>`

	_, err := NewExtractor().ExtractHTML([]byte(html))
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}
