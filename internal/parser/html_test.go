package parser

import (
	"strings"
	"testing"
)

func TestHTMLExtractor_SkipsChrome(t *testing.T) {
	input := `<html><head><title>Pricing</title><style>p{}</style></head>
<body>
<nav><a href="/">Home</a></nav>
<h1>Plans</h1>
<p>The basic   plan costs
 $5.</p>
<script>var x = 1;</script>
<ul><li>Unlimited users</li><li>Email support</li></ul>
<footer>Copyright</footer>
</body></html>`

	got, err := (&HTMLExtractor{}).Extract(strings.NewReader(input), "pricing.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "Pricing\n\nPlans\n\nThe basic plan costs\n$5.\n\nUnlimited users\n\nEmail support"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestHTMLExtractor_DivOnlyPage(t *testing.T) {
	input := `<html><body><div>Alpha</div><div><span>Beta</span></div><script>nope()</script></body></html>`
	got, err := (&HTMLExtractor{}).Extract(strings.NewReader(input), "divs.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Alpha\nBeta" {
		t.Errorf("expected %q, got %q", "Alpha\nBeta", got)
	}
}
