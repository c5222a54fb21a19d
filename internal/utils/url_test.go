package utils

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeURL(t *testing.T) {
	normalized, domain, err := NormalizeURL("https://Example.com/path?utm_source=test&x=1#frag")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if domain != "example.com" {
		t.Fatalf("unexpected domain: %s", domain)
	}
	if normalized != "https://example.com/path?x=1" {
		t.Fatalf("unexpected normalized url: %s", normalized)
	}

	_, domain, err = NormalizeURL("www.BÜCHER.de/shop")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if domain != "www.xn--bcher-kva.de" {
		t.Fatalf("expected punycode host, got %s", domain)
	}
}

func TestExtractURLs(t *testing.T) {
	got := ExtractURLs("see (https://a.example/x), www.b.example. and discord.gg/abc! plain.text")
	want := []string{"https://a.example/x", "www.b.example", "discord.gg/abc"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("urls mismatch (-want +got):\n%s", diff)
	}
	if len(ExtractURLs("no links here")) != 0 {
		t.Fatalf("expected no links")
	}
}

func TestDomainMatch(t *testing.T) {
	allow := DomainSet([]string{"Good.com", "*.tenor.com"}, []string{" "})
	cases := map[string]bool{
		"good.com":          true,
		"cdn.good.com":      true,
		"media.tenor.com":   true,
		"notgood.com":       false,
		"good.com.evil.net": false,
		"":                  false,
	}
	for domain, want := range cases {
		if got := DomainMatch(domain, allow); got != want {
			t.Fatalf("DomainMatch(%q) = %v, want %v", domain, got, want)
		}
	}
}
