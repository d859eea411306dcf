package sha256

import "testing"

func TestDigestDeterministic(t *testing.T) {
	t.Parallel()

	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got := Digest([]byte("hello world")); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if ETag([]byte("hello world")) != `"`+want+`"` {
		t.Fatalf("expected quoted digest, got %s", ETag([]byte("hello world")))
	}
}

func TestMatches(t *testing.T) {
	t.Parallel()

	etag := ETag([]byte(`{"url":"https://example.com"}`))
	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"empty", "", false},
		{"wildcard", "*", true},
		{"exact", etag, true},
		{"weak", "W/" + etag, true},
		{"list", `"abc", ` + etag, true},
		{"other", `"abc"`, false},
	}
	for _, tt := range tests {
		if got := Matches(tt.header, etag); got != tt.want {
			t.Errorf("%s: Matches(%q) = %v, want %v", tt.name, tt.header, got, tt.want)
		}
	}
}
