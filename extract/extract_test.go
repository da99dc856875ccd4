package extract

import (
	"testing"
)

func TestFromHTMLOpenGraph(t *testing.T) {
	body := []byte(`<html><head>
		<meta property="og:title" content="Alice Doe"/>
		<meta property="og:description" content="Security &amp; coffee"/>
		<meta property="og:image" content="https://cdn.example/alice.png"/>
		<meta property="og:url" content="https://example.com/alice"/>
		<title>fallback title</title>
	</head><body></body></html>`)

	fields, ogTitle := FromHTML(body)
	if ogTitle != "Alice Doe" {
		t.Errorf("ogTitle = %q", ogTitle)
	}
	if got := fields[KeyDisplayName]; got != "Alice Doe" {
		t.Errorf("display_name = %v", got)
	}
	if got := fields[KeyBio]; got != "Security & coffee" {
		t.Errorf("bio = %v", got)
	}
	if got := fields[KeyAvatarURL]; got != "https://cdn.example/alice.png" {
		t.Errorf("avatar_url = %v", got)
	}
	if got := fields[KeyURL]; got != "https://example.com/alice" {
		t.Errorf("url = %v", got)
	}
}

func TestFromHTMLJSONLDWins(t *testing.T) {
	body := []byte(`<html><head>
		<script type="application/ld+json">
		{"@context":"https://schema.org","@graph":[
			{"@type":"WebSite","name":"site"},
			{"@type":"Person","name":"Alice From LD","image":{"@type":"ImageObject","url":"https://cdn.example/ld.png"},"url":"https://example.com/alice","description":"<b>builder</b> of things"}
		]}
		</script>
		<meta property="og:title" content="Alice From OG"/>
		<meta property="og:image" content="https://cdn.example/og.png"/>
	</head></html>`)

	fields, ogTitle := FromHTML(body)
	if ogTitle != "Alice From OG" {
		t.Errorf("ogTitle = %q", ogTitle)
	}
	if got := fields[KeyDisplayName]; got != "Alice From LD" {
		t.Errorf("display_name = %v, want JSON-LD value to win", got)
	}
	if got := fields[KeyAvatarURL]; got != "https://cdn.example/ld.png" {
		t.Errorf("avatar_url = %v", got)
	}
	if got := fields[KeyBio]; got != "builder of things" {
		t.Errorf("bio = %v, want sanitized", got)
	}
}

func TestFromHTMLTwitterCardFallback(t *testing.T) {
	body := []byte(`<html><head>
		<meta name="twitter:title" content="Alice TW"/>
		<meta name="twitter:image" content="https://cdn.example/tw.png"/>
	</head></html>`)
	fields, ogTitle := FromHTML(body)
	if ogTitle != "" {
		t.Errorf("ogTitle = %q, want empty", ogTitle)
	}
	if got := fields[KeyDisplayName]; got != "Alice TW" {
		t.Errorf("display_name = %v", got)
	}
	if got := fields[KeyAvatarURL]; got != "https://cdn.example/tw.png" {
		t.Errorf("avatar_url = %v", got)
	}
}

func TestFromHTMLTitleFallback(t *testing.T) {
	fields, _ := FromHTML([]byte(`<html><head><title>  Bob's page </title></head></html>`))
	if got := fields[KeyDisplayName]; got != "Bob's page" {
		t.Errorf("display_name = %v", got)
	}
}

func TestFromHTMLMalformed(t *testing.T) {
	fields, ogTitle := FromHTML([]byte("<<<%%% not html \x00"))
	if ogTitle != "" || fields[KeyDisplayName] != nil {
		t.Errorf("malformed markup produced fields: %v %q", fields, ogTitle)
	}
}

func TestSniffCounts(t *testing.T) {
	body := []byte(`<html><body><span>12.3K Followers</span> <span>101 following</span> <span>2M subscribers</span></body></html>`)
	fields, _ := FromHTML(body)
	if got := fields[KeyFollowers]; got != int64(12300) {
		t.Errorf("followers = %v", got)
	}
	if got := fields[KeyFollowing]; got != int64(101) {
		t.Errorf("following = %v", got)
	}
	if got := fields[KeySubscribers]; got != int64(2000000) {
		t.Errorf("subscribers = %v", got)
	}
}

func TestParseHumanCount(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"1234", 1234, true},
		{"1,234", 1234, true},
		{"12.3K", 12300, true},
		{"12.3k", 12300, true},
		{"4M", 4000000, true},
		{"1.5B", 1500000000, true},
		{"0", 0, true},
		{"", 0, false},
		{"K", 0, false},
		{"12a4", 0, false},
		{"1.2.3", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseHumanCount(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseHumanCount(%q) = %d,%v want %d,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFromJSON(t *testing.T) {
	body := []byte(`{"data":{"name":"Alice","icon_img":"https://cdn.example/a.png","public_description":"hi there","subscribers":421,"created_utc":"2019-04-01"}}`)
	fields := FromJSON(body)
	if got := fields[KeyDisplayName]; got != "Alice" {
		t.Errorf("display_name = %v", got)
	}
	if got := fields[KeyAvatarURL]; got != "https://cdn.example/a.png" {
		t.Errorf("avatar_url = %v", got)
	}
	if got := fields[KeyBio]; got != "hi there" {
		t.Errorf("bio = %v", got)
	}
	if got := fields[KeySubscribers]; got != int64(421) {
		t.Errorf("subscribers = %v", got)
	}
	if got := fields[KeyCreatedAt]; got != "2019-04-01" {
		t.Errorf("created_at = %v", got)
	}
}

func TestFromJSONInvalid(t *testing.T) {
	if fields := FromJSON([]byte("not json")); len(fields) != 0 {
		t.Errorf("invalid JSON produced fields: %v", fields)
	}
}

func TestSanitizeBio(t *testing.T) {
	tests := []struct{ in, want string }{
		{"<b>bold</b> text", "bold text"},
		{"line\n\nbreaks   and\ttabs", "line breaks and tabs"},
		{"&lt;tag&gt; &amp; entity", "<tag> & entity"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeBio(tt.in); got != tt.want {
			t.Errorf("SanitizeBio(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
