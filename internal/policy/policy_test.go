package policy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vixogram/internal/models"
)

func TestContainsLink(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"see https://a.b/c", true},
		{"HTTP://EXAMPLE.COM", true},
		{"check www.example.com out", true},
		{"visit example.com today", true},
		{"deep.sub.example.org/path here", true},
		{"meet at 12.30", false},
		{"pi is 3.14159", false},
		{"hello world", false},
		{"", false},
		{"version 1.2.3 released", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContainsLink(tt.text), "text: %q", tt.text)
	}
}

func TestFirstLink(t *testing.T) {
	assert.Equal(t, "https://a.b/c", FirstLink("see https://a.b/c."))
	assert.Equal(t, "https://www.example.com", FirstLink("go to www.example.com"))
	assert.Empty(t, FirstLink("no links here"))
}

func TestRoomAllowsLinks(t *testing.T) {
	private := &models.Room{GroupName: "dm-1-2", IsPrivate: true}
	showcase := &models.Room{GroupName: "showcase", DisplayName: "Showcase Your Work"}
	promo := &models.Room{GroupName: "promo", DisplayName: "Free Promotion"}
	general := &models.Room{GroupName: "general", DisplayName: "General Chat"}

	assert.True(t, RoomAllowsLinks(private))
	assert.True(t, RoomAllowsLinks(showcase))
	assert.True(t, RoomAllowsLinks(promo))
	assert.False(t, RoomAllowsLinks(general))
}

func TestRoomAllowsUploads(t *testing.T) {
	codeRoom := &models.Room{GroupName: "cr", IsPrivate: true, IsCodeRoom: true}
	dm := &models.Room{GroupName: "dm", IsPrivate: true}
	showcase := &models.Room{GroupName: "showcase", DisplayName: "Showcase Your Work"}
	promo := &models.Room{GroupName: "promo", DisplayName: "Free Promotion"}

	assert.True(t, RoomAllowsUploads(codeRoom))
	assert.False(t, RoomAllowsUploads(dm))
	assert.True(t, RoomAllowsUploads(showcase))
	assert.False(t, RoomAllowsUploads(promo))
}

func TestParseMentions(t *testing.T) {
	handles := ParseMentions("hi @alice and @bob, also @alice again")
	assert.Equal(t, []string{"alice", "bob"}, handles)

	// Email addresses are not mentions.
	assert.Nil(t, ParseMentions("mail me at user@example.com"))

	assert.Nil(t, ParseMentions("no mentions"))

	// Capped at ten unique handles.
	body := "@a @b @c @d @e @f @g @h @i @j @k @l"
	assert.Len(t, ParseMentions(body), MaxMentionsPerMessage)
}

func TestPreviewFetcherRejectsPrivateHosts(t *testing.T) {
	f := NewPreviewFetcher()
	ctx := context.Background()

	for _, raw := range []string{
		"http://localhost:8000/x",
		"http://127.0.0.1/x",
		"http://10.0.0.5/",
		"http://192.168.1.1/admin",
		"http://169.254.169.254/latest/meta-data",
		"http://[::1]/",
		"ftp://example.com/file",
	} {
		p, err := f.Fetch(ctx, raw)
		assert.Error(t, err, "url: %s", raw)
		assert.Nil(t, p)
	}
}

func TestPreviewFetcherRejectsLoopbackServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><meta property="og:title" content="secret"></head></html>`))
	}))
	defer srv.Close()

	f := NewPreviewFetcher()
	p, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Nil(t, p)
}

func TestParseOpenGraph(t *testing.T) {
	doc := `<html><head>
		<title>Fallback Title</title>
		<meta property="og:title" content="OG Title">
		<meta property="og:description" content="A &amp; B">
		<meta property="og:image" content="https://img.example/x.png">
		<meta property="og:site_name" content="Example">
	</head></html>`

	p := parseOpenGraph(doc)
	require.NotNil(t, p)
	assert.Equal(t, "OG Title", p.Title)
	assert.Equal(t, "A & B", p.Description)
	assert.Equal(t, "https://img.example/x.png", p.Image)
	assert.Equal(t, "Example", p.SiteName)
}

func TestParseOpenGraphTitleFallback(t *testing.T) {
	p := parseOpenGraph(`<html><head><title>Only Title</title></head></html>`)
	require.NotNil(t, p)
	assert.Equal(t, "Only Title", p.Title)

	assert.Nil(t, parseOpenGraph(`<html><body>nothing</body></html>`))
}
