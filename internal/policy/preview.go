package policy

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Preview is the Open Graph summary attached to a message with a link.
type Preview struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	SiteName    string `json:"site_name"`
}

const (
	previewTimeout  = 3 * time.Second
	previewMaxBytes = 256 * 1024
)

var (
	errNotHTTP      = errors.New("preview: only http and https URLs are fetched")
	errPrivateHost  = errors.New("preview: host resolves to a non-public address")
	errNotHTML      = errors.New("preview: response is not HTML")
	errEmptyPreview = errors.New("preview: no usable metadata")
)

// PreviewFetcher fetches Open Graph metadata for outbound links. Every
// resolved address is re-checked at dial time so DNS rebinding cannot
// smuggle a request to an internal host.
type PreviewFetcher struct {
	client *http.Client
}

func NewPreviewFetcher() *PreviewFetcher {
	dialer := &net.Dialer{Timeout: previewTimeout}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
			if err != nil {
				return nil, err
			}
			for _, ip := range ips {
				if !isPublicIP(ip) {
					return nil, errPrivateHost
				}
			}
			// Dial the vetted IP, not the hostname.
			return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
		},
		MaxIdleConns:    4,
		IdleConnTimeout: 30 * time.Second,
	}
	return &PreviewFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   previewTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return errors.New("preview: too many redirects")
				}
				return checkTarget(req.URL)
			},
		},
	}
}

func checkTarget(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return errNotHTTP
	}
	host := u.Hostname()
	if host == "" {
		return errNotHTTP
	}
	// Literal IPs are vetted here; hostnames are vetted again at dial.
	if ip := net.ParseIP(host); ip != nil && !isPublicIP(ip) {
		return errPrivateHost
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return errPrivateHost
	}
	return nil
}

func isPublicIP(ip net.IP) bool {
	switch {
	case ip.IsLoopback(), ip.IsPrivate(), ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return false
	case ip.IsMulticast(), ip.IsUnspecified(), ip.IsInterfaceLocalMulticast():
		return false
	}
	// Carrier-grade NAT range.
	if ip4 := ip.To4(); ip4 != nil && ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127 {
		return false
	}
	return true
}

// Fetch retrieves and parses Open Graph metadata for rawURL. Any failure
// returns a nil preview; callers treat previews as strictly optional.
func (f *PreviewFetcher) Fetch(ctx context.Context, rawURL string) (*Preview, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("preview: bad url: %w", err)
	}
	if err := checkTarget(u); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, previewTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "VixogramPreview/1.0")
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("preview: unexpected status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") && !strings.HasPrefix(ct, "application/xhtml") {
		return nil, errNotHTML
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, previewMaxBytes))
	if err != nil {
		return nil, err
	}

	p := parseOpenGraph(string(body))
	if p == nil {
		return nil, errEmptyPreview
	}
	p.URL = u.String()
	return p, nil
}

var (
	metaTagRe  = regexp.MustCompile(`(?is)<meta\s[^>]*>`)
	attrRe     = regexp.MustCompile(`(?is)(property|name|content)\s*=\s*("([^"]*)"|'([^']*)')`)
	titleTagRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
)

func parseOpenGraph(doc string) *Preview {
	p := &Preview{}
	for _, tag := range metaTagRe.FindAllString(doc, -1) {
		var key, content string
		for _, attr := range attrRe.FindAllStringSubmatch(tag, -1) {
			val := attr[3]
			if val == "" {
				val = attr[4]
			}
			switch strings.ToLower(attr[1]) {
			case "property", "name":
				key = strings.ToLower(val)
			case "content":
				content = html.UnescapeString(val)
			}
		}
		if content == "" {
			continue
		}
		switch key {
		case "og:title":
			p.Title = content
		case "og:description", "description":
			if p.Description == "" {
				p.Description = content
			}
		case "og:image":
			p.Image = content
		case "og:site_name":
			p.SiteName = content
		}
	}
	if p.Title == "" {
		if m := titleTagRe.FindStringSubmatch(doc); m != nil {
			p.Title = html.UnescapeString(strings.TrimSpace(m[1]))
		}
	}
	if p.Title == "" && p.Description == "" && p.Image == "" {
		return nil
	}
	return p
}
