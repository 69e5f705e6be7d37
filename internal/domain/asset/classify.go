package asset

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// categoryParams maps a classification tag to the query parameter names that
// commonly indicate that vulnerability class. A URL carrying any of them gets
// the tag.
var categoryParams = map[string][]string{
	"xss":      {"q", "s", "search", "query", "keyword", "lang", "callback", "jsonp", "name", "view", "page"},
	"sqli":     {"id", "select", "report", "update", "query", "user", "sort", "where", "search", "row", "table", "from", "order", "column", "field", "filter", "results", "view"},
	"lfi":      {"file", "document", "folder", "root", "path", "pg", "style", "template", "doc", "page", "dir", "download", "include", "inc", "show", "site", "content", "layout", "mod", "conf"},
	"ssrf":     {"dest", "redirect", "uri", "path", "continue", "url", "next", "data", "reference", "site", "html", "val", "validate", "domain", "callback", "return", "feed", "host", "port", "to", "out"},
	"redirect": {"next", "url", "target", "rurl", "dest", "destination", "redir", "redirect_uri", "redirect_url", "redirect", "out", "to", "image_url", "go", "return", "returnto", "return_to", "checkout_url", "continue"},
}

// pathPatterns tag URLs by path shape rather than parameters.
var pathPatterns = []struct {
	tag string
	re  *regexp.Regexp
}{
	{"login", regexp.MustCompile(`(?i)/(login|log-in|signin|sign-in|auth|sso|oauth)`)},
	{"admin", regexp.MustCompile(`(?i)/(admin|administrator|manage|dashboard)(/|$|\.)`)},
	{"api", regexp.MustCompile(`(?i)/(api|graphql|rest|v[0-9]+)/`)},
	{"upload", regexp.MustCompile(`(?i)/(upload|uploads|import)(/|$|\.)`)},
	{"debug", regexp.MustCompile(`(?i)/(debug|trace|phpinfo|test)(/|$|\.)`)},
	{"backup", regexp.MustCompile(`(?i)\.(bak|backup|old|orig|swp|save)$`)},
	{"config", regexp.MustCompile(`(?i)(/\.env|/\.git|/config|/settings|web\.config|wp-config)`)},
	{"docs", regexp.MustCompile(`(?i)\.(pdf|docx?|xlsx?|pptx?|txt|csv)$`)},
	{"secrets", regexp.MustCompile(`(?i)(api[_-]?key|secret|token|passwd|password|credential)`)},
}

// mediaExtensions are static-asset suffixes that crawlers emit in bulk but that
// carry no attack surface worth persisting.
var mediaExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
	".css", ".woff", ".woff2", ".ttf", ".eot",
	".mp3", ".mp4", ".webm", ".webp",
}

// ClassifyURL assigns category tags to a crawled URL based on its query
// parameter names and path shape. The result is sorted and duplicate-free; an
// unclassifiable URL yields nil.
func ClassifyURL(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}

	tagSet := make(map[string]struct{})

	params := u.Query()
	for tag, names := range categoryParams {
		for _, name := range names {
			if _, ok := params[name]; ok {
				tagSet[tag] = struct{}{}
				break
			}
		}
	}

	for _, p := range pathPatterns {
		if p.re.MatchString(u.Path) || p.re.MatchString(u.RawQuery) {
			tagSet[p.tag] = struct{}{}
		}
	}

	if len(tagSet) == 0 {
		return nil
	}
	tags := make([]string, 0, len(tagSet))
	for tag := range tagSet {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// IsMediaURL reports whether the URL points at a static media asset that should
// be filtered out of crawl results.
func IsMediaURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, ext := range mediaExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// URLSignature reduces a URL to host+path plus its sorted parameter names,
// ignoring parameter values. Crawlers emit many value-variants of the same
// endpoint; signatures collapse them to one unit of attack surface.
func URLSignature(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	sig := u.Hostname() + u.Path
	params := u.Query()
	if len(params) == 0 {
		return sig
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return sig + "?" + strings.Join(names, ",")
}
