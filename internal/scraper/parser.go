package scraper

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"

	"github.com/FranksOps/securescan/internal/scan"
	"github.com/PuerkitoBio/goquery"
)

// ParsedPage is what the parser extracts from one HTML response.
type ParsedPage struct {
	Title         string
	Links         []string
	Forms         []scan.Form
	InlineScripts []string
}

// ParsePage extracts title, outbound links and forms from an HTML response
// body. Non-HTML content and unparseable input yield an empty result rather
// than an error.
func ParsePage(pageURL *url.URL, body []byte, contentType string) ParsedPage {
	if !isHTML(contentType) {
		return ParsedPage{}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ParsedPage{}
	}

	var parsed ParsedPage
	parsed.Title = strings.TrimSpace(doc.Find("title").First().Text())

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := pageURL.ResolveReference(u)
		resolved.Fragment = ""
		link := CanonicalURL(resolved)
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		parsed.Links = append(parsed.Links, link)
	})

	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		parsed.Forms = append(parsed.Forms, parseForm(pageURL, s))
	})

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		if text := s.Text(); text != "" {
			parsed.InlineScripts = append(parsed.InlineScripts, text)
		}
	})

	return parsed
}

func parseForm(pageURL *url.URL, s *goquery.Selection) scan.Form {
	form := scan.Form{
		Action: pageURL.String(),
		Method: http.MethodGet,
	}

	if action, ok := s.Attr("action"); ok && strings.TrimSpace(action) != "" {
		if u, err := url.Parse(strings.TrimSpace(action)); err == nil {
			form.Action = pageURL.ResolveReference(u).String()
		}
	}

	if method, ok := s.Attr("method"); ok {
		// Anything other than POST is coerced to GET
		if strings.EqualFold(strings.TrimSpace(method), http.MethodPost) {
			form.Method = http.MethodPost
		}
	}

	s.Find("input, select, textarea").Each(func(_ int, inp *goquery.Selection) {
		name, _ := inp.Attr("name")
		if name == "" {
			return
		}
		typ, _ := inp.Attr("type")
		typ = strings.ToLower(strings.TrimSpace(typ))
		if typ == "" {
			typ = "text"
		}
		value, _ := inp.Attr("value")
		_, required := inp.Attr("required")
		form.Inputs = append(form.Inputs, scan.FormInput{
			Name:     name,
			Type:     typ,
			Required: required,
			Value:    value,
		})
	})

	return form
}

// CanonicalURL renders u in canonical form: scheme and host lower-cased,
// default port removed, fragment stripped, query preserved verbatim.
func CanonicalURL(u *url.URL) string {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	c.Fragment = ""

	host := strings.ToLower(c.Hostname())
	port := c.Port()
	switch {
	case port == "":
	case c.Scheme == "http" && port == "80":
	case c.Scheme == "https" && port == "443":
	default:
		host = host + ":" + port
	}
	c.Host = host

	return c.String()
}

// Canonicalize parses raw and returns its canonical form.
func Canonicalize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return CanonicalURL(u), nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		// Assume HTML if the server did not say otherwise
		return true
	}
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	return ct == "text/html" || ct == "application/xhtml+xml"
}
