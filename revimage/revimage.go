// Package revimage builds reverse-image search entry links for an avatar
// URL. Pure string templating: the engines are queried by the user's
// browser, never by this process.
package revimage

import (
	"errors"
	"net/url"
	"strings"
)

// ErrNotHTTP rejects image URLs outside http/https.
var ErrNotHTTP = errors.New("revimage: image_url must be http(s)")

// Link is one search engine entry point.
type Link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Links returns the engine entry points in fixed order. The endpoints are
// URL-entry points that change rarely but are not contractual.
func Links(imageURL string) ([]Link, error) {
	u := strings.TrimSpace(imageURL)
	lower := strings.ToLower(u)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return nil, ErrNotHTTP
	}
	q := url.QueryEscape(u)
	return []Link{
		{Name: "Google Images", URL: "https://www.google.com/searchbyimage?image_url=" + q},
		{Name: "Google Lens", URL: "https://lens.google.com/uploadbyurl?url=" + q},
		{Name: "Bing Visual Search", URL: "https://www.bing.com/images/search?q=imgurl:" + q + "&view=detailv2&iss=sbi"},
		{Name: "TinEye", URL: "https://tineye.com/search?url=" + q},
		{Name: "Yandex Images", URL: "https://yandex.com/images/search?rpt=imageview&url=" + q},
	}, nil
}
