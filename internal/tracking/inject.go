package tracking

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var linkRe = regexp.MustCompile(`href=["'](https?://[^"']+)["']`)

// Injector adds the open pixel and click redirects to outgoing HTML.
type Injector struct {
	baseURL string
}

// NewInjector creates an Injector whose links point at baseURL.
func NewInjector(baseURL string) *Injector {
	return &Injector{baseURL: strings.TrimRight(baseURL, "/")}
}

// OpenURL returns the pixel URL for a tracking id.
func (in *Injector) OpenURL(trackingID string) string {
	return fmt.Sprintf("%s/track/open/%s", in.baseURL, url.PathEscape(trackingID))
}

// ClickURL returns the redirect URL for a link.
func (in *Injector) ClickURL(trackingID, target string) string {
	return fmt.Sprintf("%s/track/click/%s?url=%s", in.baseURL, url.PathEscape(trackingID), url.QueryEscape(target))
}

// InjectTracking rewrites every absolute http(s) link through the click
// redirect and appends the open pixel before </body>.
func (in *Injector) InjectTracking(html, trackingID string) string {
	if trackingID == "" {
		return html
	}
	html = linkRe.ReplaceAllStringFunc(html, func(match string) string {
		parts := linkRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		orig := parts[1]
		if strings.Contains(orig, "/track/") {
			return match
		}
		return fmt.Sprintf(`href="%s"`, in.ClickURL(trackingID, orig))
	})

	pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:none;width:1px;height:1px" />`, in.OpenURL(trackingID))
	if idx := strings.LastIndex(strings.ToLower(html), "</body>"); idx >= 0 {
		return html[:idx] + pixel + html[idx:]
	}
	return html + pixel
}
