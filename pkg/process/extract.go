package process

import (
	"fmt"
	"io"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"tg-scraper/pkg/parse"
	"tg-scraper/pkg/utils"
)

// ExtractImageURLs returns the distinct image sources of an HTML document,
// resolved against the page URL, in document order. Unresolvable srcs are
// logged and dropped; they never fail the extraction.
func ExtractImageURLs(r io.Reader, pageURL *url.URL, taskLog *logrus.Entry) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML document: %w", utils.ErrParsing, err)
	}

	var imgURLs []string
	seen := make(map[string]struct{})

	doc.Find("img[src]").Each(func(_ int, element *goquery.Selection) {
		src, _ := element.Attr("src")
		resolved, resolveErr := parse.ResolveImageURL(pageURL, src)
		if resolveErr != nil {
			taskLog.Debugf("Skipping image src '%s': %v", src, resolveErr)
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		imgURLs = append(imgURLs, resolved)
	})

	return imgURLs, nil
}
