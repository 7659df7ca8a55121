package parse

import (
	"regexp"
	"strconv"
	"strings"

	"tg-scraper/pkg/models"
	"tg-scraper/pkg/utils"
)

// Link shapes recognized by the classifier. Pages are slug-style paths on
// the two mirror hosts; posts are private-channel deep links carrying the
// bare numeric channel id and a message id.
const (
	telegraphPagePattern = `https?://telegra\.ph/[\w-]+`
	graphPagePattern     = `https?://graph\.org/[\w-]+`
	channelPostPattern   = `https?://t\.me/c/(\d+)/(\d+)`
)

var (
	telegraphPageRe = regexp.MustCompile(telegraphPagePattern)
	graphPageRe     = regexp.MustCompile(graphPagePattern)
	channelPostRe   = regexp.MustCompile(channelPostPattern)

	// Anchored variants for classifying a whole entry string
	entryTelegraphRe = regexp.MustCompile(`^` + telegraphPagePattern + `$`)
	entryGraphRe     = regexp.MustCompile(`^` + graphPagePattern + `$`)
	entryPostRe      = regexp.MustCompile(`^` + channelPostPattern + `$`)
)

// ExtractLinks scans arbitrary text (typically a message body) and returns
// every distinct link matching a recognized shape, tagged with its kind.
// Matching is independent per shape; one text may yield links of several
// kinds. Duplicates collapse to the first occurrence, so the result is
// deterministic for a given input. No I/O, no dedup against the ledger.
func ExtractLinks(text string) []models.ClassifiedLink {
	var links []models.ClassifiedLink
	seen := make(map[string]struct{})

	appendMatches := func(matches []string, kind models.LinkKind) {
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			links = append(links, models.ClassifiedLink{RawURL: m, Kind: kind})
		}
	}

	appendMatches(telegraphPageRe.FindAllString(text, -1), models.KindTelegraphPage)
	appendMatches(graphPageRe.FindAllString(text, -1), models.KindGraphPage)
	appendMatches(channelPostRe.FindAllString(text, -1), models.KindChannelPost)

	return links
}

// ClassifyEntry reports whether a single input entry is itself a recognized
// link. Entries that do not match any shape are not links (the caller
// typically treats those as channel references).
func ClassifyEntry(entry string) (models.ClassifiedLink, bool) {
	entry = strings.TrimSpace(entry)
	switch {
	case entryTelegraphRe.MatchString(entry):
		return models.ClassifiedLink{RawURL: entry, Kind: models.KindTelegraphPage}, true
	case entryGraphRe.MatchString(entry):
		return models.ClassifiedLink{RawURL: entry, Kind: models.KindGraphPage}, true
	case entryPostRe.MatchString(entry):
		return models.ClassifiedLink{RawURL: entry, Kind: models.KindChannelPost}, true
	}
	return models.ClassifiedLink{}, false
}

// PostRef identifies one message inside one channel, parsed out of a
// channel-post deep link.
type PostRef struct {
	ChannelID int64 // Bare numeric channel id (no -100 marker)
	MessageID int
}

// ParsePostLink extracts the channel and message identifiers from a
// channel-post deep link. Returns ErrInvalidLink when the input does not
// match the shape or an id does not fit its integer type.
func ParsePostLink(rawURL string) (PostRef, error) {
	m := entryPostRe.FindStringSubmatch(strings.TrimSpace(rawURL))
	if m == nil {
		return PostRef{}, utils.WrapErrorf(utils.ErrInvalidLink, "'%s' is not a channel-post link", rawURL)
	}

	channelID, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return PostRef{}, utils.WrapErrorf(utils.ErrInvalidLink, "channel id '%s' out of range", m[1])
	}
	messageID, err := strconv.Atoi(m[2])
	if err != nil {
		return PostRef{}, utils.WrapErrorf(utils.ErrInvalidLink, "message id '%s' out of range", m[2])
	}

	return PostRef{ChannelID: channelID, MessageID: messageID}, nil
}

// PageSlug returns the last path segment of a page link, used as the
// page's destination folder name. The caller sanitizes it before touching
// the filesystem.
func PageSlug(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
