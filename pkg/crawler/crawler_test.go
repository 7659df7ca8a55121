package crawler

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"tg-scraper/pkg/models"
	"tg-scraper/pkg/platform"
	"tg-scraper/pkg/process"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// stubProcessor records the links it was handed and tracks overlap
type stubProcessor struct {
	mu       sync.Mutex
	links    []models.ClassifiedLink
	delay    time.Duration
	inflight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *stubProcessor) Process(ctx context.Context, link models.ClassifiedLink) process.Result {
	cur := s.inflight.Add(1)
	for {
		seen := s.maxSeen.Load()
		if cur <= seen || s.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.inflight.Add(-1)

	s.mu.Lock()
	s.links = append(s.links, link)
	s.mu.Unlock()
	return process.Result{Link: link, Status: models.OutcomeFetched, Files: 1}
}

func (s *stubProcessor) seenURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	urls := make([]string, 0, len(s.links))
	for _, l := range s.links {
		urls = append(urls, l.RawURL)
	}
	return urls
}

func testEngine(pages, posts *stubProcessor, client platform.Client, poolSize int64) *Engine {
	return NewEngine(pages, posts, client, semaphore.NewWeighted(poolSize), testLogger())
}

func TestEngine_ProcessLinksRoutesByKind(t *testing.T) {
	pages := &stubProcessor{}
	posts := &stubProcessor{}
	e := testEngine(pages, posts, platform.NewFake(), 4)

	links := []models.ClassifiedLink{
		{RawURL: "https://telegra.ph/One", Kind: models.KindTelegraphPage},
		{RawURL: "https://graph.org/Two", Kind: models.KindGraphPage},
		{RawURL: "https://t.me/c/123/45", Kind: models.KindChannelPost},
	}
	results := e.ProcessLinks(context.Background(), links)

	require.Len(t, results, 3)
	for _, res := range results {
		assert.Equal(t, models.OutcomeFetched, res.Status, "result for %s", res.Link.RawURL)
	}
	assert.ElementsMatch(t, []string{"https://telegra.ph/One", "https://graph.org/Two"}, pages.seenURLs())
	assert.ElementsMatch(t, []string{"https://t.me/c/123/45"}, posts.seenURLs())
	assert.Equal(t, int64(3), e.Processed())
}

func TestEngine_ProcessLinksPoolBound(t *testing.T) {
	pages := &stubProcessor{delay: 30 * time.Millisecond}
	e := testEngine(pages, &stubProcessor{}, platform.NewFake(), 2)

	links := make([]models.ClassifiedLink, 6)
	for i := range links {
		links[i] = models.ClassifiedLink{RawURL: "https://telegra.ph/Page-" + string(rune('A'+i)), Kind: models.KindTelegraphPage}
	}
	results := e.ProcessLinks(context.Background(), links)

	require.Len(t, results, 6)
	maxSeen := pages.maxSeen.Load()
	assert.LessOrEqual(t, maxSeen, int32(2), "link pool bound exceeded")
	assert.GreaterOrEqual(t, maxSeen, int32(2), "link tasks never overlapped")
}

func TestEngine_ProcessLinksCancelled(t *testing.T) {
	pages := &stubProcessor{}
	e := testEngine(pages, &stubProcessor{}, platform.NewFake(), 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	links := []models.ClassifiedLink{
		{RawURL: "https://telegra.ph/One", Kind: models.KindTelegraphPage},
		{RawURL: "https://telegra.ph/Two", Kind: models.KindTelegraphPage},
	}
	results := e.ProcessLinks(ctx, links)

	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, models.OutcomeFailed, res.Status)
		assert.Equal(t, "System_ContextCanceled", res.Category)
	}
	assert.Empty(t, pages.seenURLs(), "cancelled run must not touch any fetcher")
}

func TestEngine_WalkChannelLatestOnly(t *testing.T) {
	fake := platform.NewFake()
	ch := platform.Channel{ID: 555, Title: "Walks"}
	fake.AddChannel(ch)
	// Newest first: a URL-bearing message with no recognized links must
	// not satisfy latest mode; the walk continues to the next message
	fake.AddHistory(ch.ID,
		platform.Message{ID: 30, Text: "see https://example.com/unrelated"},
		platform.Message{ID: 20, Text: "fresh drop https://telegra.ph/Latest-Post"},
		platform.Message{ID: 10, Text: "older https://telegra.ph/Older-Post"},
	)

	pages := &stubProcessor{}
	e := testEngine(pages, &stubProcessor{}, fake, 4)

	results, err := e.WalkChannel(context.Background(), ch, false)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"https://telegra.ph/Latest-Post"}, pages.seenURLs())
}

func TestEngine_WalkChannelFullCrawl(t *testing.T) {
	fake := platform.NewFake()
	ch := platform.Channel{ID: 555, Title: "Walks"}
	fake.AddChannel(ch)
	fake.AddHistory(ch.ID,
		platform.Message{ID: 30, Text: "see https://example.com/unrelated"},
		platform.Message{ID: 20, Text: "fresh drop https://telegra.ph/Latest-Post"},
		platform.Message{ID: 10, Text: "older https://telegra.ph/Older-Post"},
	)

	pages := &stubProcessor{}
	e := testEngine(pages, &stubProcessor{}, fake, 4)

	results, err := e.WalkChannel(context.Background(), ch, true)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ElementsMatch(t, []string{"https://telegra.ph/Latest-Post", "https://telegra.ph/Older-Post"}, pages.seenURLs())
}

func TestEngine_WalkChannelMixedKindsInOneMessage(t *testing.T) {
	fake := platform.NewFake()
	ch := platform.Channel{ID: 555, Title: "Walks"}
	fake.AddChannel(ch)
	fake.AddHistory(ch.ID, platform.Message{
		ID:   40,
		Text: "album https://telegra.ph/Album mirror https://graph.org/Mirror post https://t.me/c/555/39",
	})

	pages := &stubProcessor{}
	posts := &stubProcessor{}
	e := testEngine(pages, posts, fake, 4)

	results, err := e.WalkChannel(context.Background(), ch, false)

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.ElementsMatch(t, []string{"https://telegra.ph/Album", "https://graph.org/Mirror"}, pages.seenURLs())
	assert.ElementsMatch(t, []string{"https://t.me/c/555/39"}, posts.seenURLs())
}
