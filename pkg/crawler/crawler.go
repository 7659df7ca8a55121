package crawler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"tg-scraper/pkg/models"
	"tg-scraper/pkg/parse"
	"tg-scraper/pkg/platform"
	"tg-scraper/pkg/process"
	"tg-scraper/pkg/utils"
)

// LinkProcessor fetches one classified link to completion. Both the page
// and the channel-post fetcher satisfy it.
type LinkProcessor interface {
	Process(ctx context.Context, link models.ClassifiedLink) process.Result
}

// Engine fans classified links out across the link pool and walks channel
// histories for more. Page and post fetches share the one pool; a dispatched
// task holds its slot for the entire fetch, nested image downloads included.
type Engine struct {
	log    *logrus.Logger
	client platform.Client

	// Link task routing
	pages LinkProcessor
	posts LinkProcessor

	// Concurrency control
	linkPool *semaphore.Weighted

	processedCounter atomic.Int64
}

// NewEngine creates an Engine dispatching onto the given link pool
func NewEngine(pages, posts LinkProcessor, client platform.Client, linkPool *semaphore.Weighted, log *logrus.Logger) *Engine {
	return &Engine{
		log:      log,
		client:   client,
		pages:    pages,
		posts:    posts,
		linkPool: linkPool,
	}
}

// Processed returns the number of link tasks settled so far
func (e *Engine) Processed() int64 {
	return e.processedCounter.Load()
}

// ProcessLinks dispatches every link across the pool and blocks until all
// of them settle. Results arrive in completion order.
func (e *Engine) ProcessLinks(ctx context.Context, links []models.ClassifiedLink) []process.Result {
	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make([]process.Result, 0, len(links))

	for _, link := range links {
		if err := e.dispatch(ctx, link, &wg, &mu, &results); err != nil {
			// Acquire fails only when the run is shutting down; the
			// remaining links are reported failed without being touched
			mu.Lock()
			results = append(results, process.Result{Link: link, Status: models.OutcomeFailed, Category: utils.CategorizeError(err)})
			mu.Unlock()
		}
	}

	wg.Wait()
	return results
}

// WalkChannel iterates a channel's URL-bearing history as the platform
// serves it (newest first), dispatching a fetch task for every recognized
// link. Without fullCrawl the walk stops after the first message that
// yields any tasks. Blocks until every dispatched task has settled; the
// returned error reports a walk cut short, not task failures.
func (e *Engine) WalkChannel(ctx context.Context, ch platform.Channel, fullCrawl bool) ([]process.Result, error) {
	walkLog := e.log.WithFields(logrus.Fields{"channel_id": ch.ID, "channel": ch.Title})
	mode := "latest"
	if fullCrawl {
		mode = "full"
	}
	walkLog.Infof("Walking channel history (%s mode)", mode)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var results []process.Result
	visited := 0

	walkErr := e.client.History(ctx, ch, func(msg platform.Message) (bool, error) {
		visited++
		links := parse.ExtractLinks(msg.Text)
		if len(links) == 0 {
			return false, nil
		}
		walkLog.WithField("message_id", msg.ID).Debugf("Message yields %d link(s)", len(links))
		for _, link := range links {
			if err := e.dispatch(ctx, link, &wg, &mu, &results); err != nil {
				return false, err
			}
		}
		// Latest mode stops at the first message that yielded tasks,
		// whether or not those tasks end up succeeding
		return !fullCrawl, nil
	})

	wg.Wait()

	if walkErr != nil {
		walkLog.WithField("error_category", utils.CategorizeError(walkErr)).Warnf("History walk ended early: %v", walkErr)
	}
	walkLog.Infof("Channel walk done: %d message(s) examined, %d link task(s) dispatched", visited, len(results))
	return results, walkErr
}

// dispatch acquires a link slot and runs the task in the background. The
// slot is released only after the task settles, so the pool bound covers
// page fetch plus image downloads. The caller's WaitGroup tracks settlement.
func (e *Engine) dispatch(ctx context.Context, link models.ClassifiedLink, wg *sync.WaitGroup, mu *sync.Mutex, results *[]process.Result) error {
	if err := e.linkPool.Acquire(ctx, 1); err != nil {
		return err
	}
	wg.Add(1)

	go func() {
		defer e.linkPool.Release(1)
		defer wg.Done()

		taskLog := e.log.WithFields(logrus.Fields{"url": link.RawURL, "kind": link.Kind})
		defer func() {
			if r := recover(); r != nil {
				taskLog.WithFields(logrus.Fields{
					"panic_info":  r,
					"stack_trace": string(debug.Stack()),
				}).Error("PANIC recovered in link task")
				mu.Lock()
				*results = append(*results, process.Result{Link: link, Status: models.OutcomeFailed, Category: utils.CategorizeError(fmt.Errorf("panic: %v", r))})
				mu.Unlock()
				e.processedCounter.Add(1)
			}
		}()

		res := e.processOne(ctx, link)
		mu.Lock()
		*results = append(*results, res)
		mu.Unlock()
		e.processedCounter.Add(1)
	}()

	return nil
}

// processOne routes a link to the fetcher for its kind
func (e *Engine) processOne(ctx context.Context, link models.ClassifiedLink) process.Result {
	switch {
	case link.Kind.IsPage():
		return e.pages.Process(ctx, link)
	case link.Kind == models.KindChannelPost:
		return e.posts.Process(ctx, link)
	default:
		e.log.WithField("url", link.RawURL).Warnf("Link has unrecognized kind '%s', skipping", link.Kind)
		return process.Result{Link: link, Status: models.OutcomeSkipped}
	}
}
