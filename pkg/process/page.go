package process

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/sirupsen/logrus"

	"tg-scraper/pkg/config"
	"tg-scraper/pkg/fetch"
	"tg-scraper/pkg/models"
	"tg-scraper/pkg/parse"
	"tg-scraper/pkg/storage"
	"tg-scraper/pkg/utils"
)

const rawPageFilename = "page.html"

// PageFetcher runs the full fetch-and-store sequence for one page link:
// skip check, document fetch, raw persist, image extraction, bounded image
// downloads, ledger mark. Image downloads ride the shared image pool.
type PageFetcher struct {
	cfg         *config.AppConfig
	fetcher     *fetch.Fetcher
	ledger      storage.LinkLedger
	images      *ImageDownloader
	mdConverter *md.Converter
	log         *logrus.Logger
}

// NewPageFetcher creates a PageFetcher
func NewPageFetcher(cfg *config.AppConfig, fetcher *fetch.Fetcher, ledger storage.LinkLedger, images *ImageDownloader, log *logrus.Logger) *PageFetcher {
	return &PageFetcher{
		cfg:         cfg,
		fetcher:     fetcher,
		ledger:      ledger,
		images:      images,
		mdConverter: md.NewConverter("", true, nil),
		log:         log,
	}
}

// Process fetches one page link to completion. The returned Result is
// terminal for this run: failed links are not retried, and the ledger is
// written only after every image attempt has settled.
func (p *PageFetcher) Process(ctx context.Context, link models.ClassifiedLink) Result {
	taskLog := p.log.WithFields(logrus.Fields{"url": link.RawURL, "kind": link.Kind})
	failed := func(err error) Result {
		return Result{Link: link, Status: models.OutcomeFailed, Category: utils.CategorizeError(err)}
	}

	// Skip before fetch
	processed, err := p.ledger.IsProcessed(link.RawURL)
	if err != nil {
		taskLog.Errorf("Ledger check failed: %v", err)
		return failed(err)
	}
	if processed {
		taskLog.Debug("Link already processed, skipping")
		return Result{Link: link, Status: models.OutcomeSkipped}
	}

	pageURL, err := parse.ParsePageURL(link.RawURL)
	if err != nil {
		taskLog.Warnf("Unusable page link: %v", err)
		return failed(err)
	}

	// Single fetch attempt; a failed link is picked up by the next run
	req, err := fetch.NewRequest(ctx, link.RawURL, p.cfg.UserAgent)
	if err != nil {
		taskLog.Errorf("Building page request failed: %v", err)
		return failed(err)
	}
	resp, err := p.fetcher.Fetch(req, ctx)
	if err != nil {
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		taskLog.WithField("error_category", utils.CategorizeError(err)).Warnf("Page fetch failed: %v", err)
		return failed(err)
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		readErr := fmt.Errorf("%w: reading page body for '%s': %w", utils.ErrResponseBodyRead, link.RawURL, err)
		taskLog.Warn(readErr)
		return failed(readErr)
	}

	destDir := filepath.Join(p.cfg.SaveRoot, utils.SanitizeFilename(parse.PageSlug(link.RawURL)))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		mkErr := fmt.Errorf("%w: creating page directory '%s': %w", utils.ErrFilesystem, destDir, err)
		taskLog.Error(mkErr)
		return failed(mkErr)
	}

	// Persist the raw document for auditability. Best-effort: a write
	// failure here must not abort the image downloads.
	htmlPath := filepath.Join(destDir, rawPageFilename)
	if err := os.WriteFile(htmlPath, body, 0644); err != nil {
		taskLog.Warnf("Could not persist raw document to '%s': %v", htmlPath, err)
	}
	if p.cfg.SaveMarkdown {
		p.saveMarkdown(taskLog, destDir, body)
	}

	imgURLs, err := ExtractImageURLs(bytes.NewReader(body), pageURL, taskLog)
	if err != nil {
		taskLog.Warnf("Image extraction failed: %v", err)
		return failed(err)
	}

	// Zero images is a successful terminal state, not an error
	if len(imgURLs) == 0 {
		taskLog.Info("Page carries no images")
		return p.finish(ctx, taskLog, link, models.OutcomeEmpty, 0)
	}

	taskLog.Debugf("Dispatching %d image downloads", len(imgURLs))
	saved, failedCount := p.images.DownloadAll(ctx, taskLog, imgURLs, destDir)
	if failedCount > 0 {
		taskLog.Warnf("Page finished with %d of %d image downloads failed", failedCount, len(imgURLs))
	}

	return p.finish(ctx, taskLog, link, models.OutcomeFetched, saved)
}

// finish marks the link processed once all sub-work has settled. An
// aborted run must never mark the link, so cancellation is checked first.
func (p *PageFetcher) finish(ctx context.Context, taskLog *logrus.Entry, link models.ClassifiedLink, status models.OutcomeStatus, files int) Result {
	if err := ctx.Err(); err != nil {
		taskLog.Warnf("Run aborted before link completion, leaving unmarked: %v", err)
		return Result{Link: link, Status: models.OutcomeFailed, Category: utils.CategorizeError(err)}
	}
	if err := p.ledger.MarkProcessed(link.RawURL, link.Kind.StoreKind()); err != nil {
		taskLog.Errorf("Recording link in ledger failed: %v", err)
		return Result{Link: link, Status: models.OutcomeFailed, Category: utils.CategorizeError(err), Files: files}
	}
	if status == models.OutcomeFetched {
		taskLog.Infof("Page done: %d image(s) saved", files)
	}
	return Result{Link: link, Status: status, Files: files}
}

// saveMarkdown converts the document and writes it alongside the raw HTML.
// Best-effort like the raw persist.
func (p *PageFetcher) saveMarkdown(taskLog *logrus.Entry, destDir string, body []byte) {
	markdown, err := p.mdConverter.ConvertString(string(body))
	if err != nil {
		taskLog.Warnf("Markdown conversion failed: %v", fmt.Errorf("%w: %w", utils.ErrMarkdownConversion, err))
		return
	}
	mdPath := filepath.Join(destDir, "page.md")
	if err := os.WriteFile(mdPath, []byte(markdown), 0644); err != nil {
		taskLog.Warnf("Could not write markdown to '%s': %v", mdPath, err)
	}
}
