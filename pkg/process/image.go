package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"tg-scraper/pkg/fetch"
	"tg-scraper/pkg/utils"
)

// ImageDownloader downloads page images under one shared pool. The pool is
// global across all in-flight pages, so total simultaneous image downloads
// never exceed its bound regardless of how many pages are being fetched.
type ImageDownloader struct {
	fetcher   *fetch.Fetcher
	imagePool *semaphore.Weighted
	userAgent string
	log       *logrus.Logger
}

// NewImageDownloader creates an ImageDownloader sharing the given pool
func NewImageDownloader(fetcher *fetch.Fetcher, imagePool *semaphore.Weighted, userAgent string, log *logrus.Logger) *ImageDownloader {
	return &ImageDownloader{
		fetcher:   fetcher,
		imagePool: imagePool,
		userAgent: userAgent,
		log:       log,
	}
}

// DownloadAll fetches every image URL into destDir and waits for all
// attempts to settle. Each download is isolated: an individual failure is
// logged and counted but never cancels or fails its siblings. Returns the
// number of files written and the number of failed attempts.
func (d *ImageDownloader) DownloadAll(ctx context.Context, pageLog *logrus.Entry, imgURLs []string, destDir string) (saved, failed int) {
	var wg sync.WaitGroup
	var savedCount, failedCount atomic.Int64

	for _, imgURL := range imgURLs {
		wg.Add(1)
		go func(absURL string) {
			imgLog := pageLog.WithField("img_url", absURL)
			defer func() {
				if r := recover(); r != nil {
					imgLog.WithFields(logrus.Fields{
						"panic_info":  r,
						"stack_trace": string(debug.Stack()),
					}).Error("PANIC recovered in image download")
					failedCount.Add(1)
				}
				wg.Done()
			}()

			wrote, err := d.downloadOne(ctx, imgLog, absURL, destDir)
			if err != nil {
				imgLog.WithField("error_category", utils.CategorizeError(err)).Warnf("Image download failed: %v", err)
				failedCount.Add(1)
				return
			}
			if wrote {
				savedCount.Add(1)
			}
		}(imgURL)
	}

	wg.Wait()
	return int(savedCount.Load()), int(failedCount.Load())
}

// downloadOne fetches a single image while holding an image pool slot for
// the whole transfer. Returns (false, nil) when the destination file
// already exists; that is a skip, not a failure.
func (d *ImageDownloader) downloadOne(ctx context.Context, imgLog *logrus.Entry, absURL, destDir string) (saved bool, err error) {
	localPath := filepath.Join(destDir, deriveImageFilename(absURL, imgLog))

	// File-level idempotence, independent of the ledger
	if _, statErr := os.Stat(localPath); statErr == nil {
		imgLog.Debugf("Image file already exists, skipping: %s", localPath)
		return false, nil
	}

	// The slot is held from before the request until the file is written,
	// so the pool bound covers the whole transfer
	if acquireErr := d.imagePool.Acquire(ctx, 1); acquireErr != nil {
		if errors.Is(acquireErr, context.DeadlineExceeded) {
			return false, fmt.Errorf("%w: acquiring image slot for '%s': %w", utils.ErrSemaphoreTimeout, absURL, acquireErr)
		}
		return false, acquireErr
	}
	defer d.imagePool.Release(1)

	req, reqErr := fetch.NewRequest(ctx, absURL, d.userAgent)
	if reqErr != nil {
		return false, reqErr
	}

	resp, fetchErr := d.fetcher.Fetch(req, ctx)
	if fetchErr != nil {
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		return false, fmt.Errorf("fetch failed for img '%s': %w", absURL, fetchErr)
	}
	defer resp.Body.Close()

	// MkdirAll is idempotent, safe under concurrent sibling downloads
	if mkErr := os.MkdirAll(destDir, 0755); mkErr != nil {
		io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("%w: ensuring image directory '%s' exists: %w", utils.ErrFilesystem, destDir, mkErr)
	}

	outFile, createErr := os.Create(localPath)
	if createErr != nil {
		io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("%w: creating image file '%s': %w", utils.ErrFilesystem, localPath, createErr)
	}
	defer func() {
		if closeErr := outFile.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: closing image file '%s' after write: %w", utils.ErrFilesystem, localPath, closeErr)
			saved = false
		}
	}()

	copied, copyErr := io.Copy(outFile, resp.Body)
	if copyErr != nil {
		// Remove the partial file so a later run retries cleanly
		outFile.Close()
		os.Remove(localPath)
		return false, fmt.Errorf("%w: copying image data to '%s' (copied %d bytes): %w", utils.ErrFilesystem, localPath, copied, copyErr)
	}

	imgLog.Debugf("Saved image (%d bytes): %s", copied, localPath)
	return true, nil
}

// deriveImageFilename keeps the URL's basename as the local filename so
// re-runs land on the same path. URLs whose path has no usable basename
// fall back to a hash-derived name.
func deriveImageFilename(absImgURL string, imgLog *logrus.Entry) string {
	base := ""
	if u, parseErr := url.Parse(absImgURL); parseErr == nil {
		base = path.Base(u.Path)
		if base == "." || base == "/" {
			base = ""
		}
	}

	name := utils.SanitizeFilename(base)
	if base == "" || (name == "untitled" && base != "untitled") {
		name = "image_" + utils.CalculateStringSHA256(absImgURL)[:12]
		imgLog.Debugf("No usable basename in image URL, using hash fallback: %s", name)
	}
	return name
}
