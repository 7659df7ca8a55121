package process

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"tg-scraper/pkg/config"
	"tg-scraper/pkg/models"
	"tg-scraper/pkg/parse"
	"tg-scraper/pkg/platform"
	"tg-scraper/pkg/storage"
	"tg-scraper/pkg/utils"
)

// PostFetcher resolves a channel-post link through the messaging platform
// and downloads its attached media. Platform access failures are skips,
// never fatal to the broader run.
type PostFetcher struct {
	cfg    *config.AppConfig
	client platform.Client
	ledger storage.LinkLedger
	log    *logrus.Logger
}

// NewPostFetcher creates a PostFetcher
func NewPostFetcher(cfg *config.AppConfig, client platform.Client, ledger storage.LinkLedger, log *logrus.Logger) *PostFetcher {
	return &PostFetcher{
		cfg:    cfg,
		client: client,
		ledger: ledger,
		log:    log,
	}
}

// Process fetches one channel-post link to completion. A post whose
// message carries no media is terminal success and is marked processed;
// an unresolvable channel or message is a skip and is not.
func (p *PostFetcher) Process(ctx context.Context, link models.ClassifiedLink) Result {
	taskLog := p.log.WithFields(logrus.Fields{"url": link.RawURL, "kind": link.Kind})

	processed, err := p.ledger.IsProcessed(link.RawURL)
	if err != nil {
		taskLog.Errorf("Ledger check failed: %v", err)
		return Result{Link: link, Status: models.OutcomeFailed, Category: utils.CategorizeError(err)}
	}
	if processed {
		taskLog.Debug("Link already processed, skipping")
		return Result{Link: link, Status: models.OutcomeSkipped}
	}

	ref, err := parse.ParsePostLink(link.RawURL)
	if err != nil {
		taskLog.Warnf("Malformed post link, skipping: %v", err)
		return Result{Link: link, Status: models.OutcomeSkipped, Category: utils.CategorizeError(err)}
	}
	taskLog = taskLog.WithFields(logrus.Fields{"channel_id": ref.ChannelID, "message_id": ref.MessageID})

	ch, err := p.client.ResolveChannel(ctx, strconv.FormatInt(ref.ChannelID, 10))
	if err != nil {
		return p.resolveFailure(ctx, taskLog, link, "Channel resolution failed", err)
	}

	msg, err := p.client.Message(ctx, ch, ref.MessageID)
	if err != nil {
		return p.resolveFailure(ctx, taskLog, link, "Message retrieval failed", err)
	}
	if msg == nil {
		taskLog.Warn("Message not found (deleted or never existed), skipping")
		return Result{Link: link, Status: models.OutcomeSkipped}
	}

	// A message without media is terminal success: there is nothing to
	// fetch, and re-checking it on every run would be pointless
	if msg.Media == nil {
		taskLog.Info("Message carries no media")
		return p.finish(ctx, taskLog, link, models.OutcomeEmpty, 0)
	}

	destDir := filepath.Join(p.cfg.SaveRoot, fmt.Sprintf("tg_%d_%d", ref.ChannelID, ref.MessageID))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		mkErr := fmt.Errorf("%w: creating post directory '%s': %w", utils.ErrFilesystem, destDir, err)
		taskLog.Error(mkErr)
		return Result{Link: link, Status: models.OutcomeFailed, Category: utils.CategorizeError(mkErr)}
	}

	taskLog.Debugf("Downloading %s media", msg.Media.MediaKind())
	savedPath, err := p.client.DownloadMedia(ctx, msg, destDir)
	if err != nil {
		taskLog.WithField("error_category", utils.CategorizeError(err)).Warnf("Media download failed: %v", err)
		return Result{Link: link, Status: models.OutcomeFailed, Category: utils.CategorizeError(err)}
	}
	taskLog.Infof("Saved media: %s", savedPath)

	return p.finish(ctx, taskLog, link, models.OutcomeFetched, 1)
}

// resolveFailure classifies an error from the platform collaborator.
// Cancellation aborts the link as failed; everything else is an access
// problem and becomes a logged skip.
func (p *PostFetcher) resolveFailure(ctx context.Context, taskLog *logrus.Entry, link models.ClassifiedLink, msg string, err error) Result {
	if ctx.Err() != nil {
		taskLog.Warnf("%s (run aborted): %v", msg, err)
		return Result{Link: link, Status: models.OutcomeFailed, Category: utils.CategorizeError(err)}
	}
	taskLog.WithField("error_category", utils.CategorizeError(err)).Warnf("%s, skipping post: %v", msg, err)
	return Result{Link: link, Status: models.OutcomeSkipped, Category: utils.CategorizeError(err)}
}

// finish marks the link processed, refusing to mark when the run was
// aborted mid-flight.
func (p *PostFetcher) finish(ctx context.Context, taskLog *logrus.Entry, link models.ClassifiedLink, status models.OutcomeStatus, files int) Result {
	if err := ctx.Err(); err != nil {
		taskLog.Warnf("Run aborted before link completion, leaving unmarked: %v", err)
		return Result{Link: link, Status: models.OutcomeFailed, Category: utils.CategorizeError(err)}
	}
	if err := p.ledger.MarkProcessed(link.RawURL, link.Kind.StoreKind()); err != nil {
		taskLog.Errorf("Recording link in ledger failed: %v", err)
		return Result{Link: link, Status: models.OutcomeFailed, Category: utils.CategorizeError(err), Files: files}
	}
	return Result{Link: link, Status: status, Files: files}
}
