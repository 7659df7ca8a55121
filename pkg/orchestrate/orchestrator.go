package orchestrate

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tg-scraper/pkg/config"
	"tg-scraper/pkg/crawler"
	"tg-scraper/pkg/models"
	"tg-scraper/pkg/parse"
	"tg-scraper/pkg/platform"
	"tg-scraper/pkg/utils"
)

// Orchestrator drives one run: it turns input entries into link tasks and
// channel walks, hands them to the engine, and assembles the run report.
// Entries settle one after another; the link pool bounds fan-out within each.
type Orchestrator struct {
	cfg    *config.AppConfig
	log    *logrus.Logger
	engine *crawler.Engine
	client platform.Client

	walked map[int64]bool // Channels walked this run, keyed by resolved id
}

// NewOrchestrator creates an Orchestrator around a wired engine
func NewOrchestrator(cfg *config.AppConfig, engine *crawler.Engine, client platform.Client, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		log:    log,
		engine: engine,
		client: client,
	}
}

// Run processes every input entry in order and returns the run report.
// An entry is a recognized link, a channel reference, or the keyword "all"
// (walk every channel the account can see). The returned error is the
// context's, nil when the run completed on its own.
func (o *Orchestrator) Run(ctx context.Context, entries []string) (models.RunReport, error) {
	startTime := time.Now()
	runID := uuid.NewString()
	runLog := o.log.WithField("run_id", runID)
	o.walked = make(map[int64]bool)

	report := models.RunReport{
		RunID:     runID,
		StartedAt: startTime,
		SaveRoot:  o.cfg.SaveRoot,
		FullCrawl: o.cfg.FullCrawl,
	}

	runLog.Infof("Run starting with %d input entries", len(entries))

	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if ctx.Err() != nil {
			runLog.Warnf("Run aborted with input entries remaining: %v", ctx.Err())
			break
		}

		switch {
		case strings.EqualFold(entry, "all"):
			report.Entries = append(report.Entries, o.walkAllChannels(ctx, runLog)...)
		default:
			if link, ok := parse.ClassifyEntry(entry); ok {
				report.Entries = append(report.Entries, o.processLinkEntry(ctx, link))
			} else {
				report.Entries = append(report.Entries, o.walkEntry(ctx, runLog, entry))
			}
		}
	}

	report.FinishedAt = time.Now()
	report.Totals = tallyTotals(report.Entries)

	runLog.Info("============================================")
	runLog.Infof("Run finished in %v", report.FinishedAt.Sub(startTime))
	runLog.Infof("Entries: %d (fetched %d, empty %d, skipped %d, failed %d)",
		len(report.Entries), report.Totals.Fetched, report.Totals.Empty, report.Totals.Skipped, report.Totals.Failed)
	runLog.Infof("Link tasks settled: %d", o.engine.Processed())
	runLog.Info("============================================")

	if o.cfg.EnableRunReport {
		if err := writeRunReport(o.cfg, &report, runLog); err != nil {
			runLog.Errorf("Writing run report failed: %v", err)
		}
	}

	return report, ctx.Err()
}

// processLinkEntry fetches a single pre-classified link entry
func (o *Orchestrator) processLinkEntry(ctx context.Context, link models.ClassifiedLink) models.EntryReport {
	results := o.engine.ProcessLinks(ctx, []models.ClassifiedLink{link})

	rep := models.EntryReport{Input: link.RawURL, Kind: string(link.Kind), Status: aggregateStatus(results)}
	for _, res := range results {
		rep.Files += res.Files
		if rep.Category == "" && res.Category != "" {
			rep.Category = res.Category
		}
	}
	return rep
}

// walkEntry resolves a channel reference and walks it. Resolution failure
// skips the entry; the rest of the run is unaffected.
func (o *Orchestrator) walkEntry(ctx context.Context, runLog *logrus.Entry, input string) models.EntryReport {
	ch, err := o.client.ResolveChannel(ctx, input)
	if err != nil {
		category := utils.CategorizeError(err)
		runLog.WithFields(logrus.Fields{"input": input, "error_category": category}).Warnf("Channel resolution failed, skipping entry: %v", err)
		status := models.OutcomeSkipped
		if ctx.Err() != nil {
			status = models.OutcomeFailed
		}
		return models.EntryReport{Input: input, Kind: "channel", Status: status, Category: category}
	}
	return o.walkResolved(ctx, runLog, input, ch)
}

// walkAllChannels walks every channel the account has access to
func (o *Orchestrator) walkAllChannels(ctx context.Context, runLog *logrus.Entry) []models.EntryReport {
	chans, err := o.client.Channels(ctx)
	if err != nil {
		category := utils.CategorizeError(err)
		runLog.WithField("error_category", category).Errorf("Enumerating channels failed: %v", err)
		return []models.EntryReport{{Input: "all", Kind: "channel", Status: models.OutcomeFailed, Category: category}}
	}
	runLog.Infof("Account has access to %d channel(s)", len(chans))

	reports := make([]models.EntryReport, 0, len(chans))
	for _, ch := range chans {
		if ctx.Err() != nil {
			runLog.Warnf("Run aborted with channels remaining: %v", ctx.Err())
			break
		}
		reports = append(reports, o.walkResolved(ctx, runLog, channelInput(ch), ch))
	}
	return reports
}

// walkResolved walks one resolved channel, at most once per run
func (o *Orchestrator) walkResolved(ctx context.Context, runLog *logrus.Entry, input string, ch platform.Channel) models.EntryReport {
	if o.walked[ch.ID] {
		runLog.WithFields(logrus.Fields{"input": input, "channel_id": ch.ID}).Info("Channel already walked this run, skipping")
		return models.EntryReport{Input: input, Kind: "channel", Status: models.OutcomeSkipped}
	}
	o.walked[ch.ID] = true

	results, walkErr := o.engine.WalkChannel(ctx, ch, o.cfg.FullCrawl)

	rep := models.EntryReport{Input: input, Kind: "channel", Status: aggregateStatus(results), Links: len(results)}
	for _, res := range results {
		rep.Files += res.Files
	}
	if walkErr != nil {
		rep.Category = utils.CategorizeError(walkErr)
		if errors.Is(walkErr, utils.ErrPlatformAccess) && ctx.Err() == nil {
			rep.Status = models.OutcomeSkipped
		} else {
			rep.Status = models.OutcomeFailed
		}
	}
	return rep
}

// channelInput names a discovered channel in the report the way a user
// would have typed it
func channelInput(ch platform.Channel) string {
	if ch.Username != "" {
		return "@" + ch.Username
	}
	return strconv.FormatInt(ch.ID, 10)
}
