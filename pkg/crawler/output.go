package crawler

import (
	"context"
	"time"

	"github.com/Sriram-PR/trapcrawl/pkg/stats"
)

// RunInfo identifies one crawl run in the machine-readable summary.
type RunInfo struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
}

// WriteOutputs writes the text report and, when summaryPath is set, the YAML run summary.
// Both are written from the same statistics snapshot.
func (c *Crawler) WriteOutputs(reportPath, summaryPath string, run RunInfo) error {
	snap := c.stats.Snapshot()

	if err := stats.WriteReportFile(reportPath, snap, c.stats.RootDomain()); err != nil {
		return err
	}
	c.log.WithField("path", reportPath).Info("Report written")

	if summaryPath == "" {
		return nil
	}
	summary := stats.Summary(snap, c.pipeline.Rejections(), len(c.detector.PatternCounts()))
	summary.RunID = run.ID
	summary.StartedAt = run.StartedAt
	summary.FinishedAt = run.FinishedAt
	if counts, err := c.store.StatusCounts(context.Background()); err != nil {
		c.log.Warnf("Frontier status counts unavailable for summary: %v", err)
	} else {
		summary.Frontier = counts
	}
	if err := stats.WriteSummaryYAML(summaryPath, summary); err != nil {
		return err
	}
	c.log.WithField("path", summaryPath).Info("Run summary written")
	return nil
}
