package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/trapcrawl/pkg/models"
)

func TestRecordPage_Counts(t *testing.T) {
	agg := NewAggregator("ics.uci.edu")

	counts := agg.RecordPage("http://www.ics.uci.edu/about", "The crawler's page, and THE crawler")
	// raw: 6 fields; tokens: the crawler s page and the crawler -> minus stop words: crawler s page crawler
	assert.Equal(t, 6, counts.RawWordCount)
	assert.Equal(t, 4, counts.SignificantTokenCount)

	assert.Equal(t, 1, agg.UniquePageCount())
	longest, ok := agg.LongestPage()
	require.True(t, ok)
	assert.Equal(t, "http://www.ics.uci.edu/about", longest.URL)
	assert.Equal(t, 6, longest.RawWordCount)
}

func TestRecordPage_UniqueIgnoresFragmentAndRepeats(t *testing.T) {
	agg := NewAggregator("ics.uci.edu")
	agg.RecordPage("http://www.ics.uci.edu/a#top", "one")
	agg.RecordPage("http://www.ics.uci.edu/a", "one")
	agg.RecordPage("http://www.ics.uci.edu/a#bottom", "one")

	assert.Equal(t, 1, agg.UniquePageCount())
	assert.Equal(t, []models.SubdomainCount{{Subdomain: "www", Pages: 1}}, agg.SubdomainReport())
}

func TestLongestPage_EmptyAndTies(t *testing.T) {
	agg := NewAggregator("ics.uci.edu")
	_, ok := agg.LongestPage()
	assert.False(t, ok)

	agg.RecordPage("http://www.ics.uci.edu/first", "alpha beta gamma")
	agg.RecordPage("http://www.ics.uci.edu/second", "delta epsilon zeta")
	longest, ok := agg.LongestPage()
	require.True(t, ok)
	assert.Equal(t, "http://www.ics.uci.edu/first", longest.URL, "ties keep the earlier page")

	agg.RecordPage("http://www.ics.uci.edu/third", "eta theta iota kappa")
	longest, _ = agg.LongestPage()
	assert.Equal(t, "http://www.ics.uci.edu/third", longest.URL)
	assert.Equal(t, 4, longest.RawWordCount)
}

func TestTopWords_OrderAndStopWords(t *testing.T) {
	agg := NewAggregator("ics.uci.edu")
	text := strings.Repeat("crawl ", 9) + strings.Repeat("page ", 7) + strings.Repeat("link ", 7) +
		strings.Repeat("the ", 20) + strings.Repeat("robots ", 3)
	agg.RecordPage("http://www.ics.uci.edu/words", text)

	top := agg.TopWords(3)
	assert.Equal(t, []models.WordCount{
		{Word: "crawl", Count: 9},
		{Word: "page", Count: 7},
		{Word: "link", Count: 7},
	}, top)

	all := agg.TopWords(-1)
	require.Len(t, all, 4)
	for _, wc := range all {
		assert.False(t, IsStopWord(wc.Word))
	}
	assert.Empty(t, NewAggregator("ics.uci.edu").TopWords(10))
}

func TestSubdomainReport(t *testing.T) {
	agg := NewAggregator("ics.uci.edu")
	pages := []string{
		"http://vision.ics.uci.edu/a",
		"http://vision.ics.uci.edu/b",
		"https://www.ics.uci.edu/",
		"http://ics.uci.edu/root",           // root host counts under its own label
		"http://www.cs.uci.edu/elsewhere",   // outside the root domain
		"http://notics.uci.edu/lookalike",   // suffix match without label boundary
		"http://Archive.ICS.uci.edu:8080/x", // case and port
	}
	for _, p := range pages {
		agg.RecordPage(p, "content")
	}

	assert.Equal(t, []models.SubdomainCount{
		{Subdomain: "archive", Pages: 1},
		{Subdomain: "ics", Pages: 1},
		{Subdomain: "vision", Pages: 2},
		{Subdomain: "www", Pages: 1},
	}, agg.SubdomainReport())
	assert.Equal(t, len(pages), agg.UniquePageCount())
}

func TestRecordPage_RootHostCountsAsSubdomain(t *testing.T) {
	agg := NewAggregator("ics.uci.edu")
	agg.RecordPage("http://ics.uci.edu/about", "about the department")

	snap := agg.Snapshot()
	assert.Equal(t, 1, snap.UniquePages)
	assert.Equal(t, []models.SubdomainCount{{Subdomain: "ics", Pages: 1}}, snap.Subdomains)
}

func TestAggregator_ConcurrentRecords(t *testing.T) {
	agg := NewAggregator("ics.uci.edu")
	const workers, perWorker = 8, 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				agg.RecordPage(fmt.Sprintf("http://sub%d.ics.uci.edu/page%d", w, i), "shared token pair")
				_ = agg.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	snap := agg.Snapshot()
	assert.Equal(t, workers*perWorker, snap.UniquePages)
	assert.Equal(t, 3*workers*perWorker, snap.TotalSignificantTokens)
	require.Len(t, snap.TopWords, 3)
	for _, wc := range snap.TopWords {
		assert.Equal(t, workers*perWorker, wc.Count)
	}
	require.Len(t, snap.Subdomains, workers)
	for _, sc := range snap.Subdomains {
		assert.Equal(t, perWorker, sc.Pages)
	}

	sum := 0
	for _, wc := range agg.TopWords(-1) {
		sum += wc.Count
	}
	assert.Equal(t, snap.TotalSignificantTokens, sum)
}

func TestWriteReport_Format(t *testing.T) {
	agg := NewAggregator("ics.uci.edu")
	agg.RecordPage("http://www.ics.uci.edu/a", "crawl crawl page")
	agg.RecordPage("http://vision.ics.uci.edu/b", "page crawl robots here")

	var sb strings.Builder
	require.NoError(t, WriteReport(&sb, agg.Snapshot(), "ics.uci.edu"))

	expected := "Unique Pages Crawled: 2\n\n" +
		"Longest Page: http://vision.ics.uci.edu/b with 4 words\n\n" +
		"Most Common Words:\n" +
		"crawl: 3\n" +
		"page: 2\n" +
		"robots: 1\n\n" +
		"Subdomain Stats:\n" +
		"http://vision.ics.uci.edu, 1\n" +
		"http://www.ics.uci.edu, 1\n"
	assert.Equal(t, expected, sb.String())
}

func TestWriteReport_Empty(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, WriteReport(&sb, NewAggregator("ics.uci.edu").Snapshot(), "ics.uci.edu"))
	assert.Equal(t, "Unique Pages Crawled: 0\n\nMost Common Words:\n\nSubdomain Stats:\n", sb.String())
}

func TestWriteReportFileAndSummary(t *testing.T) {
	dir := t.TempDir()
	agg := NewAggregator("ics.uci.edu")
	agg.RecordPage("http://www.ics.uci.edu/a", "crawl frontier")
	snap := agg.Snapshot()

	reportPath := filepath.Join(dir, "out", "report.txt")
	require.NoError(t, WriteReportFile(reportPath, snap, "ics.uci.edu"))
	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Unique Pages Crawled: 1")

	summary := Summary(snap, map[string]int{"trap_url": 2}, 7)
	summary.RunID = "run-1"
	summaryPath := filepath.Join(dir, "summary.yaml")
	require.NoError(t, WriteSummaryYAML(summaryPath, summary))

	raw, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	var decoded models.RunSummary
	require.NoError(t, yaml.Unmarshal(raw, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, 1, decoded.UniquePages)
	assert.Equal(t, "http://www.ics.uci.edu/a", decoded.LongestPageURL)
	assert.Equal(t, 2, decoded.Rejections["trap_url"])
	assert.Equal(t, 7, decoded.URLPatterns)
	assert.Len(t, decoded.TopWords, 2)
}
