package stats

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/trapcrawl/pkg/models"
)

// WriteReport renders snap in the plain-text report format.
func WriteReport(w io.Writer, snap Snapshot, rootDomain string) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "Unique Pages Crawled: %d\n\n", snap.UniquePages)
	if snap.Longest != nil {
		fmt.Fprintf(bw, "Longest Page: %s with %d words\n\n", snap.Longest.URL, snap.Longest.RawWordCount)
	}

	fmt.Fprintln(bw, "Most Common Words:")
	for _, wc := range snap.TopWords {
		fmt.Fprintf(bw, "%s: %d\n", wc.Word, wc.Count)
	}
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "Subdomain Stats:")
	for _, sc := range snap.Subdomains {
		fmt.Fprintf(bw, "http://%s.%s, %d\n", sc.Subdomain, rootDomain, sc.Pages)
	}

	return bw.Flush()
}

// WriteReportFile writes the plain-text report to path, creating parent directories.
func WriteReportFile(path string, snap Snapshot, rootDomain string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file '%s': %w", path, err)
	}
	if err := WriteReport(f, snap, rootDomain); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report '%s': %w", path, err)
	}
	return f.Close()
}

// Summary converts snap into the machine-readable run summary.
func Summary(snap Snapshot, rejections map[string]int, patterns int) models.RunSummary {
	s := models.RunSummary{
		UniquePages: snap.UniquePages,
		TopWords:    snap.TopWords,
		Subdomains:  snap.Subdomains,
		Rejections:  rejections,
		URLPatterns: patterns,
	}
	if snap.Longest != nil {
		s.LongestPageURL = snap.Longest.URL
		s.LongestPageWords = snap.Longest.RawWordCount
	}
	return s
}

// WriteSummaryYAML writes summary as YAML to path.
func WriteSummaryYAML(path string, summary models.RunSummary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}
	data, err := yaml.Marshal(&summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary '%s': %w", path, err)
	}
	return nil
}
