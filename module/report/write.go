package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/onflow/flow-dkg-stress/model/stress"
)

// WriteSummary writes a human readable summary of the report, followed by one
// table row per round.
func WriteSummary(w io.Writer, report *stress.RunReport) error {
	var b strings.Builder

	verdict := strings.ToUpper(string(report.Verdict))
	if report.FirstFailedRound > 0 {
		verdict = fmt.Sprintf("%s (first failing round: %d)", verdict, report.FirstFailedRound)
	}
	cfg := report.Config
	c := report.Counts

	fmt.Fprintf(&b, "DKG stress run %s: %s\n", report.RunID, verdict)
	fmt.Fprintf(&b, "  parameters: t=%d n=%d extra=%d rounds=%d proposals/round=%d fail-fast=%t retries=%d\n",
		cfg.Threshold, cfg.Participants, cfg.ExtraNodes, cfg.Rounds, cfg.Proposals, cfg.FailFast, cfg.RoundRetries)
	if !report.StartedAt.IsZero() && !report.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "  duration:   %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "  rounds:     %d total, %d passed, %d failed, %d timed out, %d skipped, %d interrupted\n",
		c.Rounds, c.Passed, c.Failed, c.TimedOut, c.Skipped, c.Interrupted)
	fmt.Fprintf(&b, "  proposals:  %d signed, %d failed, %d timed out\n",
		c.ProposalsSigned, c.ProposalsFailed, c.ProposalsTimedOut)
	fmt.Fprintf(&b, "  round latency:   %s\n", formatStats(report.RoundLatency))
	fmt.Fprintf(&b, "  keygen latency:  %s\n", formatStats(report.KeygenLatency))
	fmt.Fprintf(&b, "  signing latency: %s\n\n", formatStats(report.SigningLatency))

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("could not write summary: %w", err)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Round", "Attempts", "Keygen", "Signed", "Elapsed", "Error"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for _, r := range report.Rounds {
		table.Append(roundRow(r))
	}
	table.Render()
	return nil
}

func roundRow(r stress.RoundResult) []string {
	signed := 0
	var errs []string
	if r.KeygenError != "" {
		errs = append(errs, r.KeygenError)
	}
	for _, p := range r.Proposals {
		if p.Succeeded() {
			signed++
			continue
		}
		if p.Error != "" {
			errs = append(errs, fmt.Sprintf("proposal %d: %s", p.Index, p.Error))
		}
	}

	elapsed := "-"
	if r.Keygen != stress.KeygenSkipped {
		elapsed = r.Elapsed.Round(time.Millisecond).String()
	}
	proposals := "-"
	if r.Keygen == stress.KeygenComplete {
		proposals = fmt.Sprintf("%d/%d", signed, len(r.Proposals))
	}

	return []string{
		fmt.Sprint(r.Round),
		fmt.Sprint(r.Attempts),
		r.Keygen.String(),
		proposals,
		elapsed,
		strings.Join(errs, "; "),
	}
}

func formatStats(s stress.DurationStats) string {
	if s == (stress.DurationStats{}) {
		return "n/a"
	}
	return fmt.Sprintf("mean %s, p50 %s, p95 %s, max %s",
		s.Mean.Round(time.Millisecond), s.P50.Round(time.Millisecond),
		s.P95.Round(time.Millisecond), s.Max.Round(time.Millisecond))
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, report *stress.RunReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("could not encode report: %w", err)
	}
	return nil
}

// Save writes the JSON report to path, creating its directory if needed. The
// file is written to a temporary name first and renamed into place.
func Save(path string, report *stress.RunReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("could not create report directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not create report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteJSON(tmp, report); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not write report file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not move report into place: %w", err)
	}
	return nil
}

// Load reads a report written by Save.
func Load(path string) (*stress.RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read report: %w", err)
	}
	var report stress.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("could not decode report: %w", err)
	}
	return &report, nil
}
