package reporter

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"

	"github.com/labguard/detection-service/internal/models"
)

// MarkdownWriter renders a completed detection run as a Markdown
// document suitable for handing to a course instructor.
type MarkdownWriter struct {
	output io.Writer
}

func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: output}
}

// Write renders the full report and flushes it to the underlying writer.
func (w *MarkdownWriter) Write(result *models.DetectionResult) error {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, result)
	w.writeVerdicts(md, result)
	w.writeInvalidSubmissions(md, result)
	w.writeFragments(md, result)

	return md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, result *models.DetectionResult) {
	title := "Plagiarism Detection Report"
	if result.LabName != "" {
		title = fmt.Sprintf("Plagiarism Detection Report: %s", result.LabName)
	}
	md.H1(title)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + result.RunID + "`"},
			{"Status", result.Status},
			{"Submissions", strconv.Itoa(result.SubmissionCount)},
			{"Compared Pairs", strconv.Itoa(result.PairCount)},
			{"Suspicious Pairs", strconv.Itoa(len(result.Candidates))},
			{"Invalid Submissions", strconv.Itoa(len(result.InvalidSubmissions))},
			{"Processing Time", fmt.Sprintf("%d ms", result.ProcessingTimeMs)},
			{"Completed", result.CompletedAt.Format("2006-01-02 15:04:05 MST")},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeVerdicts(md *markdown.Markdown, result *models.DetectionResult) {
	md.H2("Suspicious Pairs")
	md.PlainText("")

	if len(result.Candidates) == 0 {
		md.Tip("No pair crossed the screening thresholds.")
		md.PlainText("")
		return
	}

	plagiarized := 0
	for _, rec := range result.Candidates {
		if rec.Verdict == models.VerdictPlagiarized {
			plagiarized++
		}
	}
	if plagiarized > 0 {
		md.Warningf("%d pair(s) were judged plagiarized.", plagiarized)
		md.PlainText("")
	}

	rows := make([][]string, 0, len(result.Candidates))
	for _, rec := range result.Candidates {
		rows = append(rows, []string{
			rec.StudentA + " / " + rec.StudentB,
			formatScore(rec.Scores.Source.LCS),
			formatScore(rec.Scores.Source.Levenshtein),
			formatScore(rec.Scores.Hex.Levenshtein),
			verdictLabel(rec.Verdict),
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Pair", "Token LCS", "Source Levenshtein", "Hex Levenshtein", "Verdict"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, rec := range result.Candidates {
		if rec.Reasoning != "" {
			md.Details(rec.StudentA+" / "+rec.StudentB, rec.Reasoning)
		}
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeInvalidSubmissions(md *markdown.Markdown, result *models.DetectionResult) {
	if len(result.InvalidSubmissions) == 0 {
		return
	}

	md.H2("Invalid Submissions")
	md.PlainText("")

	rows := make([][]string, 0, len(result.InvalidSubmissions))
	for _, inv := range result.InvalidSubmissions {
		rows = append(rows, []string{inv.StudentID, truncate(inv.Reason, 120)})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Student", "Reason"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFragments(md *markdown.Markdown, result *models.DetectionResult) {
	wrote := false
	for _, rec := range result.Candidates {
		if len(rec.MatchingFragments) == 0 {
			continue
		}
		if !wrote {
			md.H2("Matching Code Fragments")
			md.PlainText("")
			wrote = true
		}

		md.PlainText(fmt.Sprintf("### %s / %s", rec.StudentA, rec.StudentB))
		md.PlainText("")
		for _, frag := range rec.MatchingFragments {
			md.CodeBlocks(markdown.SyntaxHighlightText, frag.Text)
		}
		md.PlainText("")
	}
}

func verdictLabel(v models.Verdict) string {
	switch v {
	case models.VerdictPlagiarized:
		return "🔴 plagiarized"
	case models.VerdictInvalidSubmission:
		return "🟡 invalid submission"
	case models.VerdictNotPlagiarized:
		return "🟢 not plagiarized"
	default:
		return string(v)
	}
}

func formatScore(s float64) string {
	return fmt.Sprintf("%.1f%%", s*100)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
