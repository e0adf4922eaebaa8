package evidence

import (
	"fmt"
	"strings"

	"github.com/technosupport/herdvision/internal/verifier"
)

// RenderExpertReport produces the plain-text report a human reviewer reads
// to judge whether to trust a job's count. Section headers and final
// interpretation wording are fixed; only their content varies with
// reliability.
func RenderExpertReport(videoID int64, m Manifest, result verifier.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "EXPERT ANALYSIS REPORT - VIDEO %d\n", videoID)
	fmt.Fprintf(&b, "Generated: %s\n", m.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString("IDENTITY COUNTS\n")
	b.WriteString(strings.Repeat("-", 60) + "\n")
	fmt.Fprintf(&b, "Likely count:      %d\n", result.LikelyCount)
	fmt.Fprintf(&b, "Reported range:    %d - %d\n\n", result.MinCount, result.MaxCount)

	b.WriteString("CONFIDENCE METRICS\n")
	b.WriteString(strings.Repeat("-", 60) + "\n")
	fmt.Fprintf(&b, "Confidence score:    %.1f%%\n", result.ConfidenceScore)
	fmt.Fprintf(&b, "Temporal stability:  %.1f%%\n", result.TemporalStability)
	fmt.Fprintf(&b, "Uncertainty level:   %s\n", result.UncertaintyLevel)
	fmt.Fprintf(&b, "Reliable:            %t\n\n", result.IsReliable)

	b.WriteString("SCENE ANALYSIS\n")
	b.WriteString(strings.Repeat("-", 60) + "\n")
	fmt.Fprintf(&b, "Key frames captured: %d\n\n", len(m.KeyFrames))

	b.WriteString("WARNINGS\n")
	b.WriteString(strings.Repeat("-", 60) + "\n")
	writeList(&b, result.Warnings, "None.")
	b.WriteString("\n")

	b.WriteString("ACCURACY LIMITATIONS\n")
	b.WriteString(strings.Repeat("-", 60) + "\n")
	writeList(&b, result.FailureReasons, "None identified.")
	b.WriteString("\n")

	b.WriteString("RECOMMENDATIONS\n")
	b.WriteString(strings.Repeat("-", 60) + "\n")
	if result.Recommendation != "" {
		for _, part := range strings.Split(result.Recommendation, " | ") {
			fmt.Fprintf(&b, "- %s\n", part)
		}
	} else {
		b.WriteString("None.\n")
	}
	b.WriteString("\n")

	b.WriteString("INTERPRETATION\n")
	b.WriteString(strings.Repeat("-", 60) + "\n")
	if result.IsReliable {
		fmt.Fprintf(&b, "This count is considered reliable. The herd size of approximately "+
			"%d animals (range %d-%d) reflects stable, low-variance detections across the "+
			"sampled frames and should be usable as-is for reporting purposes.\n",
			result.LikelyCount, result.MinCount, result.MaxCount)
	} else {
		fmt.Fprintf(&b, "This count should NOT be treated as ground truth. Confidence fell "+
			"below the reliability threshold (uncertainty: %s). Review the listed limitations "+
			"and recommendations, and consider re-capturing footage under improved conditions "+
			"before relying on the reported range of %d-%d animals.\n",
			result.UncertaintyLevel, result.MinCount, result.MaxCount)
	}

	return b.String()
}

func writeList(b *strings.Builder, items []string, emptyMsg string) {
	if len(items) == 0 {
		b.WriteString(emptyMsg + "\n")
		return
	}
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}
