package pipeline

import (
	"fmt"
	"strings"
	"time"

	"digest-pipe/internal/metrics"
)

// FamilyResult はファミリーごとの結果
type FamilyResult struct {
	Name      string `json:"name"`
	Algorithm string `json:"algorithm"`
	Workers   int    `json:"workers"`
	Processed uint64 `json:"processed"`
	Completed uint64 `json:"completed"`
}

// Result はパイプライン実行結果
type Result struct {
	RunID     string        `json:"run_id"`
	Name      string        `json:"name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Elapsed   time.Duration `json:"elapsed"`

	Items       uint64            `json:"items"`
	Generated   uint64            `json:"generated"`
	Families    []FamilyResult    `json:"families"`
	Completions map[string]uint64 `json:"completions"`

	Stages  []metrics.Utilization `json:"stages"`
	Summary metrics.Summary       `json:"summary"`

	// Complete は全ファミリーが N 件を受け取った場合に true
	Complete bool `json:"complete"`
}

// TotalCompleted は全ファミリーの完了数の合計を返す
func (r *Result) TotalCompleted() uint64 {
	var total uint64
	for _, n := range r.Completions {
		total += n
	}
	return total
}

// ElapsedLine は最終の経過時間行を返す
func (r *Result) ElapsedLine() string {
	return fmt.Sprintf("elapsed: %v", r.Elapsed)
}

// Report は結果をフォーマットして返す
func (r *Result) Report() string {
	status := "COMPLETE"
	if !r.Complete {
		status = "INCOMPLETE"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `
================================================================================
                         PIPELINE REPORT: %s
================================================================================

EXECUTION SUMMARY
-----------------
  Run ID:         %s
  Start Time:     %s
  End Time:       %s
  Duration:       %v
  Status:         %s

THROUGHPUT
----------
  Items:            %d
  Generated:        %d
  Digests Merged:   %d
`,
		r.Name,
		r.RunID,
		r.StartTime.Format("2006-01-02 15:04:05"),
		r.EndTime.Format("2006-01-02 15:04:05"),
		r.Elapsed.Round(time.Millisecond),
		status,
		r.Items,
		r.Generated,
		r.TotalCompleted(),
	)

	b.WriteString("\nFAMILIES\n--------\n")
	for _, f := range r.Families {
		fmt.Fprintf(&b, "  %-10s %-8s workers=%-3d processed=%-12d completed=%d\n",
			f.Name, f.Algorithm, f.Workers, f.Processed, f.Completed)
	}

	b.WriteString("\nSTAGE UTILIZATION\n-----------------\n")
	for _, u := range r.Stages {
		fmt.Fprintf(&b, "  %-14s %%idle=%-4d %%blocked=%d\n", u.Stage+":", int(u.IdlePercent), int(u.BlockedPercent))
	}
	fmt.Fprintf(&b, "  mean %%idle=%.1f (sd %.1f)  mean %%blocked=%.1f (sd %.1f)  busiest=%s\n",
		r.Summary.MeanIdle, r.Summary.StdDevIdle, r.Summary.MeanBlocked, r.Summary.StdDevBlocked, r.Summary.Busiest)

	b.WriteString("\n================================================================================\n")
	b.WriteString(r.ElapsedLine())

	return b.String()
}
