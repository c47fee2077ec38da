package metrics

import (
	"gonum.org/v1/gonum/stat"
)

// Summary はステージ横断の利用率統計
type Summary struct {
	Stages        int     `json:"stages"`
	MeanIdle      float64 `json:"mean_idle_percent"`
	StdDevIdle    float64 `json:"stddev_idle_percent"`
	MeanBlocked   float64 `json:"mean_blocked_percent"`
	StdDevBlocked float64 `json:"stddev_blocked_percent"`
	Busiest       string  `json:"busiest_stage,omitempty"`
}

// Summarize は利用率スナップショットを集計する
// Busiest は idle+blocked が最も小さいステージ
func Summarize(us []Utilization) Summary {
	s := Summary{Stages: len(us)}
	if len(us) == 0 {
		return s
	}

	idle := make([]float64, len(us))
	blocked := make([]float64, len(us))
	best := -1.0
	for i, u := range us {
		idle[i] = u.IdlePercent
		blocked[i] = u.BlockedPercent
		if waiting := u.IdlePercent + u.BlockedPercent; best < 0 || waiting < best {
			best = waiting
			s.Busiest = u.Stage
		}
	}

	if len(us) == 1 {
		s.MeanIdle = idle[0]
		s.MeanBlocked = blocked[0]
		return s
	}

	s.MeanIdle, s.StdDevIdle = stat.MeanStdDev(idle, nil)
	s.MeanBlocked, s.StdDevBlocked = stat.MeanStdDev(blocked, nil)
	return s
}
