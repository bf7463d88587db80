package stats

import (
	"gonum.org/v1/gonum/stat"

	"gridsim/internal/model"
)

// RunSummary condenses the final tick of a run.
type RunSummary struct {
	Ticks          int     `json:"ticks"`
	Agents         int     `json:"agents"`
	Survivors      int     `json:"survivors"`
	MeanCost       float64 `json:"mean_cost"`
	MaxCost        float64 `json:"max_cost"`
	MeanSteps      float64 `json:"mean_steps"`
	BombsSurvived  int     `json:"bombs_survived"`
	Treasures      int     `json:"treasures"`
	LearnerDone    bool    `json:"learner_done"`
	LearnerSteps   int     `json:"learner_steps"`
	LearnerEpisode int     `json:"learner_episode"`
}

func Summarize(history []model.TickSummary) RunSummary {
	if len(history) == 0 {
		return RunSummary{}
	}
	last := history[len(history)-1]
	summary := RunSummary{
		Ticks:  last.Tick,
		Agents: len(last.Agents),
	}

	costs := make([]float64, 0, len(last.Agents))
	steps := make([]float64, 0, len(last.Agents))
	for i, a := range last.Agents {
		if a.Alive {
			summary.Survivors++
		}
		summary.BombsSurvived += a.BombsSurvived
		summary.Treasures += a.Treasures
		if i == 0 || a.Cost > summary.MaxCost {
			summary.MaxCost = a.Cost
		}
		costs = append(costs, a.Cost)
		steps = append(steps, float64(a.Steps))
	}
	if len(costs) > 0 {
		summary.MeanCost = stat.Mean(costs, nil)
		summary.MeanSteps = stat.Mean(steps, nil)
	}

	if l := last.Learner; l != nil {
		summary.LearnerDone = l.Done
		summary.LearnerSteps = l.Steps
		summary.LearnerEpisode = l.Episode
	}
	return summary
}
