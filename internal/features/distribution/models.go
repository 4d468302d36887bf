// Package distribution считает раздачу токенов периода: при финализации
// делит бюджет между раздачей и резервом, при получении считает долю участника.
package distribution

// FinalizeResult — итог финализации периода.
type FinalizeResult struct {
	Period     uint64 `json:"period"`
	Distribute uint64 `json:"distribute"`
	Reserve    uint64 `json:"reserve"`
	// ThresholdMet — набран ли порог баллов для полной раздачи.
	ThresholdMet bool `json:"threshold_met"`
}

// Split делит бюджет периода. При достижении порога раздаётся всё,
// иначе половина, а остаток уходит в резерв.
func Split(allocated, totalPoints, threshold uint64) FinalizeResult {
	res := FinalizeResult{Distribute: allocated, ThresholdMet: totalPoints >= threshold}
	if !res.ThresholdMet {
		res.Distribute = allocated / 2
	}
	res.Reserve = allocated - res.Distribute
	return res
}
