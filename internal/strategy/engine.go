package strategy

import "MarketScreener/internal/model"

// Check evaluates every predicate against row and returns whether all
// passed, plus the names of those that failed.
func (cs *ConditionSet) Check(row model.Row) (bool, []string) {
	var failed []string
	for _, p := range cs.Predicates {
		if !p.Test(row) {
			failed = append(failed, p.Name)
		}
	}
	return len(failed) == 0, failed
}

// Evaluate returns the indices of every row of f that satisfies all
// predicates, in ascending order.
func Evaluate(f *model.Frame, cs *ConditionSet) []int {
	var rows []int
	for i := 0; i < f.Len(); i++ {
		if ok, _ := cs.Check(f.Row(i, cs.Layout)); ok {
			rows = append(rows, i)
		}
	}
	return rows
}

// EvaluateLatest checks only the most recent row.
func EvaluateLatest(f *model.Frame, cs *ConditionSet) (row model.Row, matched bool, failed []string) {
	if f.Len() == 0 {
		return model.Row{Index: -1}, false, cs.Names()
	}
	row = f.Row(f.Len()-1, cs.Layout)
	matched, failed = cs.Check(row)
	return row, matched, failed
}
