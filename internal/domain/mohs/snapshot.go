package mohs

import (
	"sort"

	"github.com/google/uuid"
)

// BuildCaseDetail assembles the case read model from separately fetched,
// independently ordered collections. Blocks are attached to their stage;
// blocks whose stage is not in stages are dropped.
func BuildCaseDetail(c *Case, stages []*Stage, blocks []*Block, closures []*Closure, maps []*Map) *CaseDetail {
	sorted := append([]*Stage(nil), stages...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StageNumber < sorted[j].StageNumber })

	byStage := make(map[uuid.UUID][]*Block, len(sorted))
	for _, b := range blocks {
		byStage[b.StageID] = append(byStage[b.StageID], b)
	}

	d := &CaseDetail{
		Case:     c,
		Stages:   make([]StageDetail, 0, len(sorted)),
		Closures: sortedClosures(closures),
		Maps:     append([]*Map{}, maps...),
	}
	for _, st := range sorted {
		bs := byStage[st.ID]
		sort.SliceStable(bs, func(i, j int) bool { return bs[i].BlockLabel < bs[j].BlockLabel })
		if bs == nil {
			bs = []*Block{}
		}
		d.Stages = append(d.Stages, StageDetail{Stage: st, Blocks: bs})
	}
	return d
}

func sortedClosures(closures []*Closure) []*Closure {
	out := append([]*Closure{}, closures...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
