package uat978

// The shift schedule: which mixes to try, in which order.  The table is
// empirical.  It was built by decoding a large body of captured
// packets, keeping the mix that corrected the most, removing those
// packets, and repeating; granularity finer than 5% stopped helping.
// The plain slice comes first because it matches most of the time.
//
// The schedule is configuration, not code: a config file can replace it
// without a recompile.

type mixPhase int

const (
	phaseNone   mixPhase = iota // plain slice, no neighbor
	phaseBefore                 // mix toward the earlier sample
	phaseAfter                  // mix toward the later sample
)

func (p mixPhase) String() string {
	switch p {
	case phaseBefore:
		return "before"
	case phaseAfter:
		return "after"
	default:
		return "none"
	}
}

// shiftStep is one schedule entry: a direction and a mix percentage.
type shiftStep struct {
	phase   mixPhase
	percent int
}

var defaultSchedule = []shiftStep{
	{phaseNone, 0},
	{phaseAfter, 75}, {phaseBefore, 75},
	{phaseAfter, 50}, {phaseBefore, 50},
	{phaseAfter, 25}, {phaseBefore, 25},
	{phaseAfter, 85},
	{phaseBefore, 40}, {phaseBefore, 65},
	{phaseAfter, 30},
	{phaseBefore, 80},
	{phaseAfter, 5}, {phaseBefore, 5},
	{phaseAfter, 90}, {phaseBefore, 90},
	{phaseAfter, 10}, {phaseBefore, 10},
	{phaseBefore, 85},
	{phaseAfter, 15}, {phaseBefore, 15},
	{phaseAfter, 80}, {phaseAfter, 65},
	{phaseAfter, 35}, {phaseBefore, 35},
	{phaseAfter, 70}, {phaseBefore, 70},
	{phaseBefore, 30},
	{phaseAfter, 40}, {phaseAfter, 60}, {phaseBefore, 60},
	{phaseAfter, 20}, {phaseBefore, 20},
	{phaseAfter, 45}, {phaseBefore, 45},
	{phaseAfter, 55}, {phaseBefore, 55},
}

// packStep renders the packed bytes for one schedule entry.
func (bb blockBits) packStep(step shiftStep) []byte {
	switch step.phase {
	case phaseBefore:
		return mixAndPack(bb.cur, bb.before, float64(step.percent)/100)
	case phaseAfter:
		return mixAndPack(bb.cur, bb.after, float64(step.percent)/100)
	default:
		return packBits(bb.cur)
	}
}

// trySchedule runs the schedule against one block.  hint is the index
// that worked for the previous block (-1 for none); it is tried first
// because neighboring blocks of one packet usually want the same slice
// point.  Returns the decoded data, the corrected symbol count, and the
// winning schedule index.
func trySchedule(code *uatCode, bb blockBits, schedule []shiftStep, hint int) (data []byte, nErrors int, idx int, ok bool) {
	if hint >= 0 && hint < len(schedule) {
		if data, nErrors, ok = code.decode(bb.packStep(schedule[hint])); ok {
			return data, nErrors, hint, true
		}
	}

	for i, step := range schedule {
		if i == hint {
			continue
		}
		if data, nErrors, ok = code.decode(bb.packStep(step)); ok {
			return data, nErrors, i, true
		}
	}

	return nil, -1, -1, false
}
