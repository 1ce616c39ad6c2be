package risk

// GroundTruthKey is the dataset column carrying a confirmed historical label.
const GroundTruthKey = "Class"

// GroundTruthScore is reported for confirmed fraud. It equals the heuristic
// cap, which the heuristic path alone can only reach by stacking signals.
const GroundTruthScore = 0.99

const groundTruthReason = "Historical Data: Confirmed Fraud (Class 1)"

// GroundTruth returns a maximal-confidence Fraud verdict when rec carries a
// confirmed positive label. A missing or undecodable label yields false.
func GroundTruth(rec Record) (Verdict, bool) {
	positive, ok := decodeGroundTruth(rec)
	if !ok || !positive {
		return Verdict{}, false
	}
	return newVerdict(LabelFraud, GroundTruthScore, []string{groundTruthReason}, SourceGroundTruth), true
}

// decodeGroundTruth reports the label and whether it could be decoded.
// Only the integer value 1 counts as positive.
func decodeGroundTruth(rec Record) (bool, bool) {
	v, present := rec[GroundTruthKey]
	if !present || !notNull(v) {
		return false, false
	}
	i, ok := parseInt(v)
	if !ok {
		return false, false
	}
	return i == 1, true
}
