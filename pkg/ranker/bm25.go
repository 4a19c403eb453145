package ranker

import "math"

// Okapi BM25 parameters.
const (
	k1 = 1.2
	b  = 0.75
)

// defaultAvgDocLen stands in for avgdl before any document has been
// indexed, so early queries rank instead of dividing by zero.
const defaultAvgDocLen = 100.0

// idf is the BM25 inverse document frequency. The +1 inside the log keeps
// terms that appear in more than half the corpus from scoring negative.
func idf(totalDocs, docFreq int64) float64 {
	n := float64(totalDocs)
	nt := float64(docFreq)
	return math.Log((n-nt+0.5)/(nt+0.5) + 1)
}

// termScore is the term-frequency saturation component for one document:
// tf·(k1+1) / (tf + k1·(1−b+b·|D|/avgdl)). Multiply by idf for the full
// BM25 contribution.
func termScore(tf int, docLen, avgdl float64) float64 {
	f := float64(tf)
	return f * (k1 + 1) / (f + k1*(1-b+b*docLen/avgdl))
}
