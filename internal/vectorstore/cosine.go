package vectorstore

import "math"

// CosineSimilarity computes dot(a,b) / (|a| * |b|).
//
// The second return value is false when the similarity is undefined: the
// vectors differ in length or either has zero magnitude. Callers must
// exclude such records from ranking rather than propagate NaN.
func CosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
