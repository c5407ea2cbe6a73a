// Package scoring merges heterogeneous relevance signals into one ranking.
//
// A ranking run carries up to three raw signals per candidate: the text score
// returned by a full-text index, the cosine similarity between style vectors,
// and the Jaccard overlap between style keyword sets. Each signal is
// normalized into [0,1] across the candidate set on its own, the normalized
// signals are combined as a weighted sum, and the candidates are sorted by
// that sum with a stable sort so equal scores keep their retrieval order.
//
// Everything in this package is pure; a candidate set is owned by the single
// ranking run that produced it.
package scoring
