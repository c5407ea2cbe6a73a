// Package style turns raw text into a fixed four-dimensional style vector and
// a set of categorical style keywords.
//
// Everything here is a pure function of its input: the same text always
// produces the same Vector and the same KeywordSet, so callers may recompute
// freely or cache the result wherever they like. Nothing in this package
// stores or logs anything.
//
// # Vector
//
//	[ttr, avg_sentence_len, pronoun_ratio, readability]
//
// ttr and pronoun_ratio lie in [0,1]. readability is the Flesch Reading Ease
// score and is unbounded; very dense text can push it below zero. Text with no
// words yields the zero vector.
//
// # Keywords
//
// Generate evaluates eight independent axes (vocabulary richness, sentence
// length, pronoun usage, readability, lexical density, adjective frequency,
// emotive tone, passive voice). Within an axis the first matching band wins;
// axes never suppress each other. Some bands intentionally produce nothing,
// e.g. a type-token ratio in [0.4, 0.6).
package style
