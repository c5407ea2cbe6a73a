package style

import "github.com/fyrsmithlabs/stylerank/internal/textstat"

// Profile is the style data attached to a query or document.
type Profile struct {
	Vector   Vector     `json:"style_vec" cbor:"1,keyasint"`
	Keywords KeywordSet `json:"style_keywords" cbor:"2,keyasint"`
}

// Analyze computes the full profile of text.
func Analyze(text string) Profile {
	st := textstat.Analyze(text)
	vec := ExtractStats(st)
	return Profile{Vector: vec, Keywords: Generate(st.Words, st.Sentences, vec)}
}

// Complete fills in whatever part of a profile is missing. A known vector is
// kept and used as the basis for keyword generation; known keywords are kept
// as they are. The second result reports whether anything was computed, so a
// caller knows the profile needs persisting.
func Complete(text string, vec *Vector, keywords KeywordSet) (Profile, bool) {
	if vec != nil && len(keywords) > 0 {
		return Profile{Vector: *vec, Keywords: keywords}, false
	}

	st := textstat.Analyze(text)
	p := Profile{Keywords: keywords}
	if vec != nil {
		p.Vector = *vec
	} else {
		p.Vector = ExtractStats(st)
	}
	if len(p.Keywords) == 0 {
		p.Keywords = Generate(st.Words, st.Sentences, p.Vector)
	}
	return p, true
}
