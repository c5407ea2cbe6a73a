package qdrant

import (
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/fyrsmithlabs/stylerank/internal/retrieval"
	"github.com/fyrsmithlabs/stylerank/internal/style"
)

func payloadFromSource(d retrieval.Source) (map[string]*qdrant.Value, error) {
	m := map[string]any{
		keyTrecID: d.ExternalID,
		keyTitle:  d.Title,
		keyBody:   d.Body,
	}
	if d.StyleVec != nil {
		vec := make([]any, style.Dimensions)
		for i, x := range d.StyleVec {
			vec[i] = x
		}
		m[keyStyleVec] = vec
	}
	if len(d.StyleKeywords) > 0 {
		kw := make([]any, len(d.StyleKeywords))
		for i, k := range d.StyleKeywords {
			kw[i] = k
		}
		m[keyKeywords] = kw
	}
	return qdrant.TryValueMap(m)
}

func sourceFromPayload(payload map[string]*qdrant.Value) retrieval.Source {
	src := retrieval.Source{
		ExternalID: payload[keyTrecID].GetStringValue(),
		Title:      payload[keyTitle].GetStringValue(),
		Body:       payload[keyBody].GetStringValue(),
	}

	if list := payload[keyStyleVec].GetListValue().GetValues(); len(list) == style.Dimensions {
		var v style.Vector
		for i, x := range list {
			v[i] = numberValue(x)
		}
		src.StyleVec = &v
	}

	if list := payload[keyKeywords].GetListValue().GetValues(); len(list) > 0 {
		tags := make([]string, 0, len(list))
		for _, x := range list {
			tags = append(tags, x.GetStringValue())
		}
		src.StyleKeywords = style.NewKeywordSet(tags...)
	}
	return src
}

// numberValue accepts integer payloads too; JSON uploads of whole numbers
// arrive as IntegerValue.
func numberValue(v *qdrant.Value) float64 {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_IntegerValue:
		return float64(k.IntegerValue)
	default:
		return 0
	}
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}
