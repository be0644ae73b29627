// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectordb

import (
	"encoding/json"

	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/nskitch/atlas/internal/filterir"
	"github.com/nskitch/atlas/internal/model"
)

func strPtr(s string) *string { return &s }

func optUint32(v int) *uint32 {
	if v <= 0 {
		return nil
	}
	u := uint32(v)
	return &u
}

func withPayloadSelector(enable bool) *qdrant.WithPayloadSelector {
	return &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: enable}}
}

func withVectorsSelector(enable bool) *qdrant.WithVectorsSelector {
	return &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: enable}}
}

func pointIDToString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return ""
}

func vectorsFromQdrant(v *qdrant.Vectors) model.NamedVectors {
	if v == nil {
		return nil
	}
	named := v.GetVectors()
	if named == nil {
		return nil
	}
	out := make(model.NamedVectors, len(named.Vectors))
	for name, vec := range named.Vectors {
		out[model.VectorName(name)] = vec.GetData()
	}
	return out
}

// payloadToQdrant marshals a ChunkPayload into a Qdrant payload map. Fields
// are stored as native Qdrant string, integer and list values under their
// own keys so set_payload merges can
// target individual fields, matching how payload filtering addresses them
// by name in §4.M.
func payloadToQdrant(p model.ChunkPayload) map[string]*qdrant.Value {
	out := map[string]*qdrant.Value{
		"original_text":      strValue(p.OriginalText),
		"file_path":          strValue(p.FilePath),
		"file_name":          strValue(p.FileName),
		"file_type":          strValue(p.FileType),
		"chunk_index":        intValue(p.ChunkIndex),
		"total_chunks":       intValue(p.TotalChunks),
		"char_count":         intValue(p.CharCount),
		"embedding_model":    strValue(p.EmbeddingModel),
		"embedding_strategy": strValue(string(p.EmbeddingStrategy)),
		"content_type":       strValue(string(p.ContentType)),
		"created_at":         strValue(p.CreatedAt.Format("2006-01-02T15:04:05Z07:00")),
		"qntm_keys":          listValue(p.QNTMKeys),
		"vectors_present":    listValue(vectorNamesToStrings(p.VectorsPresent)),
	}
	// Optional fields are omitted entirely when nil (spec.md §9: absent,
	// never present-and-null).
	if p.ConsolidationLevel != nil {
		out["consolidation_level"] = intValue(*p.ConsolidationLevel)
	}
	if p.Importance != nil {
		out["importance"] = intValue(*p.Importance)
	}
	return out
}

func vectorNamesToStrings(names []model.VectorName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}

func strValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func intValue(i int) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(i)}}
}

func listValue(items []string) *qdrant.Value {
	values := make([]*qdrant.Value, len(items))
	for i, s := range items {
		values[i] = strValue(s)
	}
	return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
}

func anyToQdrantValue(v any) *qdrant.Value {
	switch t := v.(type) {
	case string:
		return strValue(t)
	case int:
		return intValue(t)
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: t}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: t}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: t}}
	default:
		b, _ := json.Marshal(t)
		return strValue(string(b))
	}
}

func payloadFromQdrant(p map[string]*qdrant.Value) model.ChunkPayload {
	get := func(k string) string {
		if v, ok := p[k]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	getInt := func(k string) int {
		if v, ok := p[k]; ok {
			return int(v.GetIntegerValue())
		}
		return 0
	}
	getList := func(k string) []string {
		v, ok := p[k]
		if !ok || v.GetListValue() == nil {
			return nil
		}
		items := v.GetListValue().Values
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = it.GetStringValue()
		}
		return out
	}

	payload := model.ChunkPayload{
		OriginalText:      get("original_text"),
		FilePath:          get("file_path"),
		FileName:          get("file_name"),
		FileType:          get("file_type"),
		ChunkIndex:        getInt("chunk_index"),
		TotalChunks:       getInt("total_chunks"),
		CharCount:         getInt("char_count"),
		QNTMKeys:          getList("qntm_keys"),
		EmbeddingModel:    get("embedding_model"),
		EmbeddingStrategy: model.EmbeddingStrategy(get("embedding_strategy")),
		ContentType:       model.ContentType(get("content_type")),
	}
	for _, n := range getList("vectors_present") {
		payload.VectorsPresent = append(payload.VectorsPresent, model.VectorName(n))
	}
	if v, ok := p["consolidation_level"]; ok {
		lvl := int(v.GetIntegerValue())
		payload.ConsolidationLevel = &lvl
	}
	if v, ok := p["importance"]; ok {
		imp := int(v.GetIntegerValue())
		payload.Importance = &imp
	}
	return payload
}

// toQdrantFilter adapts a filterir.VectorFilter into qdrant's Filter wire
// type. A nil input (meaning "no filter" per filterir's contract) returns
// nil, never an empty-but-non-nil Filter.
func toQdrantFilter(vf *filterir.VectorFilter) *qdrant.Filter {
	if vf == nil {
		return nil
	}
	return &qdrant.Filter{
		Must:    toQdrantConditions(vf.Must),
		MustNot: toQdrantConditions(vf.MustNot),
		Should:  toQdrantConditions(vf.Should),
	}
}

func toQdrantConditions(clauses []filterir.VectorClause) []*qdrant.Condition {
	if len(clauses) == 0 {
		return nil
	}
	out := make([]*qdrant.Condition, 0, len(clauses))
	for _, c := range clauses {
		if cond := toQdrantCondition(c); cond != nil {
			out = append(out, cond)
		}
	}
	return out
}

func toQdrantCondition(c filterir.VectorClause) *qdrant.Condition {
	switch {
	case c.IsNull:
		return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_IsNull{
			IsNull: &qdrant.IsNullCondition{Key: c.Key},
		}}
	case c.IsEmptyNullOr:
		return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_IsEmpty{
			IsEmpty: &qdrant.IsEmptyCondition{Key: c.Key},
		}}
	case c.MatchValue != nil:
		return fieldCondition(c.Key, matchFor(c.MatchValue))
	case len(c.MatchAny) > 0:
		return fieldCondition(c.Key, matchAnyFor(c.MatchAny))
	case len(c.MatchExcept) > 0:
		return fieldCondition(c.Key, matchExceptFor(c.MatchExcept))
	case c.Range != nil:
		return rangeCondition(c.Key, c.Range)
	case len(c.IDIn) > 0:
		ids := make([]*qdrant.PointId, 0, len(c.IDIn))
		for _, v := range c.IDIn {
			if s, ok := v.(string); ok {
				ids = append(ids, &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: s}})
			}
		}
		return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_HasId{
			HasId: &qdrant.HasIdCondition{HasId: ids},
		}}
	}
	return nil
}

func fieldCondition(key string, match *qdrant.Match) *qdrant.Condition {
	fc := &qdrant.FieldCondition{Key: key, Match: match}
	return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{Field: fc}}
}

// rangeCondition lowers a filterir.Range onto Qdrant's numeric Range
// condition. Qdrant only supports closed comparisons (Gte/Lte) alongside
// the open ones (Gt/Lt); an inclusive bound maps to the *e variant.
func rangeCondition(key string, r *filterir.Range) *qdrant.Condition {
	rng := &qdrant.Range{}
	if r.Gt != nil {
		v := toFloat64(r.Gt.Value)
		if r.Gt.Inclusive {
			rng.Gte = &v
		} else {
			rng.Gt = &v
		}
	}
	if r.Lt != nil {
		v := toFloat64(r.Lt.Value)
		if r.Lt.Inclusive {
			rng.Lte = &v
		} else {
			rng.Lt = &v
		}
	}
	fc := &qdrant.FieldCondition{Key: key, Range: rng}
	return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{Field: fc}}
}

func toFloat64(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}

func matchFor(v any) *qdrant.Match {
	switch t := v.(type) {
	case bool:
		return &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: t}}
	case int:
		return &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(t)}}
	case int64:
		return &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: t}}
	case string:
		return &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: t}}
	default:
		return nil
	}
}

func matchAnyFor(values []any) *qdrant.Match {
	keywords := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			keywords = append(keywords, s)
		}
	}
	return &qdrant.Match{MatchValue: &qdrant.Match_Keywords{Keywords: &qdrant.RepeatedStrings{Strings: keywords}}}
}

func matchExceptFor(values []any) *qdrant.Match {
	keywords := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			keywords = append(keywords, s)
		}
	}
	return &qdrant.Match{MatchValue: &qdrant.Match_ExceptKeywords{ExceptKeywords: &qdrant.RepeatedStrings{Strings: keywords}}}
}
