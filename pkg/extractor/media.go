package extractor

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"igparser/pkg/instagram"
)

// maxMediaDepth bounds the search for a media node inside hydration payloads
const maxMediaDepth = 12

// mediaKeys mark a JSON object as a post record
var mediaKeys = []string{
	"taken_at_timestamp", "taken_at",
	"video_view_count", "view_count",
	"edge_media_preview_like", "like_count",
	"edge_media_to_comment", "comment_count",
}

// PostMetrics are the counters recovered from one post page
type PostMetrics struct {
	Views     int64
	Likes     int64
	Comments  int64
	Timestamp int64
	Strategy  string
}

// PublishedAt is Timestamp as a UTC time
func (m PostMetrics) PublishedAt() time.Time {
	return time.Unix(m.Timestamp, 0).UTC()
}

// PostStrategy recovers the raw post record from a post page
type PostStrategy struct {
	Name    string
	Extract func(doc *Document) (map[string]interface{}, bool)
}

// DefaultPostStrategies returns, in order: the legacy global data
// container, the embedded application/json blobs, and the DOM text fallback.
func DefaultPostStrategies() []PostStrategy {
	return []PostStrategy{
		{Name: "global_data", Extract: globalDataStrategy},
		{Name: "structured_script", Extract: structuredScriptStrategy},
		{Name: "dom_text", Extract: domTextStrategy},
	}
}

// ExtractPostMetrics applies strategies in order. A missing timestamp is
// replaced by now.
func ExtractPostMetrics(doc *Document, strategies []PostStrategy, now time.Time) (PostMetrics, bool) {
	for _, s := range strategies {
		node, ok := s.Extract(doc)
		if !ok {
			continue
		}
		m := metricsFromNode(node, now)
		m.Strategy = s.Name
		return m, true
	}
	return PostMetrics{}, false
}

func metricsFromNode(node map[string]interface{}, now time.Time) PostMetrics {
	return PostMetrics{
		Views:     firstPositive(toInt64(node["video_view_count"]), toInt64(node["view_count"])),
		Likes:     firstPositive(nestedCount(node, "edge_media_preview_like"), toInt64(node["like_count"])),
		Comments:  firstPositive(nestedCount(node, "edge_media_to_comment"), toInt64(node["comment_count"])),
		Timestamp: firstPositive(toInt64(node["taken_at_timestamp"]), toInt64(node["taken_at"]), now.Unix()),
	}
}

// globalDataStrategy reads window.__additionalDataLoaded: the value of the
// first key containing "media".
func globalDataStrategy(doc *Document) (map[string]interface{}, bool) {
	if len(doc.GlobalData) == 0 {
		return nil, false
	}
	keys, values, err := orderedObject(doc.GlobalData)
	if err != nil {
		return nil, false
	}
	for _, k := range keys {
		if !strings.Contains(k, "media") {
			continue
		}
		v, err := decode(values[k])
		if err != nil {
			return nil, false
		}
		return findMediaNode(v, 0)
	}
	return nil, false
}

// structuredScriptStrategy scans script[type="application/json"] blobs for
// require[0][3][*].__bbox.result.data.
func structuredScriptStrategy(doc *Document) (map[string]interface{}, bool) {
	var found map[string]interface{}

	doc.DOM.Find(instagram.StructuredDataSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, err := decode([]byte(s.Text()))
		if err != nil {
			return true
		}
		for _, data := range bboxData(v) {
			if node, ok := findMediaNode(data, 0); ok {
				found = node
				return false
			}
		}
		return true
	})

	return found, found != nil
}

func bboxData(v interface{}) []interface{} {
	root, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	req, ok := root["require"].([]interface{})
	if !ok || len(req) == 0 {
		return nil
	}
	first, ok := req[0].([]interface{})
	if !ok || len(first) < 4 {
		return nil
	}
	modules, ok := first[3].([]interface{})
	if !ok {
		return nil
	}

	var out []interface{}
	for _, m := range modules {
		mod, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		bbox, ok := mod["__bbox"].(map[string]interface{})
		if !ok {
			continue
		}
		result, ok := bbox["result"].(map[string]interface{})
		if !ok {
			continue
		}
		if data, ok := result["data"]; ok && data != nil {
			out = append(out, data)
		}
	}
	return out
}

// domTextStrategy reads the visible counters. It always yields a record;
// counters that cannot be found are 0 and the timestamp is left to the caller.
func domTextStrategy(doc *Document) (map[string]interface{}, bool) {
	count := func(selector string) int64 {
		text := doc.DOM.Find(selector).First().Text()
		return digitCount(text)
	}

	return map[string]interface{}{
		"video_view_count":        count(`span[title*="views"], span:contains("views")`),
		"edge_media_preview_like": map[string]interface{}{"count": count(`button span[title*="likes"], button span:contains("likes")`)},
		"edge_media_to_comment":   map[string]interface{}{"count": count(`button span:contains("comments")`)},
	}, true
}

// findMediaNode returns v itself when it looks like a post record, else the
// first nested object that does, searching depth first with sorted keys.
func findMediaNode(v interface{}, depth int) (map[string]interface{}, bool) {
	if depth > maxMediaDepth {
		return nil, false
	}

	switch t := v.(type) {
	case map[string]interface{}:
		if isMediaNode(t) {
			return t, true
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if node, ok := findMediaNode(t[k], depth+1); ok {
				return node, true
			}
		}
	case []interface{}:
		for _, item := range t {
			if node, ok := findMediaNode(item, depth+1); ok {
				return node, true
			}
		}
	}
	return nil, false
}

func isMediaNode(m map[string]interface{}) bool {
	for _, k := range mediaKeys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func nestedCount(node map[string]interface{}, key string) int64 {
	inner, ok := node[key].(map[string]interface{})
	if !ok {
		return 0
	}
	return toInt64(inner["count"])
}

func firstPositive(values ...int64) int64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
	}
	return 0
}

func decode(raw []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// orderedObject splits a JSON object into its keys, in document order, and raw values
func orderedObject(raw []byte) ([]string, map[string]json.RawMessage, error) {
	var values map[string]json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, _ := tok.(string)
		keys = append(keys, key)

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, nil, err
		}
	}
	return keys, values, nil
}
