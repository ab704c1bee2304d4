package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lazypower/nudge/internal/llm"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Category is one bucket of brain dump items.
type Category struct {
	Label string
	Items []string
}

// Categories keeps buckets in the order they were first populated and
// encodes as a JSON object in that order.
type Categories []Category

// Get returns the items under label, or nil.
func (c Categories) Get(label string) []string {
	for _, cat := range c {
		if cat.Label == label {
			return cat.Items
		}
	}
	return nil
}

func (c Categories) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cat := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		label, err := json.Marshal(cat.Label)
		if err != nil {
			return nil, err
		}
		items := cat.Items
		if items == nil {
			items = []string{}
		}
		list, err := json.Marshal(items)
		if err != nil {
			return nil, err
		}
		buf.Write(label)
		buf.WriteByte(':')
		buf.Write(list)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Categories) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("categories: invalid json")
	}
	*c = categoriesFrom(gjson.ParseBytes(data))
	return nil
}

// categoriesFrom reads an object of string arrays in document order.
// Non-array values, non-string items and blank items are ignored.
func categoriesFrom(obj gjson.Result) Categories {
	out := Categories{}
	if !obj.IsObject() {
		return out
	}
	obj.ForEach(func(key, value gjson.Result) bool {
		if !value.IsArray() {
			return true
		}
		var items []string
		for _, it := range value.Array() {
			if it.Type != gjson.String {
				continue
			}
			if s := strings.TrimSpace(it.Str); s != "" {
				items = append(items, s)
			}
		}
		if len(items) > 0 {
			out = append(out, Category{Label: key.String(), Items: items})
		}
		return true
	})
	return out
}

// BrainDumpResult is an organized brain dump.
type BrainDumpResult struct {
	Categories          Categories `json:"categories"`
	FocusRecommendation string     `json:"focusRecommendation"`
	Summary             string     `json:"summary"`
	Source              string     `json:"source"`
	RawResponse         string     `json:"rawResponse,omitempty"`
	Error               string     `json:"error,omitempty"`
}

// OrganizeOptions tune OrganizeBrainDump.
type OrganizeOptions struct {
	ForceFallback bool
}

// OrganizeBrainDump records the raw submission, then categorizes it. The
// submission is appended to history before categorization, whatever the
// outcome. Completion failures degrade to the heuristic result.
func (e *Engine) OrganizeBrainDump(ctx context.Context, items []string, opts OrganizeOptions) BrainDumpResult {
	if items == nil {
		items = []string{}
	}
	e.appendBrainDump(items)

	fallback := e.categorize(items)
	if opts.ForceFallback || !e.isOnline() {
		return fallback
	}

	var kept []string
	for _, it := range items {
		if s := strings.TrimSpace(it); s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return fallback
	}

	text, err := e.llm.Complete(ctx, llm.Request{Messages: llm.BrainDumpPrompt(kept)})
	if err != nil {
		e.log.Warn("brain dump completion failed, using heuristic", zap.Error(err))
		fallback.Error = err.Error()
		return fallback
	}

	res, ok := parseBrainDump(text, len(kept))
	if !ok {
		e.log.Warn("brain dump response unparseable, using heuristic")
		fallback.RawResponse = text
		return fallback
	}
	return res
}

func (e *Engine) appendBrainDump(items []string) {
	rec := BrainDumpRecord{
		ID:        uuid.NewString(),
		Items:     append([]string{}, items...),
		Timestamp: e.now().Round(0).UTC(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.BrainDumpHistory = append(e.state.BrainDumpHistory, rec)
	e.persistLocked()
	e.log.Debug("brain dump recorded", zap.String("id", rec.ID), zap.Int("items", len(items)))
}

// categorize is the offline categorizer.
func (e *Engine) categorize(items []string) BrainDumpResult {
	cats := Categories{}
	index := make(map[string]int)
	n := 0
	for _, raw := range items {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}
		n++
		label := e.rules.Classify(item)
		i, ok := index[label]
		if !ok {
			i = len(cats)
			index[label] = i
			cats = append(cats, Category{Label: label})
		}
		cats[i].Items = append(cats[i].Items, item)
	}

	return BrainDumpResult{
		Categories:          cats,
		FocusRecommendation: focusFor(cats),
		Summary:             summaryFor(n, cats),
		Source:              SourceHeuristic,
	}
}

// focusFor recommends the first item of the largest bucket; ties go to the
// bucket populated first.
func focusFor(cats Categories) string {
	best := -1
	for i, cat := range cats {
		if len(cat.Items) == 0 {
			continue
		}
		if best < 0 || len(cat.Items) > len(cats[best].Items) {
			best = i
		}
	}
	if best < 0 {
		return "Nothing to organize yet. Add a few items to get a recommendation."
	}
	return fmt.Sprintf("Start with \"%s\" from %s.", cats[best].Items[0], cats[best].Label)
}

func summaryFor(n int, cats Categories) string {
	k := 0
	for _, cat := range cats {
		if len(cat.Items) > 0 {
			k++
		}
	}
	return fmt.Sprintf("Organized %d items into %d categories", n, max(1, k))
}

// parseBrainDump reads model output. Missing focus or summary are computed
// from the parsed categories; output without any usable category is
// rejected.
func parseBrainDump(text string, n int) (BrainDumpResult, bool) {
	obj, ok := extractJSONObject(text)
	if !ok || !obj.IsObject() {
		return BrainDumpResult{}, false
	}
	cats := categoriesFrom(obj.Get("categories"))
	if len(cats) == 0 {
		return BrainDumpResult{}, false
	}

	res := BrainDumpResult{
		Categories:          cats,
		FocusRecommendation: stringField(obj, "focusRecommendation"),
		Summary:             stringField(obj, "summary"),
		Source:              SourceLLM,
	}
	if res.FocusRecommendation == "" {
		res.FocusRecommendation = focusFor(cats)
	}
	if res.Summary == "" {
		res.Summary = summaryFor(n, cats)
	}
	return res, true
}
