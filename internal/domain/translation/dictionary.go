package translation

import (
	"fmt"
	"strings"
)

type entry struct {
	from string
	to   string
}

// Dictionary is a small phrase table keyed by language pair. Entries keep
// their declaration order, which decides which partial match wins.
type Dictionary struct {
	pairs map[string][]entry
}

func pairKey(source, target string) string {
	return source + "_to_" + target
}

// NewDictionary creates an empty Dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{pairs: make(map[string][]entry)}
}

// Add registers a phrase for a language pair. Phrases are matched in lower case.
func (d *Dictionary) Add(source, target, from, to string) {
	key := pairKey(source, target)
	d.pairs[key] = append(d.pairs[key], entry{from: strings.ToLower(from), to: to})
}

// Has reports whether the dictionary covers a language pair.
func (d *Dictionary) Has(source, target string) bool {
	_, ok := d.pairs[pairKey(source, target)]
	return ok
}

// Len returns the number of phrases for a language pair.
func (d *Dictionary) Len(source, target string) int {
	return len(d.pairs[pairKey(source, target)])
}

// Translate looks text up for the pair. An exact match of the trimmed,
// lower-cased text wins; otherwise the first phrase contained in it is
// replaced in place; otherwise the text is returned tagged with the
// target code.
func (d *Dictionary) Translate(text, source, target string) string {
	entries, ok := d.pairs[pairKey(source, target)]
	if !ok {
		return Untranslated(text, target)
	}

	lower := strings.ToLower(strings.TrimSpace(text))
	for _, e := range entries {
		if e.from == lower {
			return e.to
		}
	}
	for _, e := range entries {
		if strings.Contains(lower, e.from) {
			return strings.ReplaceAll(text, e.from, e.to)
		}
	}
	return Untranslated(text, target)
}

// Untranslated marks text as passed through without translation.
func Untranslated(text, target string) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(target), text)
}

// DefaultDictionary returns the built-in en/zh and en/ja phrase tables.
func DefaultDictionary() *Dictionary {
	d := NewDictionary()

	enZh := [][2]string{
		{"hello", "你好"},
		{"world", "世界"},
		{"thank you", "谢谢"},
		{"goodbye", "再见"},
		{"good morning", "早上好"},
		{"good evening", "晚上好"},
		{"how are you", "你好吗"},
		{"i love you", "我爱你"},
		{"welcome", "欢迎"},
		{"please", "请"},
		{"sorry", "对不起"},
		{"yes", "是的"},
		{"no", "不"},
	}
	for _, p := range enZh {
		d.Add("en", "zh", p[0], p[1])
		d.Add("zh", "en", p[1], p[0])
	}

	enJa := [][2]string{
		{"hello", "こんにちは"},
		{"world", "世界"},
		{"thank you", "ありがとう"},
		{"goodbye", "さよなら"},
		{"good morning", "おはよう"},
		{"good evening", "こんばんは"},
	}
	for _, p := range enJa {
		d.Add("en", "ja", p[0], p[1])
		d.Add("ja", "en", p[1], p[0])
	}

	return d
}
