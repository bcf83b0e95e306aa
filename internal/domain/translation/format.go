package translation

import (
	"fmt"
	"strings"
)

// ResultText renders a translation result for a tool response.
func ResultText(original, translated, source, target string) string {
	return fmt.Sprintf("翻译结果:\n原文: %s\n译文: %s\n语言: %s → %s",
		original, translated, NameOf(source), NameOf(target))
}

// LanguagesText renders the supported language list.
func LanguagesText() string {
	lines := make([]string, 0, len(supported))
	for _, l := range supported {
		lines = append(lines, fmt.Sprintf("%s: %s", l.Code, l.NativeName))
	}
	return "支持的语言列表:\n" + strings.Join(lines, "\n")
}

// DetectionText renders a detection result.
func DetectionText(text string, d Detection) string {
	return fmt.Sprintf("语言检测结果:\n文本: %s\n检测到的语言: %s (%s)\n置信度: %.2f%%",
		text, NameOf(d.Code), d.Code, d.Confidence*100)
}

// Request texts charged to the context window for each tool.
func TranslateRequestText(text, source, target string) string {
	return fmt.Sprintf("translate %s from %s to %s", text, source, target)
}

// LanguagesRequestText is the request text for the language list tool.
const LanguagesRequestText = "get_supported_languages"

// DetectRequestText is the request text for the detection tool.
func DetectRequestText(text string) string {
	return "detect_language: " + text
}
