package translation

import "unicode"

// DetectionConfidence is the fixed confidence reported for script detection.
const DetectionConfidence = 0.85

// Detection is the outcome of language detection.
type Detection struct {
	Code       string  `json:"code"`
	Confidence float64 `json:"confidence"`
}

// Detect guesses the language of text from its script: any CJK ideograph
// means zh, any kana means ja, anything else is en.
func Detect(text string) Detection {
	hasKana := false
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			return Detection{Code: "zh", Confidence: DetectionConfidence}
		}
		if unicode.In(r, unicode.Hiragana, unicode.Katakana) {
			hasKana = true
		}
	}
	if hasKana {
		return Detection{Code: "ja", Confidence: DetectionConfidence}
	}
	return Detection{Code: "en", Confidence: DetectionConfidence}
}
