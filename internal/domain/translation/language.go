// Package translation holds the toy translation domain that supplies payloads
// for padding: supported languages, a word dictionary and script detection.
package translation

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	domainErrors "github.com/jbctechsolutions/tokenpad/internal/domain/errors"
)

// Language is a supported language.
type Language struct {
	Code       string `json:"code"`
	NativeName string `json:"native_name"`
}

// EnglishName returns the language's name in English.
func (l Language) EnglishName() string {
	tag, err := language.Parse(l.Code)
	if err != nil {
		return l.Code
	}
	return display.English.Languages().Name(tag)
}

var supported = []Language{
	{Code: "en", NativeName: "English"},
	{Code: "zh", NativeName: "中文"},
	{Code: "ja", NativeName: "日本語"},
	{Code: "fr", NativeName: "Français"},
	{Code: "de", NativeName: "Deutsch"},
	{Code: "es", NativeName: "Español"},
	{Code: "ru", NativeName: "Русский"},
}

// Supported returns the supported languages in display order.
func Supported() []Language {
	out := make([]Language, len(supported))
	copy(out, supported)
	return out
}

// Lookup resolves a language code. Region and script subtags are ignored,
// so "zh-CN" resolves to zh.
func Lookup(code string) (Language, error) {
	code = strings.TrimSpace(code)
	for _, l := range supported {
		if l.Code == code {
			return l, nil
		}
	}

	if tag, err := language.Parse(code); err == nil {
		base, _ := tag.Base()
		for _, l := range supported {
			if l.Code == base.String() {
				return l, nil
			}
		}
	}

	return Language{}, fmt.Errorf("%w: %q", domainErrors.ErrUnsupportedLanguage, code)
}

// IsSupported reports whether code resolves to a supported language.
func IsSupported(code string) bool {
	_, err := Lookup(code)
	return err == nil
}

// NameOf returns the native name of code, or "未知" when unsupported.
func NameOf(code string) string {
	l, err := Lookup(code)
	if err != nil {
		return "未知"
	}
	return l.NativeName
}
