package chat

import (
	"errors"
	"sort"
	"strings"
)

// DefaultLanguage lets the answering service pick the reply language
const DefaultLanguage = "auto"

// ErrUnsupportedLanguage is returned by SetLanguage for unknown codes
var ErrUnsupportedLanguage = errors.New("unsupported language")

var languages = map[string]string{
	"auto": "Auto-detect",
	"en":   "English",
	"hi":   "Hindi",
	"bn":   "Bengali",
	"ta":   "Tamil",
	"te":   "Telugu",
	"mr":   "Marathi",
	"gu":   "Gujarati",
	"kn":   "Kannada",
	"ml":   "Malayalam",
	"pa":   "Punjabi",
	"ur":   "Urdu",
	"or":   "Odia",
	"as":   "Assamese",
	"es":   "Spanish",
	"fr":   "French",
	"de":   "German",
}

// NormalizeLanguage lowercases and trims a language code and reports
// whether it is supported
func NormalizeLanguage(code string) (string, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	_, ok := languages[code]
	return code, ok
}

// LanguageName returns the display name for a code, or the code itself
func LanguageName(code string) string {
	if name, ok := languages[code]; ok {
		return name
	}
	return code
}

// Languages returns every supported code, "auto" first
func Languages() []string {
	codes := make([]string, 0, len(languages))
	for code := range languages {
		if code != DefaultLanguage {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return append([]string{DefaultLanguage}, codes...)
}
