package extractor

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// languageSampleLen bounds how much text the detector sees; language
// identification does not improve much past a few hundred runes.
const languageSampleLen = 400

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

func languageDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		languages := []lingua.Language{
			lingua.English,
			lingua.Spanish,
			lingua.French,
			lingua.German,
			lingua.Portuguese,
			lingua.Italian,
			lingua.Dutch,
			lingua.Russian,
			lingua.Japanese,
			lingua.Chinese,
			lingua.Korean,
		}
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			Build()
	})
	return detector
}

// DetectLanguage returns the ISO 639-1 code of the snippet's language,
// or "" when detection is not confident enough.
func DetectLanguage(s string) string {
	sample := Truncate(strings.TrimSpace(s), languageSampleLen)
	if sample == "" {
		return ""
	}
	lang, ok := languageDetector().DetectLanguageOf(sample)
	if !ok {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}
