package transcription

import (
	"slices"

	"github.com/kbukum/sonify/validation"
)

// AutoLanguage asks the backend to detect the spoken language.
const AutoLanguage = "auto"

// DefaultModel is used when no model is configured.
const DefaultModel = "medium"

// Models lists the accepted model identifiers. "whisper-1" is the hosted
// model name used by the openai backend.
var Models = []string{"tiny", "base", "small", "medium", "large", "whisper-1"}

// Languages maps display names to language codes accepted by the backends.
var Languages = map[string]string{
	"auto detected":  AutoLanguage,
	"afrikaans":      "af",
	"albanian":       "sq",
	"amharic":        "am",
	"arabic":         "ar",
	"armenian":       "hy",
	"assamese":       "as",
	"azerbaijani":    "az",
	"bashkir":        "ba",
	"basque":         "eu",
	"belarusian":     "be",
	"bengali":        "bn",
	"bosnian":        "bs",
	"breton":         "br",
	"bulgarian":      "bg",
	"cantonese":      "yue",
	"catalan":        "ca",
	"croatian":       "hr",
	"czech":          "cs",
	"danish":         "da",
	"dutch":          "nl",
	"english":        "en",
	"estonian":       "et",
	"faroese":        "fo",
	"finnish":        "fi",
	"french":         "fr",
	"galician":       "gl",
	"georgian":       "ka",
	"german":         "de",
	"greek":          "el",
	"gujarati":       "gu",
	"haitian creole": "ht",
	"hawaiian":       "haw",
	"hebrew":         "he",
	"hindi":          "hi",
	"hungarian":      "hu",
	"icelandic":      "is",
	"indonesian":     "id",
	"irish":          "ga",
	"italian":        "it",
	"japanese":       "ja",
	"javanese":       "jw",
	"kazakh":         "kk",
	"khmer":          "km",
	"korean":         "ko",
	"kannada":        "kn",
	"latin":          "la",
	"latvian":        "lv",
	"lithuanian":     "lt",
	"luxembourgish":  "lb",
	"macedonian":     "mk",
	"malagasy":       "mg",
	"malay":          "ms",
	"malayalam":      "ml",
	"maltese":        "mt",
	"maori":          "mi",
	"marathi":        "mr",
	"mongolian":      "mn",
	"myanmar":        "my",
	"nepali":         "ne",
	"norwegian":      "no",
	"nynorsk":        "nn",
	"occitan":        "oc",
	"pashto":         "ps",
	"persian":        "fa",
	"polish":         "pl",
	"portuguese":     "pt",
	"punjabi":        "pa",
	"romanian":       "ro",
	"russian":        "ru",
	"sanskrit":       "sa",
	"serbian":        "sr",
	"shona":          "sn",
	"sindhi":         "sd",
	"slovak":         "sk",
	"slovenian":      "sl",
	"somali":         "so",
	"spanish":        "es",
	"sundanese":      "su",
	"swahili":        "sw",
	"swedish":        "sv",
	"tamil":          "ta",
	"tatar":          "tt",
	"telugu":         "te",
	"thai":           "th",
	"tibetan":        "bo",
	"turkish":        "tr",
	"turkmen":        "tk",
	"ukrainian":      "uk",
	"urdu":           "ur",
	"uzbek":          "uz",
	"vietnamese":     "vi",
	"welsh":          "cy",
	"yiddish":        "yi",
	"yoruba":         "yo",
}

// IsKnownModel reports whether model is in Models.
func IsKnownModel(model string) bool {
	return slices.Contains(Models, model)
}

// IsKnownLanguage reports whether code is a supported language code or
// AutoLanguage.
func IsKnownLanguage(code string) bool {
	for _, c := range Languages {
		if c == code {
			return true
		}
	}
	return false
}

func init() {
	validation.RegisterRule("whisper_model", "must be one of: tiny, base, small, medium, large, whisper-1", IsKnownModel)
	validation.RegisterRule("language_code", "must be a supported language code or auto", IsKnownLanguage)
}
