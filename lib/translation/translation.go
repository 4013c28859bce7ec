package translation

import (
	"strings"

	"github.com/leonelquinteros/gotext"
)

func Configure(localesDir, lang string) {
	gotext.Configure(localesDir, strings.ToLower(lang), "default")
}

// GetLanguage returns the active catalog language, "en" when none is set.
func GetLanguage() string {
	lang := gotext.GetLanguage()
	if lang == "und" || lang == "" {
		return "en"
	}
	return lang
}

// Text returns the translation of msgID, or msgID itself when no catalog has
// one. msgID is never interpreted as a format string.
func Text(msgID string) string {
	for _, locale := range gotext.GetLocales() {
		if tr, ok := locale.GetTranslations()[msgID]; ok && tr.IsTranslated() {
			return tr.Get()
		}
	}
	return msgID
}
