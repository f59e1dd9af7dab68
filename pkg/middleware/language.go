package middleware

import (
	"Raksha/pkg/i18n"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
)

const LangKey = "lang"

// LanguageMiddleware picks the message language from ?lang= or
// Accept-Language, falling back to fallback when unsupported.
func LanguageMiddleware(i18nSupport *i18n.I18nSupport, fallback string) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := fallback
		if q := c.Query("lang"); q != "" && i18nSupport.Supports(q) {
			lang = q
		} else if tags, _, err := language.ParseAcceptLanguage(c.GetHeader("Accept-Language")); err == nil {
			for _, tag := range tags {
				base, _ := tag.Base()
				if i18nSupport.Supports(base.String()) {
					lang = base.String()
					break
				}
			}
		}
		c.Set(LangKey, lang)
		c.Next()
	}
}

// Language returns the language chosen by LanguageMiddleware.
func Language(c *gin.Context, fallback string) string {
	if v := c.GetString(LangKey); v != "" {
		return v
	}
	return fallback
}
