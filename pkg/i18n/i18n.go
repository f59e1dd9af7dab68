package i18n

import (
	"embed"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// Message ids shared by the notification templates.
const (
	MsgAlert          = "emergency.alert"
	MsgAlertSubject   = "emergency.alert.subject"
	MsgResolved       = "emergency.resolved"
	MsgResolvedSubj   = "emergency.resolved.subject"
	MsgGuardianTitle  = "guardian.alert.title"
	MsgGuardianBody   = "guardian.alert.body"
	MsgLocationMissed = "location.unavailable"
)

// I18nSupport renders localized message templates.
type I18nSupport struct {
	bundle      *i18n.Bundle
	defaultLang string

	mu         sync.Mutex
	localizers map[string]*i18n.Localizer
}

// NewI18nSupport loads the embedded locales plus any extra message files.
func NewI18nSupport(defaultLang string, extraFiles ...string) (*I18nSupport, error) {
	tag, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("default language %q: %w", defaultLang, err)
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := locales.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		raw, err := locales.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(raw, e.Name()); err != nil {
			return nil, fmt.Errorf("load %s: %w", e.Name(), err)
		}
	}
	for _, f := range extraFiles {
		if _, err := bundle.LoadMessageFile(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return &I18nSupport{
		bundle:      bundle,
		defaultLang: tag.String(),
		localizers:  make(map[string]*i18n.Localizer),
	}, nil
}

// Languages lists the tags with loaded messages.
func (i *I18nSupport) Languages() []string {
	tags := i.bundle.LanguageTags()
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.String())
	}
	return out
}

func (i *I18nSupport) Supports(lang string) bool {
	for _, l := range i.Languages() {
		if l == lang {
			return true
		}
	}
	return false
}

// Localize renders key for lang, falling back to the default language.
func (i *I18nSupport) Localize(lang, key string, data map[string]any) (string, error) {
	return i.localizer(lang).Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
}

// T is Localize that returns the key itself when rendering fails.
func (i *I18nSupport) T(lang, key string, data map[string]any) string {
	s, err := i.Localize(lang, key, data)
	if err != nil {
		return key
	}
	return s
}

func (i *I18nSupport) localizer(lang string) *i18n.Localizer {
	if lang == "" {
		lang = i.defaultLang
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if l, ok := i.localizers[lang]; ok {
		return l
	}
	l := i18n.NewLocalizer(i.bundle, lang, i.defaultLang)
	i.localizers[lang] = l
	return l
}
