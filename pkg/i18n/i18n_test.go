package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalizeAlertTemplates(t *testing.T) {
	t.Parallel()

	s, err := NewI18nSupport("en")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"en", "hi"}, s.Languages())

	data := map[string]any{
		"Name":       "Asha",
		"Contact":    "Ravi",
		"Time":       "21:04",
		"Location":   "MG Road",
		"MapsLink":   "https://maps.google.com/?q=12.971600,77.594600",
		"StreamLink": "",
	}
	en, err := s.Localize("en", MsgAlert, data)
	require.NoError(t, err)
	assert.Contains(t, en, "Asha needs help")
	assert.Contains(t, en, "https://maps.google.com/?q=12.971600,77.594600")
	assert.NotContains(t, en, "Watch live")

	hi, err := s.Localize("hi", MsgAlert, data)
	require.NoError(t, err)
	assert.Contains(t, hi, "आपातकाल")
}

func TestUnknownLanguageFallsBack(t *testing.T) {
	t.Parallel()

	s, err := NewI18nSupport("en")
	require.NoError(t, err)
	assert.Equal(t, "Emergency alert from Asha", s.T("fr", MsgAlertSubject, map[string]any{"Name": "Asha"}))
	assert.Equal(t, "no.such.key", s.T("en", "no.such.key", nil))
	assert.True(t, s.Supports("hi"))
	assert.False(t, s.Supports("fr"))
}

func TestBadDefaultLanguage(t *testing.T) {
	t.Parallel()

	_, err := NewI18nSupport("???")
	assert.Error(t, err)
}
