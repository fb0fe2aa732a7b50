package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalogsHaveSameKeys(t *testing.T) {
	for k := range english {
		_, ok := turkish[k]
		assert.True(t, ok, "turkish lacks %q", k)
	}
	for k := range turkish {
		_, ok := english[k]
		assert.True(t, ok, "english lacks %q", k)
	}
}

func TestNewMatchesLanguage(t *testing.T) {
	cases := map[string]string{
		"tr":    "tr",
		"TR":    "tr",
		"tr-TR": "tr",
		"en":    "en",
		"en-GB": "en",
		"":      "en",
		"de":    "en",
		"!!":    "en",
	}
	for in, want := range cases {
		assert.Equal(t, want, New(in).Language(), in)
	}
	assert.Equal(t, []string{"en", "tr"}, Languages())
}

func TestTranslate(t *testing.T) {
	en := New("en")
	tr := New("tr")
	assert.Equal(t, "Active", en.T(Active))
	assert.Equal(t, "Aktif", tr.T(Active))
	assert.Equal(t, "PHP is running in the background (PID: 12345)", en.T(SuccessStart, "PHP", "12345"))
	assert.Equal(t, "mysql çalışmıyor", tr.T(NotRunning, "mysql"))
	assert.Equal(t, "no_such_key", en.T(Key("no_such_key")))
}
