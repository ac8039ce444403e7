// Package i18n resolves translation keys of the form "namespace:dotted.path"
// against YAML catalogues, one per locale.
package i18n

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Translator is read-only after construction and safe for concurrent use.
type Translator struct {
	catalogs map[string]map[string]string
	fallback string
	locales  []string
	matcher  language.Matcher
}

// New loads the embedded catalogues. fallback must be one of them.
func New(fallback string) (*Translator, error) {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	catalogs := map[string][]byte{}
	for _, e := range entries {
		data, err := localeFS.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", e.Name(), err)
		}
		catalogs[strings.TrimSuffix(e.Name(), path.Ext(e.Name()))] = data
	}
	return FromCatalogs(fallback, catalogs)
}

// FromCatalogs builds a Translator from raw YAML documents keyed by locale.
func FromCatalogs(fallback string, raw map[string][]byte) (*Translator, error) {
	if len(raw) == 0 {
		return nil, errors.New("i18n: no catalogues")
	}
	t := &Translator{catalogs: map[string]map[string]string{}, fallback: fallback}
	for locale, data := range raw {
		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("i18n: parse %s: %w", locale, err)
		}
		flat := map[string]string{}
		if len(root.Content) > 0 {
			flatten(root.Content[0], "", flat)
		}
		t.catalogs[locale] = flat
		t.locales = append(t.locales, locale)
	}
	if _, ok := t.catalogs[fallback]; !ok {
		return nil, fmt.Errorf("i18n: default locale %q has no catalogue", fallback)
	}

	// the fallback goes first so the matcher prefers it on ties
	sort.Slice(t.locales, func(i, j int) bool {
		if t.locales[i] == fallback || t.locales[j] == fallback {
			return t.locales[i] == fallback
		}
		return t.locales[i] < t.locales[j]
	})
	tags := make([]language.Tag, len(t.locales))
	for i, l := range t.locales {
		tags[i] = language.Make(l)
	}
	t.matcher = language.NewMatcher(tags)
	return t, nil
}

func flatten(n *yaml.Node, prefix string, out map[string]string) {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			flatten(n.Content[i+1], key, out)
		}
	case yaml.ScalarNode:
		out[prefix] = n.Value
	}
}

// T translates key for locale. Unknown locales and missing keys fall back to
// the default locale, then to the key itself.
func (t *Translator) T(key, locale string) string {
	lookup := strings.Replace(key, ":", ".", 1)
	if msg, ok := t.catalogs[locale][lookup]; ok {
		return msg
	}
	if msg, ok := t.catalogs[t.fallback][lookup]; ok {
		return msg
	}
	return key
}

// Has reports whether locale has its own entry for key.
func (t *Translator) Has(key, locale string) bool {
	_, ok := t.catalogs[locale][strings.Replace(key, ":", ".", 1)]
	return ok
}

// Locales lists the loaded locales, default first.
func (t *Translator) Locales() []string {
	return append([]string(nil), t.locales...)
}

// Default returns the fallback locale.
func (t *Translator) Default() string {
	return t.fallback
}

// Match picks the best supported locale for the given preferences, each being
// a bare tag ("it") or an Accept-Language header value. Empty or unparsable
// preferences are skipped.
func (t *Translator) Match(preferences ...string) string {
	var tags []language.Tag
	for _, p := range preferences {
		if p == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	if len(tags) == 0 {
		return t.fallback
	}
	_, idx, conf := t.matcher.Match(tags...)
	if conf == language.No {
		return t.fallback
	}
	return t.locales[idx]
}
