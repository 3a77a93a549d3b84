// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/Xuanwo/go-locale"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"
)

//go:embed locale/*
var locales embed.FS

// New returns a localizer for loc. An empty loc is detected from the environment, anything
// without a catalog falls back to English.
func New(loc string) (*spreak.Localizer, error) {
	tag := ParseTag(loc)

	localeFS, err := fs.Sub(locales, "locale")
	if err != nil {
		return nil, fmt.Errorf("failed to load locales: %w", err)
	}

	bundle, err := spreak.NewBundle(
		spreak.WithSourceLanguage(language.English),
		spreak.WithFallbackLanguage(language.English),
		spreak.WithDomainFs("", localeFS),
		spreak.WithLanguage(tag),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create i18n bundle: %w", err)
	}
	return spreak.NewLocalizer(bundle, tag), nil
}

// ParseTag turns a POSIX locale like "id_ID.UTF-8" or a BCP 47 tag into a language tag. The
// "C" and "POSIX" locales and unparsable values map to English.
func ParseTag(loc string) language.Tag {
	loc = strings.TrimSpace(loc)
	if idx := strings.IndexAny(loc, ".@"); idx != -1 {
		loc = loc[:idx]
	}

	switch loc {
	case "":
		tag, err := locale.Detect()
		if err != nil {
			return language.English
		}
		return tag
	case "C", "POSIX":
		return language.English
	}

	tag, err := language.Parse(strings.ReplaceAll(loc, "_", "-"))
	if err != nil {
		return language.English
	}
	return tag
}
