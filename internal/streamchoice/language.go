// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package streamchoice

import (
	"strings"

	"golang.org/x/text/language"
)

// IsUnknownLanguage reports whether a stream language carries no information.
func IsUnknownLanguage(lang string) bool {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "", "und", "unk", "unknown", "mis", "zxx":
		return true
	}
	return false
}

// SameLanguage compares two language tags, treating ISO 639-1 and 639-2
// forms of the same language as equal ("en" == "eng"). Unknown never matches.
func SameLanguage(a, b string) bool {
	if IsUnknownLanguage(a) || IsUnknownLanguage(b) {
		return false
	}
	na, nb := normalizeLanguage(a), normalizeLanguage(b)
	return na == nb
}

func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if alias, ok := bibliographic[lang]; ok {
		return alias
	}
	if base, err := language.ParseBase(lang); err == nil {
		return base.String()
	}
	return lang
}

// bibliographic maps ISO 639-2/B codes to their 639-1 form.
var bibliographic = map[string]string{
	"alb": "sq",
	"arm": "hy",
	"baq": "eu",
	"bur": "my",
	"chi": "zh",
	"cze": "cs",
	"dut": "nl",
	"fre": "fr",
	"geo": "ka",
	"ger": "de",
	"gre": "el",
	"ice": "is",
	"mac": "mk",
	"may": "ms",
	"per": "fa",
	"rum": "ro",
	"slo": "sk",
	"tib": "bo",
	"wel": "cy",
}
