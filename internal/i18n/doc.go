// Package i18n loads localized message catalogs ("text domains").
//
// A text domain is a set of TOML files named <domain>.<locale>.toml, each
// holding a list of messages:
//
//	[[message]]
//	id = "Verified"
//	translation = "Verificado"
//
// The Registry keeps every loaded domain and hands out a Translator for the
// best matching locale. Message IDs are the English source strings, so a
// missing catalog or missing entry falls back to the ID itself.
package i18n
