// Package naming converts between table, column, entity and navigation names.
package naming

import (
	"strings"
	"unicode"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	rules = inflect.NewDefaultRuleset()
	title = cases.Title(language.English, cases.NoLower)
	// acronyms are kept upper-case in Pascal names.
	acronyms = map[string]string{
		"id":   "ID",
		"uuid": "UUID",
		"url":  "URL",
		"api":  "API",
		"sql":  "SQL",
	}
)

// Singular returns the singular form of the last word of s.
func Singular(s string) string {
	return rules.Singularize(s)
}

// Plural returns the plural form of the last word of s.
func Plural(s string) string {
	return rules.Pluralize(s)
}

// Pascal converts a snake_case (or already Pascal) name to PascalCase.
//
//	Pascal("user_groups") // UserGroups
//	Pascal("owner_id")    // OwnerID
func Pascal(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' || r == ' ' || r == '.' })
	var b strings.Builder
	for _, w := range words {
		if a, ok := acronyms[strings.ToLower(w)]; ok {
			b.WriteString(a)
			continue
		}
		b.WriteString(title.String(w))
	}
	return b.String()
}

// Camel converts a name to lowerCamelCase. A leading acronym is lowered
// as a whole.
//
//	Camel("order_lines") // orderLines
//	Camel("IDCard")      // idCard
func Camel(s string) string {
	runes := []rune(Pascal(s))
	for i := range runes {
		if !unicode.IsUpper(runes[i]) {
			break
		}
		if i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
			break
		}
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

// Snake converts a PascalCase or camelCase name to snake_case.
// Runs of upper-case letters are treated as one word.
//
//	Snake("OwnerID")  // owner_id
//	Snake("HTTPUser") // http_user
func Snake(s string) string {
	var (
		b     strings.Builder
		runes = []rune(s)
	)
	for i, r := range runes {
		if r == '-' || r == ' ' || r == '.' {
			r = '_'
		}
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '_' {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
					b.WriteByte('_')
				}
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EntityName returns the entity type name for a table name.
//
//	EntityName("user_groups") // UserGroup
func EntityName(table string) string {
	return Pascal(Singular(table))
}

// TableName returns the default table name for an entity type name.
//
//	TableName("UserGroup") // user_groups
func TableName(entity string) string {
	return Plural(Snake(entity))
}

// NavigationName returns the dependent-to-principal navigation name for a
// foreign-key column, e.g. "owner" for "owner_id". It returns the empty
// string if nothing is left after trimming the key suffix.
func NavigationName(column string) string {
	lower := strings.ToLower(column)
	for _, suffix := range []string{"_id", "_uuid", "_key", "id"} {
		if strings.HasSuffix(lower, suffix) && len(column) > len(suffix) {
			return strings.TrimRight(column[:len(column)-len(suffix)], "_")
		}
	}
	return ""
}
