// Package sqlvars handles unbound :name placeholders in generated SQL.
//
// Generated queries may carry named variables the user has to fill in
// before execution, written as a colon immediately followed by one or more
// ASCII word characters or CJK ideographs (":region", ":客户名称"). The
// variables are bound server-side by the assistant backend; this package
// only detects them, builds the entry form model, and screens the supplied
// values before they are sent off.
package sqlvars

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/hongcheng-ai/sqlchat-console/pkg/models"
)

// variableRegex matches :name placeholders. Names are ASCII word characters
// or CJK ideographs (the basic unified block, matching the backend's own
// tokenizer).
var variableRegex = regexp.MustCompile(`:([0-9A-Za-z_\x{4e00}-\x{9fa5}]+)`)

// Extract finds all :name placeholders in SQL and returns a deduplicated
// list of variable names in order of first appearance.
func Extract(sqlText string) []string {
	matches := variableRegex.FindAllStringSubmatch(sqlText, -1)
	seen := make(map[string]bool)
	var names []string

	for _, match := range matches {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	return names
}

// BuildForm builds the variable-entry form model for the given SQL. When
// the backend already declared a structured variable map (name →
// description) it takes precedence; otherwise descriptions are synthesized
// from the tokens found in the SQL text. Values start empty. Returns nil
// when the SQL carries no variables and none were declared.
func BuildForm(sqlText string, declared map[string]string) []models.SQLVariable {
	names := Extract(sqlText)

	if len(declared) > 0 {
		// Keep the SQL's appearance order for names present in the text,
		// then any declared-only names.
		covered := make(map[string]bool)
		var form []models.SQLVariable
		for _, name := range names {
			desc, ok := declared[name]
			if !ok {
				desc = synthesizeDescription(name)
			}
			covered[name] = true
			form = append(form, models.SQLVariable{Name: name, Description: desc})
		}
		var extras []string
		for name := range declared {
			if !covered[name] {
				extras = append(extras, name)
			}
		}
		sort.Strings(extras)
		for _, name := range extras {
			form = append(form, models.SQLVariable{Name: name, Description: declared[name]})
		}
		return form
	}

	var form []models.SQLVariable
	for _, name := range names {
		form = append(form, models.SQLVariable{
			Name:        name,
			Description: synthesizeDescription(name),
		})
	}
	return form
}

func synthesizeDescription(name string) string {
	return fmt.Sprintf("请输入%s的值", name)
}
