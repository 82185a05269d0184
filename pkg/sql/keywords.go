package sql

import (
	"regexp"
	"strings"
)

var bareIdentifier = regexp.MustCompile(`^[a-z_][a-z0-9_$]*$`)

// keywords that cannot appear unquoted as a column, table or function name
// in every position: PostgreSQL's reserved, type/function-name and
// column-name keyword classes.
var keywords = map[string]struct{}{}

func init() {
	for _, list := range []string{
		// reserved
		`all analyse analyze and any array as asc asymmetric both case cast check
		collate column constraint create current_catalog current_date current_role
		current_time current_timestamp current_user default deferrable desc distinct
		do else end except false fetch for foreign from grant group having in
		initially intersect into lateral leading limit localtime localtimestamp not
		null offset on only or order placing primary references returning select
		session_user some symmetric system_user table then to trailing true union
		unique user using variadic when where window with`,
		// type or function name
		`authorization binary collation concurrently cross current_schema freeze
		full ilike inner is isnull join left like natural notnull outer overlaps
		right similar tablesample verbose`,
		// column name
		`between bigint bit boolean char character coalesce dec decimal exists
		extract float greatest grouping inout int integer interval json json_array
		json_arrayagg json_exists json_object json_objectagg json_query json_scalar
		json_serialize json_table json_value least merge_action national nchar none
		normalize nullif numeric out overlay position precision real row setof
		smallint substring time timestamp treat trim values varchar xmlattributes
		xmlconcat xmlelement xmlexists xmlforest xmlnamespaces xmlparse xmlpi
		xmlroot xmlserialize xmltable`,
	} {
		for _, word := range strings.Fields(list) {
			keywords[word] = struct{}{}
		}
	}
}

// QuoteIdent returns name in a form PostgreSQL reads back as the same
// identifier, quoting only when necessary.
func QuoteIdent(name string) string {
	if bareIdentifier.MatchString(name) {
		if _, reserved := keywords[name]; !reserved {
			return name
		}
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral returns s as a standard-conforming string constant.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
