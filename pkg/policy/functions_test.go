package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDenied(t *testing.T) {
	tests := []struct {
		name   string
		denied bool
	}{
		{"ts_stat", true},
		{"ts_rewrite", true},
		{"query_to_xml", true},
		{"table_to_xmlschema", true},
		{"cursor_to_xml", true},
		{"schema_to_xml_and_xmlschema", true},
		{"database_to_xmlschema", true},
		{"pg_stat_get_activity", true},
		{"pg_stat_get_backend_activity", true},
		{"pg_stat_statements", true},
		{"pg_show_all_settings", true},
		{"pg_hba_file_rules", true},
		{"pg_options_to_table", true},
		{"pg_get_viewdef", true},
		{"to_regclass", true},
		{"pg_sleep_for", true},

		{"lower", false},
		{"to_tsvector", false},
		{"to_char", false},
		{"ts_rank", false},
		{"xmlelement", false},
		{"row_to_json", false},
		{"generate_series", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.denied, isDenied(tt.name))
		})
	}
}
