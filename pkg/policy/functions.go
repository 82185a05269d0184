package policy

import "strings"

// deniedFunctions reach outside the query: the filesystem, the network,
// server administration, session state, sequences, server statistics, or
// SQL text passed as an argument (ts_stat, ts_rewrite).
var deniedFunctions = setOf(
	"set_config",
	"current_setting",
	"nextval",
	"setval",
	"currval",
	"lastval",
	"ts_stat",
	"ts_rewrite",
	"pg_terminate_backend",
	"pg_cancel_backend",
	"pg_reload_conf",
	"pg_rotate_logfile",
	"pg_promote",
	"pg_notify",
	"pg_listening_channels",
	"txid_current",
	"pg_current_xact_id",
	"inet_server_addr",
	"inet_server_port",
	"inet_client_addr",
	"inet_client_port",
	"pg_import_system_collations",
	"pg_log_backend_memory_contexts",
	"pg_stat_file",
	"pg_show_all_settings",
	"pg_show_all_file_settings",
	"pg_hba_file_rules",
	"pg_ident_file_mappings",
	"pg_options_to_table",
	"pg_config",
	"pg_current_logfile",
	"pg_lock_status",
	"pg_prepared_statement",
	"pg_prepared_xact",
	"pg_cursor",
	"pg_relation_size",
	"pg_total_relation_size",
	"pg_table_size",
	"pg_indexes_size",
	"pg_database_size",
	"pg_tablespace_size",
	"pg_relation_filepath",
	"pg_relation_filenode",
)

// deniedPrefixes cover function families.
var deniedPrefixes = []string{
	"pg_read_",
	"pg_ls_",
	"lo_",
	"dblink",
	"pg_sleep",
	"pg_advisory",
	"pg_try_advisory",
	"pg_file_",
	"pg_stat_",
	"pg_get_",
	"pg_control_",
	"to_reg",
	"pg_replication_",
	"pg_create_",
	"pg_drop_",
	"pg_logical_",
	"pg_switch_",
	"pg_backup_",
	"pg_start_backup",
	"pg_stop_backup",
	"pg_wal_replay_",
	"http_",
}

// deniedInfixes match anywhere in the name. The xml export family
// (query_to_xml, schema_to_xml_and_xmlschema, ...) runs its argument as
// SQL or dumps whole schemas.
var deniedInfixes = []string{
	"_to_xml",
}

func setOf(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[strings.ToLower(n)] = struct{}{}
	}
	return m
}

// isDenied reports whether name, lower-cased and without schema, is on
// the deny list.
func isDenied(name string) bool {
	if _, ok := deniedFunctions[name]; ok {
		return true
	}
	for _, prefix := range deniedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	for _, infix := range deniedInfixes {
		if strings.Contains(name, infix) {
			return true
		}
	}
	return false
}
