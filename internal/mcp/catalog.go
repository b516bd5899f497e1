package mcp

// schema builds the JSON-schema-like input descriptor the catalog entries
// carry. properties maps parameter name to {type, description}.
func schema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

// toolCatalog returns one entry per tool: name, description, input schema.
// Descriptions are written for the agents that will call them.
func toolCatalog() []map[string]any {
	filterProps := func() map[string]any {
		return map[string]any{
			"source":      prop("string", "Filter by 'client' or 'server'. Compare both for networking/replication issues."),
			"verbosity":   prop("string", "Minimum severity: Fatal (most severe), Error, Warning, Display, Log, Verbose. Filters to this level and above."),
			"session_id":  prop("string", "Filter to a specific session. Get session IDs from get_sessions."),
			"instance_id": prop("string", "Filter to a specific client/server instance within a session."),
			"all_sessions": prop("boolean", "If true, query across all sessions. Default false returns only the latest session."),
		}
	}

	queryProps := filterProps()
	queryProps["category"] = prop("string", "Filter by log category. Use get_categories to discover available categories. Common: LogTemp, LogNet, LogGameMode.")
	queryProps["since"] = prop("number", "Emitter timestamp - only logs at or after this time. Use with 'until' to isolate a time window.")
	queryProps["until"] = prop("number", "Emitter timestamp - only logs at or before this time.")
	queryProps["limit"] = prop("integer", "Maximum results (default: 100). Increase for comprehensive analysis.")

	searchProps := filterProps()
	searchProps["query"] = prop("string", "Full-text query. Use quotes for exact phrases, OR/NOT for boolean logic, * for prefix matching.")
	searchProps["limit"] = prop("integer", "Maximum results (default: 100).")

	return []map[string]any{
		{
			"name": "query_logs",
			"description": "Query log entries with filters. Returns the latest session's logs by default.\n\n" +
				"Filter by 'category' to isolate subsystems, by 'source' to compare client vs server behavior, " +
				"by time range to narrow down to a reproduction window, or by 'verbosity' to focus on errors first. " +
				"Call get_stats first to understand the log distribution, then query specific categories.\n\n" +
				"RETURNS: {count, logs[]} where each log has source, category, verbosity, message, timestamp, " +
				"frame, session_id, instance_id, and optionally file/line.",
			"inputSchema": schema(queryProps),
		},
		{
			"name": "search_logs",
			"description": "Full-text search through log messages. Searches the latest session by default.\n\n" +
				"QUERY SYNTAX:\n" +
				"- Simple: 'player damage' finds logs containing both words\n" +
				"- Phrase: '\"player died\"' finds the exact phrase\n" +
				"- OR: 'error OR warning' finds either\n" +
				"- NOT: 'player NOT respawn' excludes respawn\n" +
				"- Prefix: 'play*' matches player, playing, etc.\n\n" +
				"Search for entity IDs ('Player_123'), error text ('failed OR error OR exception'), or " +
				"specific events ('\"weapon fired\"'). Combine with the 'source' filter to see whether an " +
				"issue is client-side, server-side, or both.",
			"inputSchema": schema(searchProps, "query"),
		},
		{
			"name": "get_stats",
			"description": "Get log statistics - counts by source, severity, and category. RECOMMENDED FIRST STEP.\n\n" +
				"Use to triage (how many errors/warnings exist?), identify hot spots (which categories are noisy?), " +
				"compare client vs server, and track recent activity via 'since'.\n\n" +
				"RETURNS: total, by_source, errors, warnings, by_category (top 20), session_count, instance_count, current_session.",
			"inputSchema": schema(map[string]any{
				"source": prop("string", "Filter stats to one source only."),
				"since":  prop("number", "Only count logs at or after this emitter timestamp."),
			}),
		},
		{
			"name": "get_categories",
			"description": "List all distinct log categories that have been seen. Use to discover what subsystems " +
				"are logging and to find the right category name for query_logs filtering.",
			"inputSchema": schema(map[string]any{
				"source": prop("string", "Restrict to categories seen for one source."),
			}),
		},
		{
			"name": "clear_logs",
			"description": "Delete log entries from the database. DESTRUCTIVE - use with caution.\n\n" +
				"Clear old logs before reproducing a bug for a clean capture, or free space after analysis. " +
				"Deleted logs cannot be recovered. Use 'before' to only clear old logs and 'source' to only " +
				"clear one emitter class.\n\n" +
				"RETURNS: {deleted: count, message}",
			"inputSchema": schema(map[string]any{
				"source": prop("string", "Only clear logs from this source. Leave empty to clear all."),
				"before": prop("number", "Only clear logs with emitter timestamps before this value."),
			}),
		},
		{
			"name": "tail_logs",
			"description": "Get the most recent N log entries (like Unix 'tail'). Returns the latest session by default.\n\n" +
				"Great for 'it just crashed' moments: see the last 50-100 logs leading up to an issue, then use " +
				"search_logs and query_logs to investigate further.",
			"inputSchema": schema(map[string]any{
				"count":        prop("integer", "Number of recent logs (default: 50)."),
				"source":       prop("string", "Filter to one source only."),
				"session_id":   prop("string", "Tail a specific session."),
				"instance_id":  prop("string", "Tail a specific client/server instance."),
				"all_sessions": prop("boolean", "If true, tail across all sessions (may mix different runs)."),
			}),
		},
		{
			"name": "get_sessions",
			"description": "List sessions with time range, log counts, and participating instances.\n\n" +
				"A session groups logs from the same logical run across multiple processes; each running client " +
				"or server process has its own instance_id. Use a session_id with query_logs or search_logs " +
				"to focus on one run.\n\n" +
				"RETURNS PER SESSION: session_id, first_seen, last_seen, log_count, instances[].",
			"inputSchema": schema(map[string]any{
				"source": prop("string", "Restrict to sessions that have logs from this source."),
				"limit":  prop("integer", "Max sessions to return (default: 20). Most recent first."),
			}),
		},
		{
			"name": "add_file_source",
			"description": "Start tailing a log file. New lines appended to the file become records with " +
				"source 'file-tailer'. Pre-existing content is not ingested.\n\nRETURNS: {id} for use with remove_source.",
			"inputSchema": schema(map[string]any{
				"path": prop("string", "Filesystem path of the file to tail. Must exist."),
				"name": prop("string", "Display name used as the records' category. Defaults to the filename."),
			}, "path"),
		},
		{
			"name":        "remove_source",
			"description": "Stop and remove a file source previously added with add_file_source.\n\nRETURNS: {removed: bool}.",
			"inputSchema": schema(map[string]any{
				"id": prop("string", "Source id as returned by add_file_source or list_sources."),
			}, "id"),
		},
		{
			"name":        "list_sources",
			"description": "List registered file sources with their paths and running state.",
			"inputSchema": schema(map[string]any{}),
		},
	}
}

// resourceCatalog returns the read-only resources.
func resourceCatalog() []map[string]any {
	return []map[string]any{
		{
			"uri":  "logs://recent",
			"name": "Recent Logs",
			"description": "The 100 most recent log entries from the current session. Check this first for " +
				"immediate context, then use the tools for detailed filtering.",
			"mimeType": "application/json",
		},
		{
			"uri":  "logs://stats",
			"name": "Log Statistics",
			"description": "Current log statistics - counts by source, severity, and category. Check error and " +
				"warning counts first; high numbers indicate problems.",
			"mimeType": "application/json",
		},
		{
			"uri":  "logs://errors",
			"name": "Error Logs",
			"description": "Up to 100 most recent Error and Fatal level log entries from the current session. If this " +
				"is empty, the current session has no logged errors.",
			"mimeType": "application/json",
		},
		{
			"uri":  "logs://current-session",
			"name": "Current Session Logs",
			"description": "Up to 100 logs from the most recent session, with its session_id. Use the session_id " +
				"with query_logs or search_logs for deeper analysis.",
			"mimeType": "application/json",
		},
	}
}
