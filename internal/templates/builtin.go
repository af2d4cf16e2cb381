package templates

// builtinTemplates returns the templates shipped with triage. They cover the
// most common troubleshooting classes and are seeded on first run.
func builtinTemplates() []*Template {
	return []*Template{
		{
			ID:             "builtin-network",
			Name:           "Network connectivity",
			Classification: "network",
			Keywords:       []string{"timeout", "connection", "refused", "unreachable", "dns", "latency", "502", "503", "504"},
			ErrorPatterns:  []string{`connection (refused|reset|timed out)`, `\b50[234]\b`, `no route to host`, `dial tcp`},
			Questions: []TemplateQuestion{
				{Prompt: "What is the exact error code or message?", Required: true,
					Guidance: "Look for HTTP status codes or socket errors in logs.",
					Examples: []string{"502 Bad Gateway", "connection refused"}},
				{Prompt: "Which hosts or services are affected?", Required: true,
					Guidance: "List the source and destination of the failing traffic."},
				{Prompt: "When did the failures start?", Required: true,
					Guidance: "A timestamp or deploy marker narrows the search."},
				{Prompt: "Were there recent network or infrastructure changes?", Required: false},
				{Prompt: "Does the failure reproduce from other networks?", Required: false,
					VerificationRequired: true},
			},
			InitialHypotheses: []string{
				"A load balancer or proxy is misrouting traffic",
				"DNS resolution is returning stale or wrong records",
				"A firewall or security-group change is dropping connections",
			},
			Enabled: true,
		},
		{
			ID:             "builtin-auth",
			Name:           "Authentication and authorization",
			Classification: "auth",
			Keywords:       []string{"401", "403", "unauthorized", "forbidden", "token", "login", "credential", "permission", "expired"},
			ErrorPatterns:  []string{`\b40[13]\b`, `(?i)unauthorized`, `(?i)forbidden`, `(?i)token (expired|invalid)`},
			Questions: []TemplateQuestion{
				{Prompt: "What is the exact error code?", Required: true,
					Guidance: "401 means unauthenticated, 403 means unauthorized.",
					Examples: []string{"401 Unauthorized", "403 Forbidden"}},
				{Prompt: "Which identity or service account is failing?", Required: true},
				{Prompt: "Did any credentials, keys, or certificates rotate recently?", Required: true,
					Guidance: "Check expiry dates and rotation logs."},
				{Prompt: "Is the failure limited to one tenant or environment?", Required: false},
			},
			InitialHypotheses: []string{
				"A credential or certificate expired",
				"A permission or role binding was changed",
				"Clock skew is invalidating tokens",
			},
			Enabled: true,
		},
		{
			ID:             "builtin-database",
			Name:           "Database errors",
			Classification: "database",
			Keywords:       []string{"deadlock", "query", "sql", "connection pool", "replica", "migration", "constraint", "slow"},
			ErrorPatterns:  []string{`(?i)deadlock`, `(?i)too many connections`, `(?i)constraint (failed|violation)`, `(?i)lock wait timeout`},
			Questions: []TemplateQuestion{
				{Prompt: "What is the exact database error message?", Required: true,
					Examples: []string{"deadlock detected", "too many connections"}},
				{Prompt: "Which queries or tables are involved?", Required: true},
				{Prompt: "Did a schema migration run recently?", Required: true},
				{Prompt: "What does connection pool utilization look like?", Required: false,
					VerificationRequired: true},
			},
			InitialHypotheses: []string{
				"A migration introduced a lock-heavy query path",
				"The connection pool is exhausted under load",
				"A replica is lagging and serving stale reads",
			},
			Enabled: true,
		},
		{
			ID:             "builtin-performance",
			Name:           "Performance degradation",
			Classification: "performance",
			Keywords:       []string{"slow", "latency", "cpu", "memory", "oom", "leak", "throughput", "p99"},
			ErrorPatterns:  []string{`(?i)out of memory`, `(?i)oom[- ]?kill`, `(?i)gc pause`},
			Questions: []TemplateQuestion{
				{Prompt: "Which metric regressed and by how much?", Required: true,
					Guidance: "Name the metric, the baseline, and the current value."},
				{Prompt: "When did the regression start?", Required: true},
				{Prompt: "Did traffic volume or shape change?", Required: false},
				{Prompt: "Were there recent deploys or config changes?", Required: true},
			},
			InitialHypotheses: []string{
				"A recent deploy introduced a performance regression",
				"Resource limits are being hit under increased load",
				"A dependency slowed down and back-pressure is cascading",
			},
			Enabled: true,
		},
	}
}
