package postgres

// BuildAuditQuery exposes the query builder to the external test package.
var BuildAuditQuery = buildAuditQuery
