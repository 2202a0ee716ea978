package postgres

// migrations returns the schema migrations keyed by version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS sagas (
				id UUID PRIMARY KEY,
				saga_type TEXT NOT NULL,
				state TEXT NOT NULL,
				tenant_id TEXT NOT NULL,
				token TEXT NOT NULL DEFAULT '',
				data JSONB NOT NULL DEFAULT '{}',
				version INTEGER NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_sagas_active
				ON sagas (tenant_id, saga_type)
				WHERE state IN ('pending', 'in_progress');

			CREATE TABLE IF NOT EXISTS saga_correlations (
				correlation_key TEXT PRIMARY KEY,
				saga_id UUID NOT NULL REFERENCES sagas (id)
			);

			CREATE TABLE IF NOT EXISTS exchanges (
				id UUID PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				correlation_id TEXT NOT NULL,
				state TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'active',
				error_detail TEXT NOT NULL DEFAULT '',
				attributes JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_exchanges_correlation
				ON exchanges (tenant_id, kind, correlation_id);

			CREATE TABLE IF NOT EXISTS delivery_log (
				id UUID PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				topic TEXT NOT NULL,
				payload JSONB NOT NULL DEFAULT '{}',
				url TEXT NOT NULL,
				secret TEXT NOT NULL,
				state TEXT NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				http_status INTEGER NOT NULL DEFAULT 0,
				detail TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_delivery_log_retry
				ON delivery_log (tenant_id, state);

			CREATE TABLE IF NOT EXISTS webhook_configs (
				tenant_id TEXT NOT NULL,
				url TEXT NOT NULL,
				secret TEXT NOT NULL,
				topics JSONB NOT NULL DEFAULT '[]',
				enabled BOOLEAN NOT NULL DEFAULT TRUE,
				PRIMARY KEY (tenant_id, url)
			);
		`,
	}
}
