package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create workflows table
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_updated_at ON workflows(updated_at);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			-- Create workflow_nodes table
			CREATE TABLE workflow_nodes (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				sort_order INT NOT NULL,
				node_type VARCHAR(255) NOT NULL,
				label VARCHAR(255) NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				params JSONB,
				position_x DOUBLE PRECISION NOT NULL DEFAULT 0,
				position_y DOUBLE PRECISION NOT NULL DEFAULT 0,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_nodes_workflow_id ON workflow_nodes(workflow_id);
			CREATE INDEX idx_workflow_nodes_type ON workflow_nodes(node_type);

			-- Create workflow_connections table
			CREATE TABLE workflow_connections (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				sort_order INT NOT NULL,
				source_node_id VARCHAR(255) NOT NULL,
				source_handle VARCHAR(255) NOT NULL,
				target_node_id VARCHAR(255) NOT NULL,
				target_handle VARCHAR(255) NOT NULL,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_connections_workflow_id ON workflow_connections(workflow_id);
		`,
		2: `
			-- Execution records
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
				node_results JSONB NOT NULL DEFAULT '{}',
				input_files JSONB NOT NULL DEFAULT '[]',
				output_files JSONB NOT NULL DEFAULT '[]',
				error TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_completed_at ON executions(completed_at);
		`,
	}
}
