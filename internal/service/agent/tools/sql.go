package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"

	"github.com/fetti/rideagent/internal/store"
)

type listTablesInput struct{}

type describeTableInput struct {
	Table string `json:"table" jsonschema:"description=Name of the table or view to describe"`
}

type executeSQLInput struct {
	Query string `json:"query" jsonschema:"description=A single read-only SELECT statement to execute"`
}

// NewSQLTools returns the database tools backed by the trip store:
// list_tables, describe_table, and execute_sql (SELECT only).
func NewSQLTools(st *store.Store) ([]tool.BaseTool, error) {
	listTables, err := utils.InferTool(
		"list_tables",
		"List all tables and views available in the trip database. Always call this first.",
		func(ctx context.Context, _ *listTablesInput) (string, error) {
			info, err := st.Info(ctx)
			if err != nil {
				return "", fmt.Errorf("list tables: %w", err)
			}
			return fmt.Sprintf("TABLES: %s\nVIEWS: %s",
				strings.Join(info.Tables, ", "), strings.Join(info.Views, ", ")), nil
		},
	)
	if err != nil {
		return nil, err
	}

	describeTable, err := utils.InferTool(
		"describe_table",
		"Show the CREATE statement (columns) for a table or view in the trip database.",
		func(ctx context.Context, in *describeTableInput) (string, error) {
			ddl, err := st.TableSchema(ctx, in.Table)
			if err != nil {
				return fmt.Sprintf("Error: %v", err), nil
			}
			return ddl, nil
		},
	)
	if err != nil {
		return nil, err
	}

	executeSQL, err := utils.InferTool(
		"execute_sql",
		"Execute a single read-only SELECT statement against the trip database and return the rows as text. DML is rejected.",
		func(ctx context.Context, in *executeSQLInput) (string, error) {
			result, err := st.Query(ctx, in.Query)
			if err != nil {
				// Surface the failure to the model so it can rewrite
				// the query instead of aborting the whole run.
				return fmt.Sprintf("Query failed: %v. Rewrite the query and try again.", err), nil
			}
			return result, nil
		},
	)
	if err != nil {
		return nil, err
	}

	return []tool.BaseTool{listTables, describeTable, executeSQL}, nil
}

// NewHelperTools returns the pure lookup tools (dates and Austin geography).
func NewHelperTools() ([]tool.BaseTool, error) {
	dateTool, err := NewDateTool()
	if err != nil {
		return nil, err
	}
	locationTool, err := NewLocationTool()
	if err != nil {
		return nil, err
	}
	coordinateTool, err := NewCoordinateTool()
	if err != nil {
		return nil, err
	}
	return []tool.BaseTool{dateTool, locationTool, coordinateTool}, nil
}
