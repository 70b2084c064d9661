package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"

	"github.com/fetti/rideagent/internal/config"
	"github.com/fetti/rideagent/internal/model/query"
	"github.com/fetti/rideagent/internal/relay"
	"github.com/fetti/rideagent/internal/service/agent/tools"
	"github.com/fetti/rideagent/internal/store"
)

const systemPromptTemplate = `You are an agent designed to interact with a SQL database of ride-sharing trips.
Given an input question, create a syntactically correct %s query to run,
then look at the results of the query and return the answer. Unless the user
specifies a specific number of examples they wish to obtain, always limit your
query to at most %d results.

You can order the results by a relevant column to return the most interesting
examples in the database. Never query for all the columns from a specific table,
only ask for the relevant columns given the question.

You MUST double check your query before executing it. If you get an error while
executing a query, rewrite the query and try again.

DO NOT make any DML statements (INSERT, UPDATE, DELETE, DROP etc.) to the
database.

To start you should ALWAYS look at the tables in the database to see what you
can query. Do NOT skip this step.

Then you should query the schema of the most relevant tables.

Available tables: %s
Available views (prefer these, they have clean column names): %s`

const defaultTopK = 5

// Service runs natural-language questions through a tool-calling ReAct agent
// over the trip database.
type Service struct {
	chatModel model.ChatModel
	agent     *react.Agent
	system    *schema.Message
}

// NewService builds the chat model, the SQL and helper tools, and the ReAct
// agent with the configured step budget.
func NewService(ctx context.Context, st *store.Store, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}

	sqlTools, err := tools.NewSQLTools(st)
	if err != nil {
		return nil, fmt.Errorf("build sql tools: %w", err)
	}
	helperTools, err := tools.NewHelperTools()
	if err != nil {
		return nil, fmt.Errorf("build helper tools: %w", err)
	}

	info, err := st.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("inspect database: %w", err)
	}
	log.Printf("[agent] database dialect=%s tables=%v views=%v", info.Dialect, info.Tables, info.Views)

	system := schema.SystemMessage(fmt.Sprintf(systemPromptTemplate,
		info.Dialect, defaultTopK,
		strings.Join(info.Tables, ", "), strings.Join(info.Views, ", ")))

	ragent, err := react.NewAgent(ctx, &react.AgentConfig{
		Model: chatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: append(sqlTools, helperTools...),
		},
		MaxStep: cfg.MaxSteps,
	})
	if err != nil {
		return nil, fmt.Errorf("create react agent: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		agent:     ragent,
		system:    system,
	}, nil
}

// Invoke runs the agent over the bounded conversation history and returns its
// final answer. Blocking; the caller owns timeout and cancellation. A run
// stopped by the step budget is reported as relay.ErrStepBudgetExceeded.
func (s *Service) Invoke(ctx context.Context, history []query.Message) (string, error) {
	input := make([]*schema.Message, 0, len(history)+1)
	input = append(input, s.system)
	for _, msg := range history {
		switch msg.Role {
		case query.RoleUser:
			input = append(input, schema.UserMessage(msg.Content))
		case query.RoleAssistant:
			input = append(input, schema.AssistantMessage(msg.Content, nil))
		}
	}

	response, err := s.agent.Generate(ctx, input)
	if err != nil {
		if isStepLimit(err) {
			return "", fmt.Errorf("%w: %v", relay.ErrStepBudgetExceeded, err)
		}
		return "", fmt.Errorf("run agent: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", errors.New("agent returned no content")
	}

	return response.Content, nil
}

// isStepLimit detects a run aborted by the ReAct step budget.
func isStepLimit(err error) bool {
	if errors.Is(err, compose.ErrExceedMaxSteps) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "max step")
}
