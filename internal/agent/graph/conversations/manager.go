package conversations

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
)

type MessagesManager struct {
	nluMaxTurns int
}

func NewMessagesManager(config model.ConversationConfig) *MessagesManager {
	turns := config.NLU.MaxTurns
	if turns <= 0 {
		turns = 6
	}
	return &MessagesManager{nluMaxTurns: turns}
}

// =========== Function for NLU ===========

// BuildNLUContext renders the session state, the last turns and the message
// under analysis into the single user message sent to the classifier.
func (cm *MessagesManager) BuildNLUContext(in model.ClassifyInput) string {
	var b strings.Builder

	b.WriteString(cm.buildStateContext(in))
	b.WriteString("\n")
	b.WriteString(cm.buildHistoryContext(in.History))
	b.WriteString("\n<current_message_to_analyze>\n")
	b.WriteString("UserMessage(" + in.Text + ")\n")
	b.WriteString("</current_message_to_analyze>")

	return b.String()
}

// ToSchemaMessages converts stored history into eino messages, keeping the last maxTurns.
func (cm *MessagesManager) ToSchemaMessages(history []model.Message) []*schema.Message {
	recent := trimTail(history, cm.nluMaxTurns)
	out := make([]*schema.Message, 0, len(recent))
	for _, m := range recent {
		switch m.Role {
		case model.RoleUser:
			out = append(out, schema.UserMessage(m.Text))
		case model.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Text, nil))
		}
	}
	return out
}

func (cm *MessagesManager) buildStateContext(in model.ClassifyInput) string {
	var b strings.Builder
	b.WriteString("<session_state>\n")
	fmt.Fprintf(&b, "stage: %s\n", in.Stage)
	if f := in.AwaitingField(); f != "" {
		fmt.Fprintf(&b, "awaiting_field: %s\n", f)
	}
	fmt.Fprintf(&b, "pending_modification: %t\n", in.HasPending)
	if snapshot, err := json.Marshal(applicationSnapshot(in.Application)); err == nil {
		b.WriteString("application: ")
		b.Write(snapshot)
		b.WriteString("\n")
	}
	b.WriteString("</session_state>")
	return b.String()
}

func (cm *MessagesManager) buildHistoryContext(history []model.Message) string {
	var b strings.Builder
	b.WriteString("<conversation_context>\n")
	for _, msg := range cm.ToSchemaMessages(history) {
		if msg.Content == "" || msg.Content == model.ContinuationToken {
			continue
		}
		switch msg.Role {
		case schema.User:
			b.WriteString("UserMessage(" + msg.Content + ")\n")
		case schema.Assistant:
			b.WriteString("AssistantMessage(" + msg.Content + ")\n")
		}
	}
	b.WriteString("</conversation_context>")
	return b.String()
}

// applicationSnapshot keeps only what helps classification; decisions and documents stay out.
func applicationSnapshot(app model.LoanApplication) map[string]any {
	out := map[string]any{
		"tenure_months": app.TenureMonths,
		"interest_rate": app.InterestRate,
		"decision":      app.Decision,
	}
	if app.LoanAmount != nil {
		out["loan_amount"] = *app.LoanAmount
	}
	if app.MonthlySalary != nil {
		out["monthly_salary"] = *app.MonthlySalary
	}
	if app.EmploymentStatus != nil {
		out["employment_status"] = *app.EmploymentStatus
	}
	if app.City != nil {
		out["city"] = *app.City
	}
	return out
}

// ====================== Helper function ======================
func trimTail(messages []model.Message, maxTurns int) []model.Message {
	if len(messages) <= maxTurns {
		return messages
	}
	return messages[len(messages)-maxTurns:]
}
