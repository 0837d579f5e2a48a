package host

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/whchoi98/netaiops/internal/domain"
)

const promptTemplate = `Role: You are the Lead NetOps Orchestrator, an expert triage and coordination agent for network operations and troubleshooting. Your primary function is to understand user requests and route them to the appropriate specialist agent.

Core Directives:

Request Routing:
- Read each specialist's description and route the request to the agent whose capabilities match it.
- Format requests with the specific parameters each specialist needs; specialists can handle incomplete details.
- Do not ask for permission before contacting specialist agents.
- Use the send_message tool with the exact agent name as listed below.

Results Processing:
- Capture and present complete results from specialist agents. Do not summarize away detailed diagnostics, file names, metrics, or paths the specialist returned.
- Analyze the findings and deliver actionable network troubleshooting insights.
- Offer additional analysis or recommendations as follow-up.

Communication Style:
- Be direct and technical when discussing network operations.
- Use bullet points for clarity and provide specific metrics when available.
- Do not use emojis in any responses; plain text only.

Today's Date (YYYY-MM-DD): %s

<Available Agents>
%s
</Available Agents>`

// CapabilitySummary renders the registered agents as one JSON line per
// agent, name and description only. Returns a fixed placeholder when no
// agents are registered so the model knows delegation is unavailable.
func CapabilitySummary(agents []*domain.AgentDescriptor) string {
	if len(agents) == 0 {
		return "No agents found"
	}
	lines := make([]string, 0, len(agents))
	for _, desc := range agents {
		line, err := json.Marshal(map[string]string{
			"name":        desc.Card.Name,
			"description": desc.Card.Description,
		})
		if err != nil {
			continue
		}
		lines = append(lines, string(line))
	}
	return strings.Join(lines, "\n")
}

// SystemPrompt assembles the orchestrator prompt for the current registry
// contents. Rebuilt per request so rediscovered agents appear without a
// restart.
func SystemPrompt(agents []*domain.AgentDescriptor, now time.Time) string {
	return fmt.Sprintf(promptTemplate, now.Format("2006-01-02"), CapabilitySummary(agents))
}
