package ai

import (
	"fmt"
	"strings"

	"supportwatch/internal/utils"
)

const classifySystemPrompt = `You review customer-service chat messages.
Decide whether the message is a question or request that expects an answer from support staff.
Greetings, thanks, acknowledgements and small talk are not questions.

Respond with ONLY a JSON object:
{
  "is_question": true|false,
  "confidence": 0-100,
  "summary": "one sentence summary of what the customer needs (empty if not a question)",
  "sentiment": "positive|neutral|negative|at_risk",
  "suggested_tags": ["short topic tags, lowercase"],
  "suggested_reply": "optional draft reply for staff, or null"
}

Use "at_risk" when the customer threatens to cancel, leave or escalate.`

const evaluateSystemPrompt = `You judge whether a support staff reply addresses a customer question.

Respond with ONLY a JSON object:
{
  "relevance_score": 0-100,
  "is_counter_question": true|false,
  "explanation": "short reason"
}

relevance_score is how well the reply answers the question.
is_counter_question is true when the reply mainly asks the customer for more information.`

const dedupeSystemPrompt = `You maintain a vocabulary of issue tags.
Given a new candidate tag and the existing tags, decide whether the candidate means the same thing as one existing tag.

Respond with ONLY a JSON object:
{
  "similar_tag": "the existing tag exactly as listed, or null",
  "should_merge": true|false
}

Only merge when the meaning is the same, not merely related.`

const sentimentSystemPrompt = `You assess the overall sentiment of a customer across their recent messages, oldest first.

Respond with ONLY a JSON object:
{
  "sentiment": "positive|neutral|negative|at_risk",
  "reason": "short reason"
}

Use "at_risk" when the customer shows signs of churning or escalating.`

const synthesizeSystemPrompt = `You are a customer support assistant. Answer the customer's question using ONLY the numbered knowledge base entries provided.
If the entries do not contain the answer, say you cannot answer. Never invent policies, prices or procedures.

Respond with ONLY a JSON object:
{
  "can_answer": true|false,
  "answer": "the reply to send to the customer",
  "confidence": 0-100,
  "used_entry_indices": [indices of the entries you used]
}`

func classifyPrompt(text string) Prompt {
	return Prompt{
		System: classifySystemPrompt,
		User:   fmt.Sprintf("Message:\n%s", text),
		JSON:   true,
	}
}

func evaluatePrompt(question, reply string) Prompt {
	return Prompt{
		System: evaluateSystemPrompt,
		User:   fmt.Sprintf("Customer question:\n%s\n\nStaff reply:\n%s", question, reply),
		JSON:   true,
	}
}

func dedupePrompt(candidate string, vocabulary []string) Prompt {
	return Prompt{
		System: dedupeSystemPrompt,
		User:   fmt.Sprintf("Candidate tag: %s\n\nExisting tags:\n- %s", candidate, strings.Join(vocabulary, "\n- ")),
		JSON:   true,
	}
}

func sentimentPrompt(messages []string) Prompt {
	var b strings.Builder
	for i, msg := range messages {
		fmt.Fprintf(&b, "%d. %s\n", i+1, msg)
	}
	return Prompt{
		System: sentimentSystemPrompt,
		User:   "Customer messages:\n" + b.String(),
		JSON:   true,
	}
}

func synthesizePrompt(query string, entries []KnowledgeSnippet) Prompt {
	var b strings.Builder
	for i, entry := range entries {
		fmt.Fprintf(&b, "[%d]", i)
		if entry.Category != nil && *entry.Category != "" {
			fmt.Fprintf(&b, " (%s)", *entry.Category)
		}
		fmt.Fprintf(&b, "\nQ: %s\nA: %s\n\n", entry.Question, entry.Answer)
	}
	b.WriteString("Customer question:\n" + query + "\n\n")
	b.WriteString(utils.GetLanguageInstruction(utils.DetectLanguage(query)))

	return Prompt{
		System: synthesizeSystemPrompt,
		User:   "Knowledge base entries:\n\n" + b.String(),
		JSON:   true,
	}
}
