package research

import (
	"fmt"
	"time"
)

const safetySystemPrompt = `You are a content safety classifier for a web research assistant.
Decide whether the user's request may be researched and answered.

Refuse requests that seek:
- Instructions for weapons capable of mass casualties or for serious violence
- Help committing crimes, evading law enforcement, or defrauding people
- Sexual content involving minors
- Targeted harassment, doxxing, or tracking of private individuals
- Malware, intrusion into systems the user does not own, or other cyber attacks

Allow everything else, including sensitive topics asked about for education, news, history, or safety.
When in doubt about an ordinary question, allow it.

Answer with classification "allow" or "refuse". When refusing, give a short reason.`

const plannerSystemPrompt = `You are a strategic research planner. Before writing any search query, lay out a research plan.

Analyze the question first:
- Break it into its core components and key concepts
- Note any implicit assumptions or context it depends on
- Identify the foundational knowledge that may be needed

Then write a plan describing the order in which information must be found and how the pieces depend on each other.

Finally, turn the plan into exactly 3 sequential search queries. Each query must be:
- Specific and focused rather than broad
- Written in natural language without Boolean operators (no AND/OR)
- Ordered from foundational to specific information

Give the feedback from the previous evaluation step the highest priority. It describes what is still missing.`

const decisionSystemPrompt = `You are a research evaluator. Compare the search results gathered so far with the user's question and decide whether to answer now or to keep searching.

Work through these steps:
1. List every piece of information the question asks for
2. Note which of those pieces the search results actually contain
3. Identify the gaps between the two
4. For missing attributes of known entities, describe targeted follow-up searches
5. For missing background knowledge, describe focused follow-up searches

Your feedback must say precisely which information is still missing and which entities or concepts need more research.`

const condenseSystemPrompt = `You are a research extraction specialist. Given a research topic and the raw content of a web page, write a detailed synthesis of the content as a connected narrative.

Extract the information relevant to the topic: facts, figures, dates, methods, claims, and the context around them. Keep the source's terminology.

Guidelines:
- Keep data anchored to its original context ("a 2024 study of 150 patients", not "a recent study")
- Write connected paragraphs, not bullet lists
- Start a new paragraph only when moving to a new theme

If the content does not cover part of the topic, say so. Never invent information and never rely on outside knowledge.`

const answerSystemPrompt = `You are a helpful assistant that answers questions from web research.

TODAY'S DATE: %s

Answer the user's question using the research context provided.%s

Guidelines:
- Base the answer on the research context and be accurate and detailed
- Cite sources inline as [title](url)
- Give specific dates when discussing events
- When sources disagree, say so and present each view
- Stay focused on the question that was asked
- For follow-up questions, use the conversation history to resolve what the user refers to
- Use the user's location to localize the answer when it is relevant`

const bestEffortNote = " NOTE: This is the final attempt. The research may be incomplete, so give the best answer the available evidence supports and say what could not be confirmed."

const refusalSystemPrompt = "You are a helpful assistant that must decline certain requests for safety reasons."

func safetyPrompt(query string) Prompt {
	return Prompt{
		System: safetySystemPrompt,
		User:   fmt.Sprintf("User request: %q", query),
	}
}

func plannerPrompt(s State) Prompt {
	return Prompt{
		System: plannerSystemPrompt,
		User: fmt.Sprintf(`User Question: %q

User Location:
%s

Conversation History:
%s

Current Research Context:
%s

Previous Evaluation Feedback:
%s

Write a research plan and exactly 3 search queries that close the gaps named in the feedback.
For follow-up questions, use the conversation history to work out what is being asked.
Localize the queries when the user's location is relevant.`,
			s.Query(), s.LocationContext(), s.MessageHistory(), orDefault(s.SearchHistory(), "No search performed yet."), s.FeedbackContext()),
	}
}

func decisionPrompt(s State) Prompt {
	return Prompt{
		System: decisionSystemPrompt,
		User: fmt.Sprintf(`User Question: %q

User Location:
%s

Conversation History:
%s

Research Context:
%s

Choose your next action:
1. "continue" if more information is needed for a complete answer.
2. "answer" only if the results with their page summaries are enough for a complete and accurate answer.

Follow-up questions such as "that didn't work" refer to the conversation history.
Consider the user's location for location-specific questions.
Always write detailed feedback about what is missing. It guides the next search queries.`,
			s.Query(), s.LocationContext(), s.MessageHistory(), orDefault(s.SearchHistory(), "No search performed yet.")),
	}
}

func condensePrompt(in CondenseInput) Prompt {
	return Prompt{
		System: condenseSystemPrompt,
		User: fmt.Sprintf(`Research Topic: %q

Conversation Context:
%s

Source Information:
- Title: %s
- URL: %s
- Date: %s
- Snippet: %s

Raw Web Content:
%s

Write a comprehensive synthesis of this content focused on the research topic %q.`,
			in.Query, renderMessages(in.History), in.Hit.Title, in.Hit.URL, in.Hit.Date, in.Hit.Snippet, in.Content, in.Query),
	}
}

func answerPrompt(s State, mode AnswerMode, today time.Time) Prompt {
	note := ""
	if mode == ModeBestEffort {
		note = bestEffortNote
	}
	return Prompt{
		System: fmt.Sprintf(answerSystemPrompt, today.Format("January 2, 2006"), note),
		User: fmt.Sprintf(`User Question: %q

%s

Conversation History:
%s

Research Context:

%s

Answer the user's question from this research and the conversation history.`,
			s.Query(), s.LocationContext(), s.MessageHistory(), orDefault(s.SearchHistory(), "No search research available.")),
	}
}

func refusalPrompt(query, reason string) Prompt {
	return Prompt{
		System: refusalSystemPrompt,
		User: fmt.Sprintf(`The user's request violates the safety guidelines. Decline it politely.

User's request: %q

Safety reason: %s

Write a brief, polite refusal.`, query, orDefault(reason, "This request violates the safety guidelines.")),
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
