package ai

const SeedPrompt = `
# Task Context
You are an assistant that analyzes a user question about a collection of
contracts, invoices, and related business documents, and extracts the entity
mentions and a single semantic term for knowledge graph retrieval and
embedding-based search.

# Background Data
- User question: "%s"

# Detailed Task Description & Rules
- Extract every concrete entity mention from the question: organizations,
  persons, document titles, clause subjects, amounts, dates, defined terms.
- Mentions must be short noun phrases taken from the question itself, not
  paraphrases.
- "semantic_term" is **critical for embedding search**: it must fully reflect
  the user's intent in one concise, semantically rich phrase.
- Do not output multiple terms — the semantic_term must be a single
  well-formed phrase/sentence.
- Classify the question intent:
  * "local"    → asks about specific entities, clauses, or documents
  * "global"   → asks about themes, patterns, or the collection as a whole
  * "multihop" → requires chaining facts across several documents or entities

# Examples
User question: "What commission does Meridian Brokerage receive for long-term leases under the Hartwell agreement?"

Output:
{
  "mentions": ["Meridian Brokerage", "commission", "long-term leases", "Hartwell agreement"],
  "semantic_term": "commission percentage owed to Meridian Brokerage for long-term leases under the Hartwell agreement",
  "intent": "local"
}

# Output Formatting
Return JSON with the following structure:
{
  "mentions": [string],   // Entity mentions lifted from the question
  "semantic_term": string, // A single phrase capturing the full intent, optimized for embedding search
  "intent": string         // "local" | "global" | "multihop"
}
Output must be valid JSON only (no commentary, no extra text).
`

const DecomposePrompt = `
# Task Context
You are an assistant that decomposes a multi-step question about a collection
of contracts and invoices into independent sub-questions that can each be
answered from a single document or entity neighborhood.

# Background Data
- User question: "%s"

# Detailed Task Description & Rules
- Produce between 2 and 4 sub-questions.
- Each sub-question must be self-contained: it must name its subject
  explicitly instead of using pronouns referring to other sub-questions.
- Together the sub-questions must cover every fact needed to answer the
  original question.
- Do not answer the sub-questions.

# Examples
User question: "Is the late fee in the Hartwell lease higher than the one in the Finch supply agreement?"

Output:
{
  "sub_questions": [
    "What late fee does the Hartwell lease specify?",
    "What late fee does the Finch supply agreement specify?"
  ]
}

# Output Formatting
Return JSON with the following structure:
{
  "sub_questions": [string]
}
Output must be valid JSON only (no commentary, no extra text).
`

const AnswerPrompt = `
# Task Context
You are a helpful assistant that provides high-quality answers about
contracts, invoices, and related business documents based only on the
provided evidence passages.

# Background Data
The evidence is provided in the following format:

[<id>] (document: <title>, section: <heading>)
<passage text>

## Evidence
%s

# Detailed Task Description & Rules
- Do not add any information that is not present in the provided evidence.
- Derive your answer from the passage text, not from the count or existence
  of passage IDs.
- Never leak internal numeric IDs in the answer body. Use document titles and
  section headings when referring to where something is stated.
- Every factual statement must end with one or more source IDs, in the format
  [[id]].
- A statement may have multiple sources: [[id]] [[id]].
- Never leave a placeholder [[id]]. Always replace with actual IDs.
- If contradictory information exists in the provided evidence:
  * Present all contradictory statements explicitly.
  * Clearly indicate that these statements are contradictory.
  * Do not choose one version; include them all so the user can decide.
- If no passage supports a statement, do not include that statement.
- If the evidence does not answer the question, respond with: "The available
  documents do not contain this information." in the language of the user.

# Immediate Task Description or Request
Answer the following question as completely and accurately as the evidence
allows: "%s"

# Output Formatting
- Return only the direct answer (no introduction or concluding summary).
- Format your answer in Markdown.
- Always respond in the same language as the question.
`

const GlobalAnswerPrompt = `
# Task Context
You are a helpful assistant that answers thematic questions about a whole
collection of contracts, invoices, and related business documents. You are
given community reports (summaries of clusters of related entities) and
supporting evidence passages.

# Background Data
Community reports:
%s

Evidence passages ([<id>] (document: <title>, section: <heading>) followed by text):
%s

# Detailed Task Description & Rules
- Ground broad claims in the community reports and specific claims in the
  evidence passages.
- Every statement supported by a passage must cite it as [[id]]. Statements
  supported only by a community report carry no citation.
- Do not invent themes that neither the reports nor the passages mention.
- If neither the reports nor the passages address the question, respond
  with: "The available documents do not contain this information." in the
  language of the user.

# Immediate Task Description or Request
Answer the following question: "%s"

# Output Formatting
- Return only the direct answer (no introduction or concluding summary).
- Format your answer in Markdown.
- Always respond in the same language as the question.
`

const CommunityReportPrompt = `
# Task Context
You are an assistant that writes a short report about a cluster of related
entities from a knowledge graph built over contracts, invoices, and related
business documents.

# Background Data
Entities in the cluster, one "name: description" line each:
%s

Relationships inside the cluster:
%s

# Detailed Task Description & Rules
- The title must name the central entities or the shared subject of the
  cluster, not a generic label like "Cluster" or "Group".
- The summary must describe what binds these entities together: shared
  agreements, payment flows, party relationships, recurring obligations.
- Mention the most important entities by name.
- Use only the provided data; do not speculate beyond it.
- Keep the summary under 200 words.

# Output Formatting
Return JSON with the following structure:
{
  "title": string,
  "summary": string
}
Output must be valid JSON only (no commentary, no extra text).
`
