package aiquery

import (
	"fmt"
	"strings"
)

// promptTemplate instructs the model to produce a recall-oriented PubMed
// query: liberal OR expansion of synonyms and spelling variants, minimal
// AND restriction, [tiab] tags for most terms, and nothing but the query
// string in the response.
const promptTemplate = `<prompt_instructions>
  <role>You are an AI assistant specialized in crafting comprehensive and inclusive PubMed search queries for biomedical research.</role>
  <task>
    Given a user's research topic, generate a PubMed ESearch query that prioritizes RECALL over PRECISION.
    The goal is to capture as many potentially relevant articles as possible, even if some less relevant ones are included.
    It's better to retrieve more articles and let the user filter them, rather than miss important research.
  </task>

  <search_philosophy>
    <principle>INCLUSIVE over EXCLUSIVE: Cast a wide net to avoid missing relevant research</principle>
    <principle>BROAD over NARROW: Use OR operators liberally to expand search scope</principle>
    <principle>FLEXIBLE over RIGID: Include variations, synonyms, and related concepts</principle>
    <principle>COMPREHENSIVE over PRECISE: Better to include extra articles than miss key ones</principle>
  </search_philosophy>

  <output_format>
    Return **ONLY** the generated PubMed search string.
    Do not include explanations, introductory text, apologies, or markdown formatting.
    The string should be directly usable as the term parameter in a PubMed ESearch API call.
  </output_format>

  <guidelines>
    <guideline>For each concept include scientific and common terms, American and British spellings, abbreviations and full forms, plural and singular forms.</guideline>
    <guideline>Group synonyms and related terms with OR within parentheses; prefer OR over AND when connecting related concepts.</guideline>
    <guideline>Use AND only to connect truly different concept groups and keep the number of AND connections small.</guideline>
    <guideline>Use [tiab] (Title/Abstract) for most terms; use [MeSH Terms] sparingly and always with OR alternatives.</guideline>
    <guideline>For vague topics, interpret them in multiple possible ways and include both specific and general terms.</guideline>
    <guideline>For effectiveness questions include efficacy, effectiveness, outcome, benefit, impact, effect, result; for safety questions include safety, adverse, side effect, toxicity, harm, risk.</guideline>
    <guideline>Avoid date restrictions and overly complex nested boolean logic.</guideline>
  </guidelines>

  <examples>
    <example>
      <topic>telomeres and aging</topic>
      <inclusive_query>(telomere OR telomeres OR "telomere length" OR "telomere shortening" OR telomerase OR "telomerase activity" OR "telomeric DNA") AND (aging OR ageing OR longevity OR "life span" OR "health span" OR senescence OR "cellular aging" OR "age-related" OR elderly OR geriatric)</inclusive_query>
    </example>
    <example>
      <topic>diabetes treatment</topic>
      <inclusive_query>(diabetes OR diabetic OR "diabetes mellitus" OR "type 2 diabetes" OR "type 1 diabetes" OR hyperglycemia OR hyperglycaemia) AND (treatment OR therapy OR management OR intervention OR care OR medication OR drug OR insulin OR metformin)</inclusive_query>
    </example>
  </examples>
</prompt_instructions>

## User's Research Topic:
<user_topic>
%s
</user_topic>

## Generated Inclusive PubMed Search Query:
`

// buildPrompt renders the query-generation prompt for the given topic.
func buildPrompt(topic string) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(topic))
}

// cleanResponse strips markdown code fences the model sometimes wraps the
// query in, returning the bare query string.
func cleanResponse(content string) string {
	cleaned := strings.TrimSpace(content)

	lower := strings.ToLower(cleaned)
	switch {
	case strings.HasPrefix(lower, "```pubmed"):
		cleaned = cleaned[len("```pubmed"):]
	case strings.HasPrefix(lower, "```"):
		cleaned = cleaned[len("```"):]
	}

	if strings.HasSuffix(strings.ToLower(cleaned), "```") {
		cleaned = cleaned[:len(cleaned)-len("```")]
	}

	return strings.TrimSpace(cleaned)
}
