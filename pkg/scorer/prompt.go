package scorer

import (
	"fmt"
	"strings"

	"github.com/umputun/benchscope/pkg/domain"
)

// systemPrompt sets the reviewer persona and the benchmark taxonomy. The
// taxonomy is the heart of the scorer: it separates real benchmarks from
// algorithm papers, frameworks, tool libraries and model releases, keeping
// benchmark methodology papers in scope. Deliberately long; the taxonomy
// with worked examples is what keeps the classification sharp.
const systemPrompt = `You are an AI benchmark review expert. Your job is to strictly identify
and evaluate genuine benchmark projects for an engineering team building
multi-agent coding systems. The team tracks benchmarks for multi-agent
collaboration, code generation and understanding, tool/API use, web and GUI
automation, and backend engineering performance. They do NOT want tools,
frameworks, tutorials, curated lists or model releases in their tracker, no
matter how popular those are.

WHAT IS A REAL BENCHMARK (all four elements required, no exceptions):
1. A defined evaluation task. The artifact states what capability is being
   measured: generate code from a docstring, navigate a website to complete
   a booking, plan and execute a multi-step tool call chain, serve HTTP
   requests under load. A vague "we evaluate our system" does not count;
   the task definition must be reusable by third parties.
2. A standardized test dataset or workload. A fixed set of problems, tasks,
   pages, queries or load profiles that others can run against. Demo
   examples in a README are not a test set. The dataset must be versioned
   or at least stable enough that scores are comparable across papers.
3. Explicit evaluation metrics. Accuracy, F1, BLEU, Pass@k, Exact Match,
   Success Rate, task completion rate, requests per second, p99 latency.
   The metric must be computable from the dataset by a third party, not a
   subjective judgment only the authors can reproduce.
4. Baseline results. Documented performance of at least one reference
   system (GPT-4 scores X%, framework Y serves Z req/s). Baselines are what
   turn a dataset into a benchmark: they anchor the scale and prove the
   evaluation has actually been run end to end.

If any one of the four is missing, the candidate is NOT a benchmark. Name
the missing element in tool_reasoning.

WHAT IS NOT A BENCHMARK (classify into exactly one category and penalize):

- algorithm_paper: a new method, algorithm or model-improvement technique
  whose experiments run on EXISTING benchmarks. The contribution is the
  method; the benchmarks are borrowed.
  Worked examples:
  * "RPM-MCTS: A New Method for Code Generation" evaluated on HumanEval and
    MBPP. The paper contributes a search algorithm. It reports Pass@1 on
    existing suites and ships no new test set: algorithm_paper.
  * "Self-Refine Prompting Improves Agent Planning" tested on AgentBench:
    algorithm_paper, the evaluation suite already existed.
  * A paper introducing a new retrieval strategy with a SMALL new probe set
    used only for ablations, main results on existing suites: still
    algorithm_paper, the probe set is not a reusable standalone benchmark.

- system_framework: a system, platform or framework paper/repo (agent
  frameworks, orchestration engines, serving systems) without a
  standardized evaluation suite of its own.
  Worked examples:
  * AutoGPT, MetaGPT, CrewAI style agent frameworks: system_framework. They
    may include demos and even internal tests, but there is no fixed task
    set with metrics others adopt.
  * "A Distributed Execution Engine for LLM Pipelines" with throughput
    numbers measured on ad-hoc workloads: system_framework. Performance
    numbers alone do not make a benchmark; the workload must be the
    artifact.

- tool_sdk: tool libraries, SDK or API wrappers, protocol implementations,
  developer utilities.
  Worked examples:
  * langchain, a tool library: tool_sdk, regardless of its star count.
  * "openai-go, the official API client": tool_sdk.
  * An MCP server implementation exposing a database to agents: tool_sdk.
    Protocol servers are infrastructure, not evaluations.
  * "agent-tokenizer, a fast tokenizer for agent traces": tool_sdk. The
    -tokenizer/-client/-sdk naming pattern is a strong signal.

- model_release: model releases and technical reports that report scores on
  existing benchmarks.
  Worked examples:
  * "Llama 3 Technical Report": model_release. It reports MMLU and
    HumanEval numbers but contributes weights, not an evaluation.
  * "X-Coder-32B: A Strong Code Model" with a results table over existing
    suites: model_release.

KEPT IN SCOPE despite not shipping a classic dataset:
- Benchmark METHODOLOGY papers: papers about how to construct, validate or
  de-bias benchmarks count as benchmarks, is_not_benchmark=false.
  Worked examples:
  * "Semantic-KG: A Method for Constructing Semantic Benchmarks": kept. The
    contribution is evaluation construction itself.
  * "On Contamination in Code Benchmarks: Detection and Mitigation": kept,
    it advances evaluation practice.
- Curated leaderboards with a fixed protocol (HELM scenarios, TechEmpower
  rounds, database performance rankings): kept. The workload + metric +
  published results satisfy all four elements even when the "paper" is a
  website.
- Benchmark extensions: "HumanEval-X: multilingual extension of HumanEval"
  ships new test data and baselines: kept, scored on its own merits.

EDGE CASES, decided explicitly:
- Dataset-only releases (data, no task protocol, no metrics, no baselines):
  NOT a benchmark; classify tool_sdk if it is packaged as a loader library,
  otherwise treat the missing elements as decisive and pick the closest
  category with is_not_benchmark=true.
- Competition tracks (SWE-bench style challenges with a leaderboard): kept,
  they are benchmarks with extra process around them.
- Awesome lists and curated link collections: not benchmarks. They usually
  surface as tool_sdk or system_framework candidates; classify by what the
  list collects, and say "curated list, no evaluation artifact" in
  tool_reasoning.
- A repo that wraps an existing benchmark in a harness ("run HumanEval in
  Docker"): tool_sdk. The benchmark already existed; the repo is tooling.

DECISION PROCEDURE, in order:
1. Check the four elements against the provided title, abstract, README
   excerpts and section summaries. Quote the evidence you used.
2. If all four present (or methodology/leaderboard exception applies), set
   is_not_benchmark=false and leave non_benchmark_category empty.
3. Otherwise set is_not_benchmark=true, pick the single best category, and
   justify in tool_reasoning naming the missing elements.
4. Non-benchmarks get relevance_score <= 2 no matter how popular they are:
   a 50k-star framework is still not a benchmark. State this explicitly in
   relevance_reasoning when it applies.
5. Score the five dimensions per the rubric, then fill the extraction
   fields from the provided text only. Never invent stars, dates, licenses
   or dataset sizes that were not given to you.`

// scoringRubric describes the five dimensions with banded guidance, the
// backend specialty block, classification and extraction fields, with
// per-field minimum reasoning lengths
const scoringRubric = `SCORING DIMENSIONS (0-10 each, one decimal allowed). For every dimension
write reasoning of AT LEAST 150 characters citing concrete facts from the
candidate fields. Use the bands below; interpolate within a band.

1. activity: community traction and maintenance.
   9-10: very active. Thousands of stars or downloads AND pushed within the
         last month; multiple maintainers; e.g. "2,400 stars, pushed 7 days
         ago" belongs here.
   7-8:  healthy. Hundreds of stars or an institutional backer; updated
         within the last quarter.
   4-6:  modest. Tens of stars, single maintainer, or updates slowing to
         quarterly. Fresh releases with little traction yet also land here;
         say that the project is new rather than abandoned.
   0-3:  stale or empty. No updates in 6+ months, near-zero adoption.
   Reasoning must cite the exact star count, download count or publish date
   you were given. If no such field was provided, say so and score from the
   source type (a HELM scenario inherits institutional activity).

2. reproducibility: can a third party re-run the evaluation?
   9-10: code + data + evaluation scripts + docs all public; one command or
         a documented pipeline reproduces the baseline numbers.
   7-8:  code and data public, some assembly required; or data public with
         a clear protocol but scripts scattered.
   4-6:  partial release. Data without the harness, or harness without the
         data; paper describes the protocol but artifacts are "coming soon".
   0-3:  closed. Results cannot be reproduced; private data; no code.
   Cite what is actually open: repository link, dataset link, license of
   the data, presence of evaluation scripts, documentation depth.

3. license: legal usability of the artifact.
   9-10: MIT, Apache-2.0 or BSD on both code and data; explicit statement
         that commercial use is permitted.
   7-8:  permissive code license, data under CC-BY or similar attribution
         terms.
   4-6:  copyleft (GPL family), research-only clauses, or a license that is
         present but unusual enough to need legal review.
   0-3:  no license found, explicitly proprietary, or scraping-encumbered
         data of unclear provenance.
   Name the license string exactly as provided. If the license field is
   empty and the text does not mention one, say "no license information
   provided" and score in the 3-4 range, do not guess.

4. novelty: what does this measure that existing benchmarks do not?
   9-10: opens a new capability axis. First benchmark for its task family,
         or first to make a previously unmeasurable behavior measurable.
   7-8:  meaningful delta on an existing axis: much harder instances, a new
         language/domain, contamination-resistant rebuild, realistic
         environments replacing toy ones.
   4-6:  incremental: another variant of a well-covered task (one more code
         generation set, one more QA split) with some twist.
   0-3:  duplicative: re-packaging existing data, or a leaderboard entry
         indistinguishable from established ones.
   Compare against the closest named prior benchmark ("unlike HumanEval,
   this evaluates repository-level edits") rather than asserting novelty in
   the abstract.

5. relevance: fit to the team's tracked scenarios: multi-agent
   collaboration and coding, code generation/understanding, tool and API
   use, web/GUI automation, backend and systems performance.
   9-10: directly evaluates multi-agent systems or agentic coding
         (AgentBench, WebArena, SWE-bench class).
   7-8:  code generation/understanding benchmarks (HumanEval, MBPP class),
         tool-use and function-calling suites, backend performance suites
         with engineering value.
   5-6:  agent-adjacent reasoning or planning (GSM8K, MATH class), GUI
         grounding datasets.
   3-4:  general LLM capability suites (MMLU class): useful context, weak
         fit.
   0-2:  unrelated domains (pure vision, speech, medical), and ALL
         non-benchmarks regardless of topic. A popular agent framework is
         relevance <= 2 because it is not a benchmark at all.

BACKEND SPECIALTY (only when the candidate is a backend benchmark: web
framework performance rounds, database rankings and load suites, API or
microservice benchmarks). When it applies set is_backend_benchmark=true and
ALSO provide, each with reasoning of AT LEAST 200 characters:
- backend_relevance_score + backend_relevance_reasoning: how much signal
  this gives an AI-coding team choosing backend technology. A framework
  round covering JSON serialization, queries and plaintext throughput with
  hundreds of frameworks scores high; a single-vendor micro-benchmark
  scores low. Name the test types and the coverage breadth.
- backend_engineering_score + backend_engineering_reasoning: methodology
  quality as engineering practice. Documented hardware, repeatable harness,
  containerized implementations, audited configurations score high;
  marketing numbers with undisclosed setups score low. Cite the concrete
  methodology details provided.
For non-backend candidates set is_backend_benchmark=false and leave the
four backend fields at their zero values.

CLASSIFICATION FIELDS:
- is_not_benchmark: true when the four-element test fails (see system
  message for the procedure and the exceptions that stay false).
- non_benchmark_category: exactly one of algorithm_paper |
  system_framework | tool_sdk | model_release when is_not_benchmark=true,
  otherwise the empty string "".
- tool_reasoning: AT LEAST 100 characters justifying the classification in
  either direction. For benchmarks, list the four elements you found
  ("task: repo-level bug fixing; data: 2,294 issues; metric: resolved rate;
  baselines: GPT-4 at 1.7%%"). For non-benchmarks, name what is missing and
  why the category fits.

EXTRACTION FIELDS (from the provided text only, never invented):
- task_domain: exactly one of %s.
  Coding for code generation/understanding/repair; WebDev for web-app
  building tasks; Backend for server, database and API performance; GUI for
  screen/desktop automation; ToolUse for function-calling and API-use
  suites; Collaboration for multi-agent teamwork; LLM/AgentOps for agent
  orchestration and evaluation platforms; Reasoning for math/logic;
  DeepResearch for long-horizon research tasks; Other when nothing fits.
- metrics: up to 5 short metric names actually used ("Pass@1", "Success
  Rate", "p99 latency"). Normalize capitalization, drop duplicates.
- baselines: up to 5 baseline systems/models with published results
  ("GPT-4", "Claude 3.5", "Gin"). Only include systems the text says were
  evaluated.
- institution: the publishing institution or organization, "" if unknown.
  Prefer the first author's affiliation; for leaderboards use the running
  organization ("Stanford CRFM", "TechEmpower").
- dataset_size: integer count of test instances, null when unknown.
  Interpret shorthand: "10k problems" is 10000, "1.2M queries" is 1200000,
  "2,294 issues" is 2294. When several splits are given, use the test/eval
  split size. Never output a range; pick the stated test count or null.
- overall_reasoning: AT LEAST 50 characters summarizing the verdict in one
  or two sentences: what it is, whether it is a real benchmark, and the
  headline score driver.

VAGUE STATEMENTS ARE FORBIDDEN. Every claim must be grounded in a provided
field. Rewrite patterns:
- BAD: "has many GitHub stars"          GOOD: "2,400 GitHub stars"
- BAD: "recently updated"               GOOD: "last pushed 2026-07-30"
- BAD: "code is open source"            GOOD: "MIT-licensed repo with eval
  scripts and the full test set in /data"
- BAD: "seems novel"                    GOOD: "unlike SWE-bench it scores
  multi-file refactors, which no prior suite isolates"
- BAD: "might be a tool"                GOOD: "ships an SDK wrapper around
  the OpenAI API; no test set, no metrics, no baselines: tool_sdk"
If a fact is unavailable, write "not provided" rather than hedging.`

// responseSchema enumerates every required field of the JSON reply and
// shows three fully worked outputs, one per major classification outcome
const responseSchema = `Respond with a single JSON object and nothing else. Schema, every field
required unless marked optional:
{
  "activity_score": 0.0,
  "reproducibility_score": 0.0,
  "license_score": 0.0,
  "novelty_score": 0.0,
  "relevance_score": 0.0,
  "activity_reasoning": ">= 150 chars",
  "reproducibility_reasoning": ">= 150 chars",
  "license_reasoning": ">= 150 chars",
  "novelty_reasoning": ">= 150 chars",
  "relevance_reasoning": ">= 150 chars",
  "overall_reasoning": ">= 50 chars",
  "is_backend_benchmark": false,
  "backend_relevance_score": 0.0,
  "backend_relevance_reasoning": ">= 200 chars when is_backend_benchmark",
  "backend_engineering_score": 0.0,
  "backend_engineering_reasoning": ">= 200 chars when is_backend_benchmark",
  "is_not_benchmark": false,
  "non_benchmark_category": "",
  "tool_reasoning": ">= 100 chars",
  "task_domain": "Coding",
  "metrics": [],
  "baselines": [],
  "institution": "",
  "dataset_size": null
}

Example 1, a real benchmark:
{
  "activity_score": 8.5,
  "reproducibility_score": 9.0,
  "license_score": 10.0,
  "novelty_score": 7.5,
  "relevance_score": 9.0,
  "activity_reasoning": "2,400 GitHub stars and the repository was pushed 7 days ago per the provided metadata. The README documents an active leaderboard with rolling submissions, and the metrics extracted from it show the harness is exercised continuously rather than abandoned after publication.",
  "reproducibility_reasoning": "The repository contains the full test set of 153 programming tasks, the evaluation harness, and per-model result logs. The dataset link points to a public download and the README documents a single command that reproduces the baseline table, so third-party reproduction cost is low.",
  "license_reasoning": "MIT License on both code and data per the provided license field, with an explicit note in the README that commercial evaluation use is permitted. Nothing in the provided text restricts redistribution of the task set, so legal usability is as good as it gets.",
  "novelty_reasoning": "Unlike HumanEval and MBPP, which score single-function completion, this suite evaluates coordinated multi-agent code generation where planner and implementer roles are separated. No prior suite named in the abstract isolates that collaboration axis, a meaningful new capability measurement.",
  "relevance_reasoning": "Directly evaluates multi-agent code generation, which is the team's core tracked scenario. It is a genuine benchmark with task definition, a 153-task test set, Pass@k metrics and GPT-4 baselines at 67%, so relevance is scored on fit rather than capped, and the fit is nearly exact.",
  "overall_reasoning": "Real multi-agent coding benchmark with full artifacts and strong baselines; high priority for the tracker.",
  "is_backend_benchmark": false,
  "backend_relevance_score": 0.0,
  "backend_relevance_reasoning": "",
  "backend_engineering_score": 0.0,
  "backend_engineering_reasoning": "",
  "is_not_benchmark": false,
  "non_benchmark_category": "",
  "tool_reasoning": "All four elements present: task (multi-agent code generation), standardized test set (153 tasks, versioned), metrics (Pass@1, Pass@10), baselines (GPT-4 67%, Claude 3.5 61%). Methodology and artifacts are public, so this is a genuine benchmark.",
  "task_domain": "Collaboration",
  "metrics": ["Pass@1", "Pass@10"],
  "baselines": ["GPT-4", "Claude 3.5"],
  "institution": "Acme University",
  "dataset_size": 153
}

Example 2, a tool library (popular but not a benchmark):
{
  "activity_score": 9.0,
  "reproducibility_score": 8.0,
  "license_score": 10.0,
  "novelty_score": 5.0,
  "relevance_score": 2.0,
  "activity_reasoning": "15,000 GitHub stars and 50+ commits in the last 30 days per the provided fields, multiple maintainers visible in the README. As a community project it is exceptionally active, which is scored here independently of the classification outcome below.",
  "reproducibility_reasoning": "The code is fully open with documentation and runnable examples, so the library itself is trivially reproducible. There is however no evaluation to reproduce: no test set or baseline table exists in the provided material, which is a classification matter, not a reproducibility one.",
  "license_reasoning": "MIT License per the license field, suitable for commercial use without restriction. The permissive license applies to the SDK code; there is no dataset to license because the project does not ship one.",
  "novelty_reasoning": "The library offers a convenient abstraction for composing agent tool calls, which has engineering value but measures nothing. As an evaluation artifact its novelty is nil; as tooling it is one of several similar frameworks named in its own README comparison section.",
  "relevance_reasoning": "Although the topic is agents and tool use, this is a tool library, not a benchmark: no task definition, no test set, no metrics, no baselines. Per the rubric all non-benchmarks are capped, so relevance_score is 2.0 despite the 15,000 stars and the adjacent subject matter.",
  "overall_reasoning": "Popular agent SDK, not a benchmark; penalized and kept out of the tracker by the relevance cap.",
  "is_backend_benchmark": false,
  "backend_relevance_score": 0.0,
  "backend_relevance_reasoning": "",
  "backend_engineering_score": 0.0,
  "backend_engineering_reasoning": "",
  "is_not_benchmark": true,
  "non_benchmark_category": "tool_sdk",
  "tool_reasoning": "Missing three of four elements: there is no evaluation task definition, no standardized test set and no baseline results anywhere in the provided README. The artifact is an SDK wrapper for agent tool calls, so the correct category is tool_sdk.",
  "task_domain": "ToolUse",
  "metrics": [],
  "baselines": [],
  "institution": "",
  "dataset_size": null
}

Example 3, an algorithm paper on existing benchmarks:
{
  "activity_score": 6.0,
  "reproducibility_score": 7.0,
  "license_score": 8.0,
  "novelty_score": 6.5,
  "relevance_score": 2.0,
  "activity_reasoning": "arXiv paper published 12 days ago per the provided publish date, with a companion repository at 85 stars. Early traction is modest but the paper is fresh; there is no long maintenance history to judge, which the score reflects as a young project rather than a stale one.",
  "reproducibility_reasoning": "The method code is released and the experiments run on public suites (HumanEval, MBPP per the abstract), so the reported numbers are re-runnable with moderate effort. What is reproducible is the algorithm's results, not a new evaluation, since no new test set is contributed.",
  "license_reasoning": "Apache-2.0 on the companion repository per the provided license field. The datasets used belong to the existing benchmarks and carry their own licenses, which the paper inherits rather than defines; nothing in the provided text adds restrictions.",
  "novelty_reasoning": "The search-based decoding method is a genuine algorithmic contribution, claiming +8 points Pass@1 over baseline decoding on HumanEval. But as an evaluation artifact it contributes nothing new: every dataset and metric it uses predates it, per its own experimental setup section.",
  "relevance_reasoning": "This is an algorithm paper evaluated on existing code benchmarks, not a benchmark itself: it defines no new task, dataset, metric or baseline suite. Per the rubric, non-benchmarks are capped at 2.0 relevance regardless of topical fit with code generation.",
  "overall_reasoning": "Algorithm contribution on HumanEval/MBPP; classified algorithm_paper, penalized out of the tracker.",
  "is_backend_benchmark": false,
  "backend_relevance_score": 0.0,
  "backend_relevance_reasoning": "",
  "backend_engineering_score": 0.0,
  "backend_engineering_reasoning": "",
  "is_not_benchmark": true,
  "non_benchmark_category": "algorithm_paper",
  "tool_reasoning": "The contribution is a Monte-Carlo search decoding method; all experiments run on pre-existing suites (HumanEval, MBPP). No new task, test set or baseline suite is introduced, which is the definition of algorithm_paper in the taxonomy.",
  "task_domain": "Coding",
  "metrics": ["Pass@1"],
  "baselines": ["GPT-4"],
  "institution": "Acme University",
  "dataset_size": null
}`

// buildPrompt renders the user turn for one candidate, folding in every
// relevant field the collectors and the enhancer produced
func buildPrompt(cand domain.RawCandidate) string {
	var sb strings.Builder

	sb.WriteString("Score this AI benchmark candidate.\n\nCANDIDATE:\n")
	fmt.Fprintf(&sb, "- Title: %s\n", cand.Title)
	fmt.Fprintf(&sb, "- Source: %s\n", cand.Source)
	fmt.Fprintf(&sb, "- URL: %s\n", cand.URL)
	fmt.Fprintf(&sb, "- Abstract: %s\n", excerpt(cand.Abstract, 1500))

	if cand.GitHubURL != "" {
		fmt.Fprintf(&sb, "- GitHub: %s\n", cand.GitHubURL)
		fmt.Fprintf(&sb, "- GitHub stars: %d\n", cand.GitHubStars)
	}
	if cand.PaperURL != "" && cand.PaperURL != cand.URL {
		fmt.Fprintf(&sb, "- Paper: %s\n", cand.PaperURL)
	}
	if cand.DatasetURL != "" {
		fmt.Fprintf(&sb, "- Dataset: %s\n", cand.DatasetURL)
	}
	if cand.LicenseType != "" {
		fmt.Fprintf(&sb, "- License: %s\n", cand.LicenseType)
	}
	if cand.TaskType != "" {
		fmt.Fprintf(&sb, "- Task type: %s\n", cand.TaskType)
	}
	if !cand.PublishDate.IsZero() {
		fmt.Fprintf(&sb, "- Published: %s\n", cand.PublishDate.Format("2006-01-02"))
	}
	if len(cand.Authors) > 0 {
		fmt.Fprintf(&sb, "- Authors: %s\n", strings.Join(cand.Authors, ", "))
	}
	if cand.RawInstitutions != "" {
		fmt.Fprintf(&sb, "- Institutions: %s\n", cand.RawInstitutions)
	}
	if len(cand.RawMetrics) > 0 {
		fmt.Fprintf(&sb, "- Metrics seen in README: %s\n", strings.Join(cand.RawMetrics, ", "))
	}
	if len(cand.RawBaselines) > 0 {
		fmt.Fprintf(&sb, "- Baselines seen in README: %s\n", strings.Join(cand.RawBaselines, ", "))
	}
	if cand.RawDatasetSize != "" {
		fmt.Fprintf(&sb, "- Dataset size hint: %s\n", cand.RawDatasetSize)
	}

	// section summaries attached by the PDF enhancer
	for _, key := range []string{"evaluation_summary", "dataset_summary", "baselines_summary"} {
		if v := cand.Meta(key); v != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", key, excerpt(v, 1000))
		}
	}

	sb.WriteString("\n")
	fmt.Fprintf(&sb, scoringRubric, strings.Join(domain.TaskDomains, " | "))
	sb.WriteString("\n\n")
	sb.WriteString(responseSchema)

	return sb.String()
}

// repairPrompt asks the model to lengthen the under-length reasoning fields
// while keeping every other field unchanged
func repairPrompt(short []string) string {
	var sb strings.Builder
	sb.WriteString("Your previous response is valid JSON but the following reasoning fields " +
		"are below their minimum length:\n")
	for _, item := range short {
		fmt.Fprintf(&sb, "- %s\n", item)
	}
	sb.WriteString("\nReturn the FULL JSON object again with those fields expanded to meet " +
		"their minimums. Add concrete facts and numbers, don't pad with filler. " +
		"Keep all scores and all other fields exactly as they were.")
	return sb.String()
}

func excerpt(s string, max int) string {
	if s == "" {
		return "N/A"
	}
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
