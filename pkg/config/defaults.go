package config

// default query vocabularies, overridable per source in the YAML config

var defaultArxivKeywords = []string{
	"code generation benchmark",
	"code evaluation",
	"programming benchmark",
	"software engineering benchmark",
	"program synthesis evaluation",
	"code completion benchmark",
	"web agent benchmark",
	"browser automation benchmark",
	"web navigation evaluation",
	"gui automation benchmark",
	"multi-agent benchmark",
	"agent collaboration evaluation",
	"tool use benchmark",
	"api usage benchmark",
	"backend development benchmark",
	"api design benchmark",
	"restful api evaluation",
	"database query benchmark",
	"sql optimization benchmark",
	"microservices benchmark",
	"distributed systems benchmark",
	"system design evaluation",
	"backend framework benchmark",
	"server performance benchmark",
	"web framework comparison",
}

var defaultArxivCategories = []string{"cs.SE", "cs.AI", "cs.CL", "cs.DC", "cs.DB", "cs.NI"}

var defaultGitHubTopics = []string{
	"code-generation",
	"code-benchmark",
	"program-synthesis",
	"software-testing",
	"web-automation",
	"browser-automation",
	"web-agent",
	"gui-automation",
	"agent-benchmark",
	"multi-agent",
	"llm-agent",
	"backend-benchmark",
	"api-benchmark",
	"database-benchmark",
	"distributed-systems",
	"performance-testing",
	"load-testing",
	"web-framework-benchmark",
	"database-performance",
	"sql-benchmark",
}

var defaultGitHubTopicBlacklist = []string{
	"awesome",
	"awesome-list",
	"tutorial",
	"course",
	"learning-resources",
	"interview-preparation",
	"cheatsheet",
}

var defaultHuggingFaceKeywords = []string{
	"code",
	"programming",
	"software",
	"benchmark",
	"backend",
	"api",
	"database",
	"sql",
	"system-design",
}

var defaultHELMAllowed = []string{
	"code", "coding", "program", "reasoning", "math", "logic",
	"tool", "api", "agent", "web", "browser", "gui",
}

var defaultHELMExcluded = []string{
	"qa", "question", "answer", "reading", "comprehension",
	"dialogue", "conversation", "summarization", "summary",
	"translation", "sentiment", "classification",
	"image", "vision", "video",
}
