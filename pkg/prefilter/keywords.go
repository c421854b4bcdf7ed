package prefilter

// requiredKeywords covers the code, web/GUI, agent and backend/performance
// vocabulary, at least one must appear in title+abstract
var requiredKeywords = []string{
	// coding
	"code", "coding", "program", "programming", "software", "repository",
	// web / GUI
	"web", "browser", "gui", "ui", "automation",
	// agent
	"agent", "multi-agent", "tool", "api", "workflow",
	// backend / performance
	"performance", "benchmark", "framework", "database", "latency",
	"throughput", "optimization", "http", "server", "service",
	"endpoint", "query", "storage",
	// reasoning
	"reasoning", "math", "logic",
}

// excludedKeywords reject pure-NLP, pure-vision, curated-list, tutorial and
// SDK-wrapper material regardless of required hits
var excludedKeywords = []string{
	// pure NLP / multimodal
	"translation", "summarization", "sentiment analysis", "text classification",
	"dialogue system", "conversational ai", "chatbot tutorial",
	"speech recognition", "audio processing",
	"image classification", "computer vision", "video processing",
	// resources and tutorials
	"awesome list", "curated list", "collection of resources", "list of tools",
	"tutorial series", "online course", "learning guide",
	// tool wrappers
	"sdk wrapper", "api wrapper library",
}
