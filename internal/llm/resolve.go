package llm

// Family is a chat model provider family.
type Family string

const (
	FamilyGemini Family = "gemini"
	FamilyClaude Family = "claude"
	FamilyGPT    Family = "gpt"
)

// DefaultModel is used when the configured model is unknown or empty.
const DefaultModel = "gemini-2.0-flash"

// ResolvedModel is the outcome of a model lookup: which family serves it
// and the canonical identifier to send to the provider API.
type ResolvedModel struct {
	Family        Family
	ProviderModel string

	// Fallback is true when the configured model was unknown and the
	// default was substituted.
	Fallback bool
}

// modelTable maps every supported configured model ID, including friendly
// aliases, to its family and canonical provider ID. Lookup is by exact ID;
// anything absent falls back to DefaultModel.
var modelTable = map[string]ResolvedModel{
	// Gemini
	"gemini-1.5-flash": {Family: FamilyGemini, ProviderModel: "gemini-1.5-flash"},
	"gemini-1.5-pro":   {Family: FamilyGemini, ProviderModel: "gemini-1.5-pro"},
	"gemini-2.0-flash": {Family: FamilyGemini, ProviderModel: "gemini-2.0-flash"},
	"gemini-2.5-flash": {Family: FamilyGemini, ProviderModel: "gemini-2.5-flash"},
	"gemini-2.5-pro":   {Family: FamilyGemini, ProviderModel: "gemini-2.5-pro"},
	"gemini-3-flash":   {Family: FamilyGemini, ProviderModel: "gemini-2.5-flash"},
	"gemini-3-pro":     {Family: FamilyGemini, ProviderModel: "gemini-2.5-pro"},

	// Claude
	"claude-3-5-haiku-20241022":  {Family: FamilyClaude, ProviderModel: "claude-3-5-haiku-20241022"},
	"claude-3-5-sonnet-20241022": {Family: FamilyClaude, ProviderModel: "claude-3-5-sonnet-20241022"},
	"claude-haiku":               {Family: FamilyClaude, ProviderModel: "claude-3-5-haiku-20241022"},
	"claude-sonnet":              {Family: FamilyClaude, ProviderModel: "claude-3-5-sonnet-20241022"},

	// GPT
	"gpt-4o":      {Family: FamilyGPT, ProviderModel: "gpt-4o"},
	"gpt-4o-mini": {Family: FamilyGPT, ProviderModel: "gpt-4o-mini"},
	"gpt-4-turbo": {Family: FamilyGPT, ProviderModel: "gpt-4-turbo"},
	"gpt-5":       {Family: FamilyGPT, ProviderModel: "gpt-4o"},
	"gpt-5-mini":  {Family: FamilyGPT, ProviderModel: "gpt-4o-mini"},
}

// ResolveModel maps a configured model ID to its family and canonical
// provider identifier. Unknown or empty IDs resolve to DefaultModel; the
// fallback is explicit, never inferred from the ID's spelling.
func ResolveModel(model string) ResolvedModel {
	if r, ok := modelTable[model]; ok {
		return r
	}
	fallback := modelTable[DefaultModel]
	fallback.Fallback = true
	return fallback
}
