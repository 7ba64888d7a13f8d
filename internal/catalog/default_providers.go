package catalog

// defaultProviders is the compiled-in provider set. Limits mirror the free
// tiers each vendor publishes; 0 leaves a dimension unbounded.
var defaultProviders = []Provider{
	{
		ID:            "gemini",
		DisplayName:   "Gemini 2.0 Flash",
		ModelID:       "gemini-2.0-flash",
		CredentialKey: "GEMINI_API_KEY",
		BaseURL:       "https://generativelanguage.googleapis.com/v1beta/openai/",
		Limits: Limits{
			RequestsPerMinute: 15,
			TokensPerMinute:   1_000_000,
			RequestsPerDay:    1_500,
			TokensPerDay:      0,
		},
		Description: "Google Gemini via the OpenAI-compatible endpoint.",
	},
	{
		ID:            "mistral",
		DisplayName:   "Mistral Small",
		ModelID:       "mistral-small-latest",
		CredentialKey: "MISTRAL_API_KEY",
		BaseURL:       "https://api.mistral.ai/v1/",
		Limits: Limits{
			RequestsPerMinute: 60,
			TokensPerMinute:   500_000,
			RequestsPerDay:    0,
			TokensPerDay:      1_000_000_000,
		},
		Description: "Mistral AI hosted small model.",
	},
	{
		ID:            "groq-70b",
		DisplayName:   "Llama 3.3 70B (Groq)",
		ModelID:       "llama-3.3-70b-versatile",
		CredentialKey: "GROQ_API_KEY",
		BaseURL:       "https://api.groq.com/openai/v1/",
		Limits: Limits{
			RequestsPerMinute: 30,
			TokensPerMinute:   12_000,
			RequestsPerDay:    1_000,
			TokensPerDay:      100_000,
		},
		Description: "Large Llama model on Groq hardware.",
	},
	{
		ID:            "groq-8b",
		DisplayName:   "Llama 3.1 8B (Groq)",
		ModelID:       "llama-3.1-8b-instant",
		CredentialKey: "GROQ_API_KEY",
		BaseURL:       "https://api.groq.com/openai/v1/",
		Limits: Limits{
			RequestsPerMinute: 30,
			TokensPerMinute:   6_000,
			RequestsPerDay:    14_400,
			TokensPerDay:      500_000,
		},
		Description: "Fast fallback model on Groq hardware.",
	},
}
