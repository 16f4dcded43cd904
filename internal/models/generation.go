package models

// GenerationRequest is one caller's text-generation request
type GenerationRequest struct {
	UserID      string  `json:"user_id"`
	ServiceName string  `json:"service"`
	TaskType    string  `json:"task_type"`
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	JSONMode    bool    `json:"json_mode"`
}

// GenerationResult is the vendor-neutral outcome of a provider call
type GenerationResult struct {
	Content      string `json:"content"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
}
