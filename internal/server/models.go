package server

// ModelInfo describes one selectable upstream model for the frontend
// picker. IsThink marks models that stream a reasoning channel and so
// get the pivot-word truncation treatment.
type ModelInfo struct {
	ModelName string `json:"model_name"`
	IsThink   bool   `json:"isThink"`
	Label     string `json:"label"`
	Order     int    `json:"order"`
}

var ModelInfos = []ModelInfo{
	{ModelName: "qwq-32b", IsThink: true, Label: "数学推理", Order: 1},
	{ModelName: "qwen2.5-72b-instruct", IsThink: false, Label: "中文顶尖", Order: 2},
	{ModelName: "deepseek-v3", IsThink: false, Label: "满血版v3，深度推理", Order: 3},
	{ModelName: "qwen2.5-7b-instruct", IsThink: false, Label: "快速响应", Order: 4},
	{ModelName: "deepseek-r1-distill-qwen-32b", IsThink: true, Label: "蒸馏版，深度推理", Order: 5},
	{ModelName: "qwen2.5-32b-instruct", IsThink: false, Label: "性能均衡", Order: 6},
	{ModelName: "deepseek-r1", IsThink: true, Label: "满血版r1，深度推理", Order: 7},
	{ModelName: "qwen2.5-coder-32b-instruct", IsThink: false, Label: "代码专家", Order: 8},
	{ModelName: "llama-3.3-70b-instruct", IsThink: false, Label: "海外开源", Order: 9},
}

// IsThinkModel reports whether a model streams reasoning. Unknown
// models are treated as plain chat models.
func IsThinkModel(name string) bool {
	for _, m := range ModelInfos {
		if m.ModelName == name {
			return m.IsThink
		}
	}
	return false
}
