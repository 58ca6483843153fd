package ai

import (
	"encoding/json"
	"strings"
)

const (
	vehicleDataPlaceholder  = "{{vehicleData}}"
	userQuestionPlaceholder = "{{userQuestion}}"
)

// BuildPrompt はテンプレートのプレースホルダーを解決して最終プロンプトを構築する。
// {{userQuestion}} はcontextの値よりquestionが最終的に優先される。
// 上記2つ以外の未解決プレースホルダーはそのまま残す（エラーにしない）
func BuildPrompt(template, question string, rc *RequestContext) string {
	prompt := template

	// VehicleDataがJSON化できない場合（JSONデコード由来のmapでは起こらない）は
	// 置換せずプレースホルダーを残し、末尾の車両情報ブロックも付加しない
	if rc != nil && rc.VehicleData != nil {
		if data, err := json.Marshal(rc.VehicleData); err == nil {
			prompt = strings.ReplaceAll(prompt, vehicleDataPlaceholder, string(data))
		}
	}

	if question != "" {
		prompt = strings.ReplaceAll(prompt, userQuestionPlaceholder, question)
	}

	// questionが空の場合のみcontextのuserQuestionが残りを埋める
	if rc != nil && rc.UserQuestion != "" {
		prompt = strings.ReplaceAll(prompt, userQuestionPlaceholder, rc.UserQuestion)
	}

	// 車両情報を人間可読ブロックとして末尾に付加
	if rc != nil && rc.VehicleData != nil {
		if data, err := json.MarshalIndent(rc.VehicleData, "", "  "); err == nil {
			prompt += "\n\nVehicle Information:\n" + string(data)
		}
	}

	return prompt
}
