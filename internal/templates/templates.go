// Package templates holds the prompt texts for keyword derivation and
// answer grounding, plus the parsing helpers for what the model sends
// back.
package templates

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/deepchat/deepchat/internal/llm"
	"github.com/deepchat/deepchat/internal/relevant"
)

// SkipSearchMarker is what the keyword prompt instructs the model to
// emit when a question is not answerable via web search.
const SkipSearchMarker = "<|NotKeyword|>"

// DefaultPivotWords are the reasoning tokens that mark a chain of
// thought turning back on itself.
var DefaultPivotWords = []string{"Wait", "wait", "Alternatively", "alternatively"}

const standardsCore = `
- **核心要素前置**：主实体+关键属性结构（如"新冠疫苗副作用"）
- **时态显性化**：将"明年"等相对时间转为绝对时间（如"2025年总统大选"）
- **去疑问结构化**：
   - 去除"如何"/"怎样"→转名词结构（"制作方法"→"手工皂制作流程"）
   - 转化"为什么"→"原因分析"（如"日元贬值原因"）
- **领域适配**：
   - 学术查询：添加"研究"/"论文"后缀（如"阿尔茨海默症治疗 最新研究"）
   - 时事类：保留精确时间戳（如"2024年5月台海局势"）
- **多实体处理**：用连接符关联（如"中美AI技术发展对比"）
`

const standardsMulti = `
- **多维度覆盖**：生成的关键词应覆盖用户需求的不同维度（如"特斯拉最新车型续航数据"和"特斯拉最新车型充电效率"）
- **冗余控制**：避免生成意义重复的关键词（如"特斯拉续航"和"特斯拉电池续航"）
`

const qualityCheck = `
✓ 长度控制在10-15个汉字
✓ 包含至少2个关键词
✓ 时间/地点等限定词完整保留
✓ 避免否定式表达（"不"->"缺乏"）
`

const specialCase = `**特殊情况处理**：
- 如果问题明显不适合使用搜索引擎查询（如主观问题、情感问题、无法通过搜索得到答案的问题），则直接输出 ` + "`" + SkipSearchMarker + "`" + `
`

const multiKeyShots = `示例参考：
%[1]s：2024年诺贝尔文学奖得主？
转换后：2024诺贝尔文学奖获得者

%[1]s：特斯拉最新车型的续航里程？
转换后：特斯拉最新车型续航数据 | 特斯拉最新车型电池性能

%[1]s：如何学习一门新语言最快？
转换后：语言学习高效方法 | 新语言学习技巧 | 语言学习工具推荐

%[1]s：苹果公司最新发布的iPhone有哪些新功能？
转换后：iPhone最新机型功能解析 | 苹果新品发布会亮点 | iPhone用户体验评测

以下是你要处理的%[1]s的相关信息：

`

const oneKeyShots = `示例对照：
%[1]s：心脏病发作有哪些症状？
转换后：心脏病发作的典型症状

%[1]s：特斯拉最新车型的续航里程？
转换后：特斯拉最新车型续航数据

%[1]s：2024年诺贝尔文学奖得主？
转换后：2024诺贝尔文学奖获得者

`

// MultiKeywordZH derives several pipe-separated search keywords from a
// standalone question.
func MultiKeywordZH(question string) string {
	return "你需要将用户提供的问题转换为适合搜索引擎查询的多个独立关键词，确保每个关键词都能独立覆盖用户需求的不同维度。\n\n" +
		"处理规范：" + standardsCore + standardsMulti +
		"\n质量检测标准：" + qualityCheck + specialCase +
		fmt.Sprintf(multiKeyShots, "问题") +
		"问题：" + question + "\n转换后：\n"
}

// MultiKeywordWithHistoryZH is the follow-up variant; the conversation
// so far disambiguates the question.
func MultiKeywordWithHistoryZH(question, history string) string {
	return "你需要将用户提供的追问转换为适合搜索引擎查询的多个独立关键词，确保每个关键词都能独立覆盖用户需求的不同维度。\n\n" +
		"处理规范：" + standardsCore + standardsMulti +
		"\n质量检测标准：" + qualityCheck + specialCase +
		fmt.Sprintf(multiKeyShots, "追问") +
		"历史聊天记录：\n\n " + history + "\n\n追问：" + question + "\n转换后：\n"
}

// SingleKeywordZH rewrites a question into one search query.
func SingleKeywordZH(question string) string {
	return "你需将用户提供的问题转换为适合搜索引擎查询的独立问题。\n\n" +
		"处理规范：" + standardsCore +
		"\n质量检测标准：" + qualityCheck + specialCase +
		fmt.Sprintf(oneKeyShots, "问题") +
		"问题：" + question + "\n转换后：\n"
}

// SingleKeywordWithHistoryZH is the follow-up variant of SingleKeywordZH.
func SingleKeywordWithHistoryZH(question, history string) string {
	return "你需将用户提供的追问转换为适合搜索引擎查询的独立问题。\n\n" +
		"处理规范：" + standardsCore +
		"\n质量检测标准：" + qualityCheck + specialCase +
		fmt.Sprintf(oneKeyShots, "追问") +
		"历史聊天记录：\n\n " + history + "\n\n追问：" + question + "\n转换后：\n"
}

const rephraseShotsEN = `Example:

Follow-up question: What are the symptoms of a heart attack?

Rephrased question: Symptoms of a heart attack.

Follow-up question: Where is the upcoming Olympics being held?

Rephrased question: Location of the upcoming Olympics.

Follow-up question: Taylor Swift's latest album?

Rephrased question: Name of Taylor Swift's latest album.
`

// RephraseEN is the English single-query rewrite.
func RephraseEN(question string) string {
	return "You will give a follow-up question.  You need to rephrase the follow-up question if needed so it is a standalone question that can be used by the AI model to search the internet.\n\n" +
		rephraseShotsEN +
		"\nFollow-up question: " + question + "\n\nRephrased question:\n"
}

// RephraseWithHistoryEN is RephraseEN with prior conversation attached.
func RephraseWithHistoryEN(question, history string) string {
	return "You will give a follow-up question.  You need to rephrase the follow-up question if needed so it is a standalone question that can be used by the AI model to search the internet.\n\n" +
		rephraseShotsEN +
		"\n\nPrevious Conversation:\n\n" + history +
		"\n\nFollow-up question: " + question + "\n\nRephrased question:\n"
}

// AnalysisEN asks for the numbered reasoning steps behind a question,
// one "step N:" line each, for the flow diagram.
func AnalysisEN(question string) string {
	return `You are a question analysis assistant.

# Task:
Given a question, analyze it and provide logical steps to derive the accurate answer.

# Requirements:
1. Each step must include concrete, specific information.
2. Each step must be a complete sentence.
3. Each step must follow a logical sequence.

# Example Output:
step1: Identify the collaborators of author A.
step2: Calculate the number of collaborations between author A and each collaborator.
step3: Compare collaboration frequencies to determine the closest collaborator.

# Input:
The given question is: ` + question + `

# Output:
Your answer is:
`
}

// HistoryString flattens chat turns into "role: content" lines.
func HistoryString(history []llm.Message) string {
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		lines = append(lines, turn.Role+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}

var (
	punctRe = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// ParseKeywords splits a pipe-separated model answer into clean
// keywords. Punctuation inside a keyword becomes a space so the
// provider never sees quoting syntax; empty pieces disappear.
func ParseKeywords(output string) []string {
	if output == "" {
		return nil
	}
	var keywords []string
	for _, kw := range strings.Split(output, "|") {
		kw = punctRe.ReplaceAllString(strings.TrimSpace(kw), " ")
		kw = strings.TrimSpace(spaceRe.ReplaceAllString(kw, " "))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

// citationInstruction is appended between the user question and the
// reference documents.
const citationInstruction = "\n\n下面是一些辅助你回答用户问题的参考资料，请你以`[序号]`对生成中参考了资料的部分标注对应的资料序号：\n\n"

// FormatDocuments renders retrieved records as the numbered reference
// block the answer prompt cites by index.
func FormatDocuments(infos []relevant.Info) string {
	var b strings.Builder
	for i, info := range infos {
		fmt.Fprintf(&b, "**文档 %d:**\n", i+1)
		fmt.Fprintf(&b, "**标题：** %s\n", info.Title)
		url := info.URL
		if url == "" {
			url = "None"
		}
		fmt.Fprintf(&b, "**URL：** %s\n", url)
		context := info.Context
		if context == "" {
			context = "<|Invalid Content|>"
		}
		fmt.Fprintf(&b, "**内容：** %s\n\n", context)
	}
	return b.String()
}

// GroundQuestion appends the citation instruction and reference block
// to the final user turn. With no documents the question is untouched.
func GroundQuestion(question string, docs []relevant.Info) string {
	if len(docs) == 0 {
		return question
	}
	return question + citationInstruction + FormatDocuments(docs)
}
