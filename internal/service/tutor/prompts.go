package tutor

import (
	"encoding/json"
	"fmt"
	"strings"
)

var questionTypeNames = map[string]string{
	QuestionChoice: "选择题",
	QuestionFill:   "填空题",
	QuestionSolve:  "解答题",
	QuestionJudge:  "判断题",
}

func teacherPersona(grade, subject string) string {
	return fmt.Sprintf("你是一位经验丰富的%s%s老师，擅长出题、讲解和批改作业。只返回JSON，不要输出其他内容。", grade, subject)
}

func exercisePrompt(req *ExerciseRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "请为%s学生生成%d道%s%s。\n\n", req.Grade, req.QuestionCount, req.Subject, questionTypeNames[req.QuestionType])
	b.WriteString("要求：\n")
	if req.KnowledgePoint != "" {
		fmt.Fprintf(&b, "- 涉及知识点：%s\n", req.KnowledgePoint)
	}
	fmt.Fprintf(&b, "- 难度等级：%d/5\n", req.Difficulty)
	if req.QuestionType == QuestionChoice {
		b.WriteString("- 选择题提供A、B、C、D四个选项\n")
	}
	b.WriteString(`
请严格按照以下JSON格式返回：
{
  "questions": [
    {
      "content": "题目内容",
      "options": {"A": "选项A", "B": "选项B", "C": "选项C", "D": "选项D"},
      "answer": "正确答案",
      "explanation": "答案解析",
      "knowledge_point": "对应知识点"
    }
  ]
}`)
	return b.String()
}

func analysisPrompt(req *AnalysisRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "请分析这道%s%s题目中学生的作答情况。\n\n", req.Grade, req.Subject)
	fmt.Fprintf(&b, "题目：%s\n", req.Question)
	fmt.Fprintf(&b, "学生答案：%s\n", req.StudentAnswer)
	if req.CorrectAnswer != "" {
		fmt.Fprintf(&b, "参考答案：%s\n", req.CorrectAnswer)
	}
	b.WriteString(`
请严格按照以下JSON格式返回：
{
  "is_correct": true,
  "correct_answer": "正确答案",
  "error_type": "错误类型（如计算错误、概念不清）",
  "analysis": "详细解析",
  "knowledge_points": ["知识点"],
  "suggestions": ["改进建议"]
}`)
	return b.String()
}

type errorSummary struct {
	KnowledgePoint string `json:"knowledge_point"`
	ErrorType      string `json:"error_type"`
	Subject        string `json:"subject"`
	IsResolved     bool   `json:"is_resolved"`
}

func reportPrompt(from, to string, stats ReportStatistics, errs []errorSummary) string {
	data, _ := json.Marshal(errs)

	var b strings.Builder
	b.WriteString("请根据学生的错题记录生成学习报告。\n\n")
	fmt.Fprintf(&b, "时间范围：%s 到 %s\n", from, to)
	fmt.Fprintf(&b, "错题数据：%s\n\n", data)
	b.WriteString("请分析学习总结、知识点掌握情况、薄弱环节、进步情况和下阶段学习建议。\n")
	fmt.Fprintf(&b, `
请严格按照以下JSON格式返回：
{
  "summary": "学习总结",
  "knowledge_mastery": {
    "mastered": ["已掌握的知识点"],
    "weak": ["薄弱知识点"],
    "need_practice": ["需要加强练习的知识点"]
  },
  "progress_analysis": "进步情况分析",
  "suggestions": ["学习建议"],
  "statistics": {"total_errors": %d, "resolved_errors": %d}
}`, stats.TotalErrors, stats.ResolvedErrors)
	return b.String()
}

func homeworkPrompt(cfg *PhotoConfig) string {
	detail := "简要说明"
	if cfg.explain() {
		detail = "提供详细解析"
	}
	similar := ""
	if cfg.NeedSimilarQuestions {
		similar = `,
  "similar_questions": ["针对错题的相似练习题"]`
	}

	return fmt.Sprintf(`你是一个专业的%s老师，正在批改%s学生的作业。请仔细分析图片中的题目和学生答案，然后提供详细的批阅结果。

请严格按照以下JSON格式返回：
{
  "overall_summary": "对整体作业的评价和建议",
  "corrections": [
    {
      "question": "题目内容",
      "student_answer": "学生的答案",
      "correct_answer": "正确答案",
      "is_correct": false,
      "explanation": "解析",
      "knowledge_points": ["相关知识点"]
    }
  ]%s
}

要求：
1. 仔细识别图片中的每道题目和学生答案
2. 准确判断答案是否正确
3. %s
4. 指出涉及的知识点`, cfg.Subject, cfg.Grade, similar, detail)
}

func questionPrompt(cfg *PhotoConfig) string {
	return fmt.Sprintf(`你是一位%s%s解题专家，请分析这张图片中的题目，并提供清晰、详尽的解答。

请严格按照以下JSON格式返回：
{
  "question_analysis": {
    "question": "题目内容",
    "solution_steps": ["解题步骤"],
    "final_answer": "最终答案",
    "knowledge_points_summary": "知识点总结"
  }
}`, cfg.Grade, cfg.Subject)
}

const connectionPrompt = "你好，请回复'连接正常'"
