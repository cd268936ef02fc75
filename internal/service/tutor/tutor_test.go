package tutor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"edu-ai-gateway/internal/models"
	"edu-ai-gateway/internal/repository"
	"edu-ai-gateway/internal/service/gateway"
	"edu-ai-gateway/internal/service/provider"
	"edu-ai-gateway/internal/service/recovery"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGateway struct {
	requests []*gateway.Request
	resp     *gateway.Response
	err      error
}

func (f *fakeGateway) Invoke(_ context.Context, req *gateway.Request) (*gateway.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func succeed(content string) *gateway.Response {
	rec := recovery.Recover(content)
	return &gateway.Response{
		Success:   true,
		Result:    rec.Value,
		Raw:       content,
		Degraded:  rec.Degraded,
		Provider:  "tongyi",
		ModelUsed: "qwen-plus",
		Latency:   1500 * time.Millisecond,
	}
}

func fail() *gateway.Response {
	return &gateway.Response{Success: false, Provider: "tongyi", ModelUsed: "tongyi", Error: "HTTP 500", Details: "boom"}
}

type memoryExercises struct {
	saved []models.Exercise
	err   error
}

func (m *memoryExercises) CreateBatch(_ context.Context, rows []models.Exercise) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, rows...)
	return nil
}

type memoryErrors struct {
	saved    []models.ErrorRecord
	filter   repository.ErrorRecordFilter
	resolved []uuid.UUID
}

func (m *memoryErrors) CreateBatch(_ context.Context, rows []models.ErrorRecord) error {
	m.saved = append(m.saved, rows...)
	return nil
}

func (m *memoryErrors) GetByUser(_ context.Context, userID uuid.UUID, filter repository.ErrorRecordFilter) ([]models.ErrorRecord, error) {
	m.filter = filter
	var out []models.ErrorRecord
	for _, r := range m.saved {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryErrors) MarkResolved(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	m.resolved = append(m.resolved, id)
	return nil
}

type recordingArchiver struct {
	keys []string
	err  error
}

func (a *recordingArchiver) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.keys = append(a.keys, key)
	return "https://bucket.example/" + key, nil
}

type harness struct {
	gw        *fakeGateway
	exercises *memoryExercises
	errs      *memoryErrors
	archiver  *recordingArchiver
	svc       *Service
}

func newHarness(resp *gateway.Response) *harness {
	h := &harness{
		gw:        &fakeGateway{resp: resp},
		exercises: &memoryExercises{},
		errs:      &memoryErrors{},
		archiver:  &recordingArchiver{},
	}
	h.svc = NewService(h.gw, h.exercises, h.errs, h.archiver, zap.NewNop())
	h.svc.now = func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) }
	return h
}

func questionsJSON(n int) string {
	s := "```json\n{\"questions\":["
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf(`{"content":"%d+1=?","options":{"A":"1","B":"2"},"answer":"B","explanation":"加法","difficulty":"3"}`, i)
	}
	return s + "]}\n```"
}

func TestGenerateExercise(t *testing.T) {
	h := newHarness(succeed(questionsJSON(3)))
	user := uuid.New()

	res, err := h.svc.GenerateExercise(context.Background(), user, ExerciseRequest{
		Subject: "数学", Grade: "三年级", QuestionCount: 3,
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "题目生成成功", res.Message)
	require.Len(t, res.Questions, 3)
	q := res.Questions[0]
	assert.Equal(t, QuestionChoice, q.Type)
	assert.Equal(t, "0+1=?", q.Content)
	assert.Equal(t, 3, q.Difficulty)
	assert.Equal(t, "三年级数学", q.KnowledgePoint)
	assert.NotEqual(t, uuid.Nil, q.ID)

	require.Len(t, h.gw.requests, 1)
	req := h.gw.requests[0]
	assert.Equal(t, models.FunctionGenerateExercise, req.FunctionTag)
	require.NotNil(t, req.UserID)
	assert.Equal(t, user, *req.UserID)
	assert.Contains(t, req.Messages[1].Text, "3道数学选择题")

	require.Len(t, h.exercises.saved, 3)
	assert.Equal(t, "qwen-plus", h.exercises.saved[0].ModelUsed)
	assert.JSONEq(t, `{"A":"1","B":"2"}`, string(h.exercises.saved[0].Options))
}

func TestGenerateExerciseTruncatesToRequestedCount(t *testing.T) {
	h := newHarness(succeed(questionsJSON(6)))

	res, err := h.svc.GenerateExercise(context.Background(), uuid.New(), ExerciseRequest{
		Subject: "数学", Grade: "三年级", QuestionCount: 4, QuestionType: QuestionFill, KnowledgePoint: "加法",
	})
	require.NoError(t, err)

	assert.Len(t, res.Questions, 4)
	assert.Equal(t, QuestionFill, res.Questions[0].Type)
	assert.Equal(t, "加法", res.Questions[0].KnowledgePoint)
	assert.Len(t, h.exercises.saved, 4)
}

func TestGenerateExerciseValidation(t *testing.T) {
	tests := []struct {
		name string
		req  ExerciseRequest
	}{
		{name: "missing subject", req: ExerciseRequest{Grade: "一年级"}},
		{name: "too many", req: ExerciseRequest{Subject: "数学", Grade: "一年级", QuestionCount: 21}},
		{name: "bad type", req: ExerciseRequest{Subject: "数学", Grade: "一年级", QuestionType: "essay"}},
		{name: "bad difficulty", req: ExerciseRequest{Subject: "数学", Grade: "一年级", Difficulty: 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(succeed("{}"))
			_, err := h.svc.GenerateExercise(context.Background(), uuid.New(), tt.req)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Empty(t, h.gw.requests)
		})
	}
}

func TestGenerateExerciseFailureAndDegraded(t *testing.T) {
	t.Run("transport failure", func(t *testing.T) {
		h := newHarness(fail())
		res, err := h.svc.GenerateExercise(context.Background(), uuid.New(), ExerciseRequest{Subject: "数学", Grade: "一年级"})
		require.NoError(t, err)

		assert.False(t, res.Success)
		assert.Equal(t, "HTTP 500", res.Error)
		assert.Empty(t, res.Questions)
		assert.Empty(t, h.exercises.saved)
	})

	t.Run("degraded", func(t *testing.T) {
		h := newHarness(succeed("题目如下：1+1=?"))
		res, err := h.svc.GenerateExercise(context.Background(), uuid.New(), ExerciseRequest{Subject: "数学", Grade: "一年级"})
		require.NoError(t, err)

		assert.True(t, res.Success)
		assert.True(t, res.Degraded)
		assert.True(t, recovery.IsFallback(res.Result))
		assert.Empty(t, res.Questions)
		assert.Empty(t, h.exercises.saved)
	})

	t.Run("configuration error", func(t *testing.T) {
		h := newHarness(nil)
		h.gw.err = fmt.Errorf("%w: none", gateway.ErrConfiguration)
		_, err := h.svc.GenerateExercise(context.Background(), uuid.New(), ExerciseRequest{Subject: "数学", Grade: "一年级"})
		assert.ErrorIs(t, err, gateway.ErrConfiguration)
	})

	t.Run("save failure still returns questions", func(t *testing.T) {
		h := newHarness(succeed(questionsJSON(2)))
		h.exercises.err = errors.New("db down")
		res, err := h.svc.GenerateExercise(context.Background(), uuid.New(), ExerciseRequest{Subject: "数学", Grade: "一年级", QuestionCount: 2})
		require.NoError(t, err)
		assert.Len(t, res.Questions, 2)
		assert.Equal(t, uuid.Nil, res.Questions[0].ID)
	})
}

func TestGenerateAnalysisStoresWrongAnswer(t *testing.T) {
	h := newHarness(succeed(`{"is_correct":false,"correct_answer":"12","error_type":"计算错误","analysis":"3×4=12","knowledge_points":["乘法","口诀"]}`))
	user := uuid.New()

	out, err := h.svc.GenerateAnalysis(context.Background(), user, AnalysisRequest{
		Subject: "数学", Grade: "二年级", Question: "3×4=?", StudentAnswer: "7",
	})
	require.NoError(t, err)

	assert.True(t, out.Success)
	require.Len(t, h.errs.saved, 1)
	rec := h.errs.saved[0]
	assert.Equal(t, user, rec.UserID)
	assert.Equal(t, "12", rec.CorrectAnswer)
	assert.Equal(t, "计算错误", rec.ErrorType)
	assert.Equal(t, "乘法、口诀", rec.KnowledgePoint)
	assert.Equal(t, models.FunctionGenerateAnalysis, h.gw.requests[0].FunctionTag)
}

func TestGenerateAnalysisCorrectAnswer(t *testing.T) {
	h := newHarness(succeed(`{"is_correct":true,"analysis":"对"}`))

	_, err := h.svc.GenerateAnalysis(context.Background(), uuid.New(), AnalysisRequest{Subject: "数学", Question: "1+1", StudentAnswer: "2"})
	require.NoError(t, err)
	assert.Empty(t, h.errs.saved)

	_, err = h.svc.GenerateAnalysis(context.Background(), uuid.New(), AnalysisRequest{Subject: "数学", Question: " "})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAnalyzeErrors(t *testing.T) {
	h := newHarness(succeed(`{"summary":"整体不错","suggestions":["多练习"]}`))
	user := uuid.New()
	h.errs.saved = []models.ErrorRecord{
		{UserID: user, Subject: "数学", KnowledgePoint: "分数", ErrorType: "计算错误", IsResolved: true},
		{UserID: user, Subject: "数学", KnowledgePoint: "小数"},
		{UserID: user, Subject: "语文", KnowledgePoint: "拼音"},
		{UserID: uuid.New(), Subject: "英语"},
	}

	res, err := h.svc.AnalyzeErrors(context.Background(), user, ReportRequest{})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "整体不错", res.Result["summary"])
	assert.Equal(t, ReportStatistics{TotalErrors: 3, ResolvedErrors: 1, Subjects: []string{"数学", "语文"}}, res.Statistics)

	assert.Equal(t, time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC), h.errs.filter.To)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), h.errs.filter.From)
	assert.Contains(t, h.gw.requests[0].Messages[1].Text, `"knowledge_point":"分数"`)
	assert.Equal(t, models.FunctionAnalyzeErrors, h.gw.requests[0].FunctionTag)

	_, err = h.svc.AnalyzeErrors(context.Background(), user, ReportRequest{
		From: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCorrectPhotoHomework(t *testing.T) {
	h := newHarness(succeed("```json\n" + `{"overall_summary":"还需努力","corrections":[` +
		`{"question":"5+3","student_answer":"9","correct_answer":"8","is_correct":false,"explanation":"进位错误","knowledge_points":["加法"]},` +
		`{"question":"2+2","student_answer":"4","correct_answer":"4","is_correct":true}` +
		`]}` + "\n```"))
	user := uuid.New()
	image := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("fake-png"))

	res, err := h.svc.CorrectPhoto(context.Background(), user, PhotoRequest{Image: image})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.ErrorRecordsSaved)
	assert.Contains(t, res.ImageURL, "photos/"+user.String()+"/2026-04-01/")

	require.Len(t, h.errs.saved, 1)
	rec := h.errs.saved[0]
	assert.Equal(t, "数学", rec.Subject)
	assert.Equal(t, "小学", rec.Grade)
	assert.Equal(t, "5+3", rec.QuestionText)
	assert.Equal(t, "作业错题", rec.ErrorType)
	assert.Equal(t, "进位错误", rec.AIAnalysis)

	req := h.gw.requests[0]
	assert.Equal(t, models.FunctionPhotoCorrection, req.FunctionTag)
	assert.True(t, provider.Multimodal(req.Messages))
	assert.Equal(t, image, req.Messages[1].Parts[0].Image)
}

func TestCorrectPhotoDegradedInventsNothing(t *testing.T) {
	h := newHarness(succeed("图片太模糊，无法识别"))
	image := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))

	res, err := h.svc.CorrectPhoto(context.Background(), uuid.New(), PhotoRequest{Image: image})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.Degraded)
	assert.Equal(t, "图片太模糊，无法识别", res.Result["raw_response"])
	assert.Nil(t, res.Result["corrections"])
	assert.Empty(t, h.errs.saved)
}

func TestCorrectPhotoQuestionModeAndErrors(t *testing.T) {
	h := newHarness(succeed(`{"question_analysis":{"final_answer":"8"}}`))
	h.archiver.err = errors.New("oss down")
	image := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))

	res, err := h.svc.CorrectPhoto(context.Background(), uuid.New(), PhotoRequest{Image: image, Type: PhotoQuestion})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.ImageURL)
	assert.Contains(t, h.gw.requests[0].Messages[0].Text, "解题专家")

	_, err = h.svc.CorrectPhoto(context.Background(), uuid.New(), PhotoRequest{Image: "%%%"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.svc.CorrectPhoto(context.Background(), uuid.New(), PhotoRequest{Image: image, Type: "essay"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTestConnection(t *testing.T) {
	h := newHarness(succeed("连接正常"))

	res, err := h.svc.TestConnection(context.Background(), uuid.Nil, "deepseek")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "连接正常", res.Reply)
	assert.InDelta(t, 1500, res.LatencyMS, 0.001)
	assert.Nil(t, h.gw.requests[0].UserID)
	assert.Equal(t, "deepseek", h.gw.requests[0].Provider)

	h.gw.resp = fail()
	res, err = h.svc.TestConnection(context.Background(), uuid.New(), "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "连接失败", res.Message)
}

func TestErrorRecordPassthrough(t *testing.T) {
	h := newHarness(nil)
	user, id := uuid.New(), uuid.New()
	resolved := false

	_, err := h.svc.ListErrorRecords(context.Background(), user, repository.ErrorRecordFilter{Subject: "数学", Resolved: &resolved})
	require.NoError(t, err)
	assert.Equal(t, "数学", h.errs.filter.Subject)

	require.NoError(t, h.svc.ResolveErrorRecord(context.Background(), user, id))
	assert.Equal(t, []uuid.UUID{id}, h.errs.resolved)
}
