package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/sankofa-edu/sankofa/internal/i18n"
	"github.com/sankofa-edu/sankofa/internal/model"
	"github.com/sankofa-edu/sankofa/internal/quiz"
	"github.com/sankofa-edu/sankofa/internal/store"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestHandler(t *testing.T, cfg model.ServerConfig) (*Handler, *store.Store) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, nil, cfg), s
}

func newTestServer(t *testing.T, cfg model.ServerConfig) (*httptest.Server, *store.Store) {
	t.Helper()
	h, s := newTestHandler(t, cfg)
	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, s
}

func defaultConfig() model.ServerConfig {
	return model.ServerConfig{
		DefaultTimeLimit: 60,
		DailyQuestions:   5,
		Shuffle:          true,
	}
}

// apiClient drives the JSON API through a cookie jar, tracking the rotating
// CSRF token the way a browser client would.
type apiClient struct {
	t    *testing.T
	base string
	http *http.Client
	csrf string
}

func newAPIClient(t *testing.T, srv *httptest.Server) *apiClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}
	c := &apiClient{t: t, base: srv.URL, http: &http.Client{Jar: jar}}
	// Any GET issues a CSRF cookie, even before login.
	resp := c.get("/api/profile")
	resp.Body.Close()
	return c
}

func (c *apiClient) updateCSRF(resp *http.Response) {
	for _, ck := range resp.Cookies() {
		if ck.Name == csrfCookieName && ck.Value != "" {
			c.csrf = ck.Value
		}
	}
}

func (c *apiClient) get(path string) *http.Response {
	c.t.Helper()
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		c.t.Fatalf("GET %s: %v", path, err)
	}
	c.updateCSRF(resp)
	return resp
}

func (c *apiClient) post(path string, body any) *http.Response {
	c.t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		c.t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(csrfHeaderName, c.csrf)
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("POST %s: %v", path, err)
	}
	c.updateCSRF(resp)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (c *apiClient) register(username, gradeLevel string) {
	c.t.Helper()
	resp := c.post("/api/auth/register", registerRequest{
		Username:   username,
		Password:   "secret123",
		GradeLevel: gradeLevel,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register returned %d", resp.StatusCode)
	}
}

func seedQuestions(t *testing.T, s *store.Store, subject, grade string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := s.InsertQuestion(model.Question{
			Subject:    subject,
			GradeLevel: grade,
			Prompt:     fmt.Sprintf("%s question %d", subject, i),
			Choices:    map[string]string{"a": "right", "b": "wrong"},
			Answer:     "a",
		})
		if err != nil {
			t.Fatalf("failed to seed question: %v", err)
		}
	}
}

func TestRegisterLoginProfile(t *testing.T) {
	srv, _ := newTestServer(t, defaultConfig())
	c := newAPIClient(t, srv)
	c.register("ama", "JHS 1")

	var profile map[string]any
	resp := c.get("/api/profile")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile returned %d", resp.StatusCode)
	}
	decodeBody(t, resp, &profile)
	if profile["username"] != "ama" {
		t.Errorf("username = %v, want ama", profile["username"])
	}
	if profile["xp"].(float64) != 0 || profile["coins"].(float64) != 0 {
		t.Errorf("new user should start with zero xp and coins, got %v/%v", profile["xp"], profile["coins"])
	}

	resp = c.post("/api/auth/logout", struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout returned %d", resp.StatusCode)
	}

	resp = c.get("/api/profile")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("profile after logout returned %d, want 401", resp.StatusCode)
	}

	resp = c.post("/api/auth/login", loginRequest{Username: "ama", Password: "secret123"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("login returned %d, want 200", resp.StatusCode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv, _ := newTestServer(t, defaultConfig())
	c := newAPIClient(t, srv)
	c.register("kofi", "JHS 2")

	resp := c.post("/api/auth/logout", struct{}{})
	resp.Body.Close()

	resp = c.post("/api/auth/login", loginRequest{Username: "kofi", Password: "wrong"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password returned %d, want 401", resp.StatusCode)
	}

	resp = c.post("/api/auth/login", loginRequest{Username: "nobody", Password: "secret123"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unknown user returned %d, want 401", resp.StatusCode)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	srv, _ := newTestServer(t, defaultConfig())
	c := newAPIClient(t, srv)
	c.register("abena", "JHS 1")

	resp := c.post("/api/auth/register", registerRequest{Username: "abena", Password: "other"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register returned %d, want 409", resp.StatusCode)
	}
}

func TestCSRFRequiredOnPosts(t *testing.T) {
	srv, _ := newTestServer(t, defaultConfig())

	// No cookie, no header.
	resp, err := http.Post(srv.URL+"/api/auth/login", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("post without csrf returned %d, want 403", resp.StatusCode)
	}

	// Cookie present but header missing.
	c := newAPIClient(t, srv)
	token := c.csrf
	c.csrf = ""
	resp = c.post("/api/auth/login", loginRequest{Username: "x", Password: "y"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("post without csrf header returned %d, want 403", resp.StatusCode)
	}

	// Wrong header value.
	c.csrf = token + "tampered"
	resp = c.post("/api/auth/login", loginRequest{Username: "x", Password: "y"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("post with bad csrf returned %d, want 403", resp.StatusCode)
	}
}

func TestStartExamInvalidMode(t *testing.T) {
	srv, _ := newTestServer(t, defaultConfig())
	c := newAPIClient(t, srv)
	c.register("yaw", "JHS 1")

	resp := c.post("/api/exams/", startExamRequest{Mode: "speedrun"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid mode returned %d, want 400", resp.StatusCode)
	}
}

func TestStartExamEmptyBank(t *testing.T) {
	srv, _ := newTestServer(t, defaultConfig())
	c := newAPIClient(t, srv)
	c.register("esi", "JHS 1")

	resp := c.post("/api/exams/", startExamRequest{Mode: "practice", Subject: "Mathematics"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("empty bank returned %d, want 404", resp.StatusCode)
	}
}

func TestPracticeFlow(t *testing.T) {
	srv, s := newTestServer(t, defaultConfig())
	seedQuestions(t, s, "Mathematics", "JHS 1", 3)
	c := newAPIClient(t, srv)
	c.register("akosua", "JHS 1")

	var snap examSnapshot
	resp := c.post("/api/exams/", startExamRequest{Mode: "practice", Subject: "Mathematics"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start returned %d", resp.StatusCode)
	}
	decodeBody(t, resp, &snap)
	if snap.Phase != quiz.PhaseActive {
		t.Errorf("phase = %q, want active", snap.Phase)
	}
	if len(snap.Questions) != 3 {
		t.Fatalf("got %d questions, want 3", len(snap.Questions))
	}
	if snap.Timed {
		t.Error("practice session should be untimed")
	}

	// Answer all questions correctly; the seeded key is always "a".
	for i := range snap.Questions {
		resp := c.post("/api/exams/"+snap.ID+"/answers", answerRequest{Index: i, Value: "a"})
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("answer %d returned %d", i, resp.StatusCode)
		}
	}

	resp = c.post("/api/exams/"+snap.ID+"/navigate", navigateRequest{Index: 2})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("navigate returned %d", resp.StatusCode)
	}
	resp = c.post("/api/exams/"+snap.ID+"/navigate", navigateRequest{Index: 7})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("out-of-range navigate returned %d, want 400", resp.StatusCode)
	}

	var report submitResponse
	resp = c.post("/api/exams/"+snap.ID+"/submit", struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit returned %d", resp.StatusCode)
	}
	decodeBody(t, resp, &report)
	if report.ObjectiveScore != 3 || report.ObjectiveTotal != 3 {
		t.Errorf("score = %d/%d, want 3/3", report.ObjectiveScore, report.ObjectiveTotal)
	}
	// Flat practice rewards: 10 XP and 5 coins per correct answer.
	if report.XPAwarded != 30 || report.CoinsAwarded != 15 {
		t.Errorf("rewards = %d XP / %d coins, want 30/15", report.XPAwarded, report.CoinsAwarded)
	}

	var profile map[string]any
	resp = c.get("/api/profile")
	decodeBody(t, resp, &profile)
	if profile["xp"].(float64) != 30 || profile["coins"].(float64) != 15 {
		t.Errorf("persisted rewards = %v XP / %v coins, want 30/15", profile["xp"], profile["coins"])
	}
	history := profile["history"].([]any)
	if len(history) != 1 {
		t.Fatalf("got %d history rows, want 1", len(history))
	}
	row := history[0].(map[string]any)
	if row["mode"] != "practice" || row["score"].(float64) != 3 {
		t.Errorf("history row = %v", row)
	}
}

func TestSubmitIdempotent(t *testing.T) {
	srv, s := newTestServer(t, defaultConfig())
	seedQuestions(t, s, "Science", "JHS 2", 2)
	c := newAPIClient(t, srv)
	c.register("kweku", "JHS 2")

	var snap examSnapshot
	resp := c.post("/api/exams/", startExamRequest{Mode: "practice", Subject: "Science"})
	decodeBody(t, resp, &snap)

	resp = c.post("/api/exams/"+snap.ID+"/answers", answerRequest{Index: 0, Value: "a"})
	resp.Body.Close()

	var first, second submitResponse
	resp = c.post("/api/exams/"+snap.ID+"/submit", struct{}{})
	decodeBody(t, resp, &first)
	resp = c.post("/api/exams/"+snap.ID+"/submit", struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second submit returned %d", resp.StatusCode)
	}
	decodeBody(t, resp, &second)
	if first.ObjectiveScore != second.ObjectiveScore || first.XPAwarded != second.XPAwarded {
		t.Errorf("repeated submit changed the report: %+v vs %+v", first.Report, second.Report)
	}

	// Rewards must be granted once.
	var profile map[string]any
	resp = c.get("/api/profile")
	decodeBody(t, resp, &profile)
	if profile["xp"].(float64) != float64(first.XPAwarded) {
		t.Errorf("xp = %v, want %d (granted once)", profile["xp"], first.XPAwarded)
	}
	if len(profile["history"].([]any)) != 1 {
		t.Errorf("history rows = %d, want 1", len(profile["history"].([]any)))
	}
}

func TestAnswerAfterSubmit(t *testing.T) {
	srv, s := newTestServer(t, defaultConfig())
	seedQuestions(t, s, "Computing", "JHS 1", 2)
	c := newAPIClient(t, srv)
	c.register("adjoa", "JHS 1")

	var snap examSnapshot
	resp := c.post("/api/exams/", startExamRequest{Mode: "practice", Subject: "Computing"})
	decodeBody(t, resp, &snap)
	resp = c.post("/api/exams/"+snap.ID+"/submit", struct{}{})
	resp.Body.Close()

	resp = c.post("/api/exams/"+snap.ID+"/answers", answerRequest{Index: 0, Value: "a"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("answer after submit returned %d, want 409", resp.StatusCode)
	}
}

func TestSnapshotHidesAnswerKey(t *testing.T) {
	srv, s := newTestServer(t, defaultConfig())
	seedQuestions(t, s, "Mathematics", "JHS 1", 1)
	c := newAPIClient(t, srv)
	c.register("efua", "JHS 1")

	resp := c.post("/api/exams/", startExamRequest{Mode: "practice", Subject: "Mathematics"})
	var raw map[string]any
	decodeBody(t, resp, &raw)
	questions := raw["questions"].([]any)
	q := questions[0].(map[string]any)
	if _, leaked := q["answer"]; leaked {
		t.Error("snapshot leaks the answer key")
	}
}

func TestExamOwnership(t *testing.T) {
	srv, s := newTestServer(t, defaultConfig())
	seedQuestions(t, s, "Mathematics", "JHS 1", 1)

	owner := newAPIClient(t, srv)
	owner.register("owner", "JHS 1")
	var snap examSnapshot
	resp := owner.post("/api/exams/", startExamRequest{Mode: "practice", Subject: "Mathematics"})
	decodeBody(t, resp, &snap)

	intruder := newAPIClient(t, srv)
	intruder.register("intruder", "JHS 1")
	resp = intruder.get("/api/exams/" + snap.ID)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign exam returned %d, want 404", resp.StatusCode)
	}
}

func TestDailyGate(t *testing.T) {
	srv, s := newTestServer(t, defaultConfig())
	for i := 0; i < 3; i++ {
		_, err := s.InsertQuestion(model.Question{
			Subject:    "Mathematics",
			GradeLevel: "JHS 1",
			Prompt:     fmt.Sprintf("daily %d", i),
			Choices:    map[string]string{"a": "right", "b": "wrong"},
			Answer:     "a",
			IsDaily:    true,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	c := newAPIClient(t, srv)
	c.register("afia", "JHS 1")

	var snap examSnapshot
	resp := c.post("/api/exams/", startExamRequest{Mode: "daily"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("daily start returned %d", resp.StatusCode)
	}
	decodeBody(t, resp, &snap)

	var report submitResponse
	resp = c.post("/api/exams/"+snap.ID+"/submit", struct{}{})
	decodeBody(t, resp, &report)
	// Completion bonus is granted regardless of score.
	if report.XPAwarded < quiz.DailyBonusXP {
		t.Errorf("daily xp = %d, want at least %d", report.XPAwarded, quiz.DailyBonusXP)
	}

	resp = c.post("/api/exams/", startExamRequest{Mode: "daily"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second daily returned %d, want 409", resp.StatusCode)
	}
}

func TestBeceGradeGate(t *testing.T) {
	srv, s := newTestServer(t, defaultConfig())
	for i := 0; i < 2; i++ {
		_, err := s.InsertQuestion(model.Question{
			Subject:    "Mathematics",
			GradeLevel: "JHS 3",
			Prompt:     fmt.Sprintf("2019 paper q%d", i),
			Choices:    map[string]string{"a": "right", "b": "wrong"},
			Answer:     "a",
			Year:       2019,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	junior := newAPIClient(t, srv)
	junior.register("junior", "JHS 1")
	resp := junior.post("/api/exams/", startExamRequest{Mode: "bece", Subject: "Mathematics", Year: 2019})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("junior bece returned %d, want 403", resp.StatusCode)
	}

	senior := newAPIClient(t, srv)
	senior.register("senior", "JHS 3")
	var snap examSnapshot
	resp = senior.post("/api/exams/", startExamRequest{Mode: "bece", Subject: "Mathematics", Year: 2019})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("senior bece returned %d", resp.StatusCode)
	}
	decodeBody(t, resp, &snap)
	if !snap.Timed {
		t.Error("bece session should be timed")
	}
	if len(snap.Questions) != 2 {
		t.Errorf("got %d questions, want the whole paper (2)", len(snap.Questions))
	}
}

func TestSubjectsEndpoint(t *testing.T) {
	srv, s := newTestServer(t, defaultConfig())
	seedQuestions(t, s, "Mathematics", "JHS 1", 1)
	_, err := s.InsertQuestion(model.Question{
		Subject:    "Mathematics",
		GradeLevel: "JHS 3",
		Prompt:     "past paper",
		Choices:    map[string]string{"a": "x", "b": "y"},
		Answer:     "a",
		Year:       2020,
	})
	if err != nil {
		t.Fatal(err)
	}
	c := newAPIClient(t, srv)
	c.register("ato", "JHS 1")

	var subjects []struct {
		Subject    string `json:"subject"`
		PaperYears []int  `json:"paper_years"`
	}
	resp := c.get("/api/subjects")
	decodeBody(t, resp, &subjects)
	if len(subjects) != 1 || subjects[0].Subject != "Mathematics" {
		t.Fatalf("subjects = %+v", subjects)
	}
	if len(subjects[0].PaperYears) != 1 || subjects[0].PaperYears[0] != 2020 {
		t.Errorf("paper years = %v, want [2020]", subjects[0].PaperYears)
	}
}

func TestTimedAutoSubmit(t *testing.T) {
	cfg := defaultConfig()
	cfg.DefaultTimeLimit = 1
	srv, s := newTestServer(t, cfg)
	seedQuestions(t, s, "Mathematics", "JHS 1", 2)
	c := newAPIClient(t, srv)
	c.register("kodwo", "JHS 1")

	var snap examSnapshot
	resp := c.post("/api/exams/", startExamRequest{Mode: "exam", Subject: "Mathematics"})
	decodeBody(t, resp, &snap)
	if !snap.Timed || snap.Remaining != 1 {
		t.Fatalf("remaining = %d, want 1", snap.Remaining)
	}

	deadline := time.After(5 * time.Second)
	for snap.Phase != quiz.PhaseSubmitted {
		select {
		case <-deadline:
			t.Fatal("session was not auto-submitted before the deadline")
		case <-time.After(200 * time.Millisecond):
		}
		resp := c.get("/api/exams/" + snap.ID)
		decodeBody(t, resp, &snap)
	}
	if snap.Report == nil {
		t.Fatal("submitted snapshot carries no report")
	}

	// Manual submit after expiry returns the same report, rewards stay single.
	var report submitResponse
	resp = c.post("/api/exams/"+snap.ID+"/submit", struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit after expiry returned %d", resp.StatusCode)
	}
	decodeBody(t, resp, &report)
	if report.XPAwarded != snap.Report.XPAwarded {
		t.Errorf("report changed after expiry: %d vs %d", report.XPAwarded, snap.Report.XPAwarded)
	}

	var profile map[string]any
	resp = c.get("/api/profile")
	decodeBody(t, resp, &profile)
	if len(profile["history"].([]any)) != 1 {
		t.Errorf("history rows = %d, want 1", len(profile["history"].([]any)))
	}
}

func TestRegistryPurge(t *testing.T) {
	reg := newExamRegistry()
	old := &activeExam{startedAt: time.Now().Add(-2 * time.Hour)}
	fresh := &activeExam{startedAt: time.Now()}
	oldID := reg.add(old)
	freshID := reg.add(fresh)

	if n := reg.PurgeStale(time.Hour); n != 1 {
		t.Errorf("purged %d sessions, want 1", n)
	}
	if reg.get(oldID) != nil {
		t.Error("stale session survived the purge")
	}
	if reg.get(freshID) == nil {
		t.Error("fresh session was purged")
	}
}
