// Package apitest runs an in-process stand-in for the remote practice API.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/sat-prep/web/internal/models"
)

type Submission struct {
	Request        models.SubmitResultRequest
	IdempotencyKey string
}

// Server records every write it receives. Fields may be changed between
// requests under Lock/Unlock.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	Email       string
	Password    string
	SessionData string
	AccessToken string

	Profile     models.Profile
	Performance models.Performance
	Questions   []models.Question
	Content     map[string]models.QuestionContent

	ReviewSuccess bool
	FailSubmits   int
	FailReviews   int

	Submissions    []Submission
	ReviewOps      []models.MarkReviewRequest
	ContentFetches map[string]int
	QuestionLists  int
}

func New() *Server {
	s := &Server{
		Email:          "student@example.com",
		Password:       "secret",
		SessionData:    "session-token",
		AccessToken:    "access-token",
		Content:        make(map[string]models.QuestionContent),
		ContentFetches: make(map[string]int),
		ReviewSuccess:  true,
	}

	r := mux.NewRouter()
	r.HandleFunc("/login", s.login).Methods(http.MethodPost)
	r.HandleFunc("/getProfile", s.authed(s.profile)).Methods(http.MethodPost)
	r.HandleFunc("/performance", s.authed(s.performance)).Methods(http.MethodPost)
	r.HandleFunc("/getQuestions", s.authed(s.questions)).Methods(http.MethodPost)
	r.HandleFunc("/question/", s.authed(s.question)).Methods(http.MethodPost)
	r.HandleFunc("/submitResult", s.authed(s.submit)).Methods(http.MethodPost)
	r.HandleFunc("/markAsReview", s.authed(s.markReview)).Methods(http.MethodPost)

	s.Server = httptest.NewServer(r)
	return s
}

func (s *Server) Lock()   { s.mu.Lock() }
func (s *Server) Unlock() { s.mu.Unlock() }

// AddMCQ registers a four option multiple choice item whose key is option
// index correct.
func (s *Server) AddMCQ(externalID string, difficulty models.Difficulty, class, skill string, correct int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts := make([]models.AnswerOption, 4)
	for i := range opts {
		opts[i] = models.AnswerOption{ID: externalID + "-opt" + string(rune('a'+i)), Content: "choice " + string(rune('A'+i))}
	}
	s.Content[externalID] = models.QuestionContent{
		ExternalID:   externalID,
		QuestionType: models.QuestionMCQ,
		QuestionInfo: models.QuestionInfo{
			Stimulus:      "<p>stimulus " + externalID + "</p>",
			Stem:          "<p>stem " + externalID + "</p>",
			AnswerOptions: opts,
			Keys:          []string{opts[correct].ID},
			Rationale:     "because " + opts[correct].Content,
		},
	}
	s.addListing(externalID, difficulty, class, skill)
}

// AddSPR registers a free response item.
func (s *Server) AddSPR(externalID string, difficulty models.Difficulty, class, skill string, answers ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Content[externalID] = models.QuestionContent{
		ExternalID:   externalID,
		QuestionType: models.QuestionSPR,
		QuestionInfo: models.QuestionInfo{
			Stem:          "<p>solve " + externalID + "</p>",
			CorrectAnswer: answers,
			Rationale:     "arithmetic",
		},
	}
	s.addListing(externalID, difficulty, class, skill)
}

func (s *Server) addListing(externalID string, difficulty models.Difficulty, class, skill string) {
	s.Questions = append(s.Questions, models.Question{
		ID:               len(s.Questions) + 1,
		Status:           "active",
		QuestionCategory: "",
		ExternalID:       externalID,
		QuestionInfo: models.QuestionMeta{
			ExternalID:   externalID,
			Difficulty:   difficulty,
			PrimaryClass: class,
			SkillCode:    strings.ToUpper(strings.ReplaceAll(skill, " ", "_")),
			SkillDesc:    skill,
		},
	})
}

func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		want := "Bearer " + s.SessionData
		s.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Email != s.Email || req.Password != s.Password {
		writeJSON(w, http.StatusUnauthorized, models.LoginResponse{Auth: false, Error: "Invalid email or password"})
		return
	}
	writeJSON(w, http.StatusOK, models.LoginResponse{Auth: true, SessionData: s.SessionData, AccessToken: s.AccessToken})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.Profile)
}

func (s *Server) performance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.Performance)
}

func (s *Server) questions(w http.ResponseWriter, r *http.Request) {
	var req models.GetQuestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QuestionLists++

	classes := make(map[string]bool)
	for _, c := range req.PrimaryClassCD {
		classes[c] = true
	}
	out := []models.Question{}
	for _, q := range s.Questions {
		if len(classes) == 0 || classes[q.QuestionInfo.PrimaryClass] {
			q.QuestionCategory = req.QuestionCategory
			out = append(out, q)
		}
	}
	writeJSON(w, http.StatusOK, models.GetQuestionsResponse{Count: len(out), Questions: out})
}

func (s *Server) question(w http.ResponseWriter, r *http.Request) {
	var req models.GetQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ContentFetches[req.ExternalID]++
	q, ok := s.Content[req.ExternalID]
	if !ok {
		writeJSON(w, http.StatusOK, []models.QuestionContent{})
		return
	}
	writeJSON(w, http.StatusOK, []models.QuestionContent{q})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSubmits > 0 {
		s.FailSubmits--
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "try later"})
		return
	}
	s.Submissions = append(s.Submissions, Submission{Request: req, IdempotencyKey: r.Header.Get("Idempotency-Key")})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) markReview(w http.ResponseWriter, r *http.Request) {
	var req models.MarkReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReviews > 0 {
		s.FailReviews--
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream"})
		return
	}
	s.ReviewOps = append(s.ReviewOps, req)
	if !s.ReviewSuccess {
		writeJSON(w, http.StatusOK, models.MarkReviewResponse{Success: false, Message: "review list is full"})
		return
	}
	writeJSON(w, http.StatusOK, models.MarkReviewResponse{Success: true})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
