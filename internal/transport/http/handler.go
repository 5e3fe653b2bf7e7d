package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"competition-service/internal/app"
	"competition-service/internal/domain"
)

// Handler exposes the competition use cases over JSON. It stays thin: parse,
// delegate, translate the error kind to a status code.
type Handler struct {
	competitions *app.CompetitionService
	attempts     *app.AttemptService
	rankings     *app.RankingService
}

func NewHandler(competitions *app.CompetitionService, attempts *app.AttemptService, rankings *app.RankingService) *Handler {
	return &Handler{competitions: competitions, attempts: attempts, rankings: rankings}
}

// Register mounts every route on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /competitions", h.createCompetition)
	mux.HandleFunc("GET /competitions", h.listCompetitions)
	mux.HandleFunc("GET /competitions/{id}", h.getCompetition)
	mux.HandleFunc("PATCH /competitions/{id}", h.updateCompetition)
	mux.HandleFunc("POST /competitions/{id}/quizzes", h.addQuiz)
	mux.HandleFunc("POST /competitions/{id}/participants", h.enroll)
	mux.HandleFunc("DELETE /competitions/{id}/participants/{participantID}", h.withdraw)
	mux.HandleFunc("GET /competitions/{id}/standings", h.standings)
	mux.HandleFunc("GET /competitions/{id}/results", h.quizBreakdown)
	mux.HandleFunc("PATCH /quizzes/{id}", h.updateQuiz)
	mux.HandleFunc("DELETE /quizzes/{id}", h.removeQuiz)
	mux.HandleFunc("GET /quizzes/{id}/answers", h.quizAnswers)
	mux.HandleFunc("POST /quizzes/{id}/attempts", h.startAttempt)
	mux.HandleFunc("POST /quizzes/{id}/attempts/{participantID}/finish", h.finishAttempt)
	mux.HandleFunc("GET /quizzes/{id}/attempts/{participantID}", h.attemptDetail)
	mux.HandleFunc("GET /quizzes/{id}/attempts/{participantID}/answers", h.attemptAnswers)
}

type competitionRequest struct {
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	CreatedBy        int64         `json:"created_by"`
	StartDate        *time.Time    `json:"start_date"`
	EndDate          *time.Time    `json:"end_date"`
	ParticipantLimit int           `json:"participant_limit"`
	CurrencyCost     *int          `json:"currency_cost"`
	TicketCost       int           `json:"ticket_cost"`
	CreditCost       int           `json:"credit_cost"`
	Quizzes          []quizRequest `json:"quizzes"`
}

type quizRequest struct {
	QuizID    int64      `json:"quiz_id"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	TimeLimit int        `json:"time_limit"`
}

type competitionPatch struct {
	Title            *string    `json:"title"`
	Description      *string    `json:"description"`
	ModifiedBy       *int64     `json:"modified_by"`
	StartDate        *time.Time `json:"start_date"`
	EndDate          *time.Time `json:"end_date"`
	ParticipantLimit *int       `json:"participant_limit"`
	CurrencyCost     *int       `json:"currency_cost"`
	TicketCost       *int       `json:"ticket_cost"`
	CreditCost       *int       `json:"credit_cost"`
	State            *string    `json:"state"`
}

type quizPatchRequest struct {
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	TimeLimit *int       `json:"time_limit"`
}

type participantRequest struct {
	ParticipantID int64 `json:"participant_id"`
}

type finishRequest struct {
	ParticipantID int64                     `json:"participant_id"`
	Answers       []domain.AnswerSubmission `json:"answers"`
}

func (h *Handler) createCompetition(w http.ResponseWriter, r *http.Request) {
	var req competitionRequest
	if !decode(w, r, &req) {
		return
	}
	in := app.CompetitionInput{
		Title:            req.Title,
		Description:      req.Description,
		CreatedBy:        req.CreatedBy,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		ParticipantLimit: req.ParticipantLimit,
		CurrencyCost:     req.CurrencyCost,
		TicketCost:       req.TicketCost,
		CreditCost:       req.CreditCost,
	}
	for _, q := range req.Quizzes {
		in.Quizzes = append(in.Quizzes, app.QuizInput(q))
	}
	comp, err := h.competitions.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comp)
}

func (h *Handler) listCompetitions(w http.ResponseWriter, r *http.Request) {
	comps, err := h.competitions.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comps)
}

func (h *Handler) getCompetition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	comp, err := h.competitions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

func (h *Handler) updateCompetition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req competitionPatch
	if !decode(w, r, &req) {
		return
	}
	upd := app.CompetitionUpdate{
		Title:            req.Title,
		Description:      req.Description,
		ModifiedBy:       req.ModifiedBy,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		ParticipantLimit: req.ParticipantLimit,
		CurrencyCost:     req.CurrencyCost,
		TicketCost:       req.TicketCost,
		CreditCost:       req.CreditCost,
	}
	if req.State != nil {
		state := domain.CompetitionState(*req.State)
		upd.State = &state
	}
	comp, err := h.competitions.Update(r.Context(), id, upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

func (h *Handler) addQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req quizRequest
	if !decode(w, r, &req) {
		return
	}
	quiz, err := h.competitions.AddQuiz(r.Context(), id, app.QuizInput(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *Handler) updateQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req quizPatchRequest
	if !decode(w, r, &req) {
		return
	}
	quiz, err := h.competitions.UpdateQuiz(r.Context(), id, domain.QuizPatch(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) removeQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.competitions.RemoveQuiz(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) enroll(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req participantRequest
	if !decode(w, r, &req) {
		return
	}
	enrollment, err := h.competitions.Enroll(r.Context(), id, req.ParticipantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, enrollment)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	participantID, ok := pathID(w, r, "participantID")
	if !ok {
		return
	}
	if err := h.competitions.Withdraw(r.Context(), id, participantID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req participantRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.attempts.Start(r.Context(), id, req.ParticipantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) finishAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	participantID, ok := pathID(w, r, "participantID")
	if !ok {
		return
	}
	var req finishRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ParticipantID != 0 && req.ParticipantID != participantID {
		writeError(w, domain.Validationf("participant id in path and body disagree"))
		return
	}
	res, err := h.attempts.Finish(r.Context(), id, participantID, req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) attemptDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	participantID, ok := pathID(w, r, "participantID")
	if !ok {
		return
	}
	detail, err := h.attempts.Detail(r.Context(), id, participantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) attemptAnswers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	participantID, ok := pathID(w, r, "participantID")
	if !ok {
		return
	}
	answers, err := h.attempts.Answers(r.Context(), id, participantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answers)
}

func (h *Handler) quizAnswers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	answers, err := h.attempts.QuizAnswers(r.Context(), id, page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answers)
}

func (h *Handler) standings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	standings, err := h.rankings.Standings(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, standings)
}

func (h *Handler) quizBreakdown(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	results, err := h.rankings.QuizBreakdown(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, domain.Validationf("invalid %s", name))
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeError(w, domain.Validationf("invalid request body"))
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsKind(err, domain.KindNotFound):
		status = http.StatusNotFound
	case domain.IsKind(err, domain.KindValidation):
		status = http.StatusBadRequest
	case domain.IsKind(err, domain.KindConflict), domain.IsKind(err, domain.KindInvalidTransition):
		status = http.StatusConflict
	case domain.IsKind(err, domain.KindOutOfWindow):
		status = http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.KindGradingUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrQuizClaimed):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
