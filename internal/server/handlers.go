package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"studylog/internal/database"
	"studylog/internal/domain"
	"studylog/internal/pipeline"
)

type handler struct {
	db  *database.Database
	svc *pipeline.Service
	log *slog.Logger
}

type checkRequest struct {
	MemberID *int64 `json:"memberId,omitempty"`
}

type postResponse struct {
	ID          int64     `json:"id"`
	MemberID    int64     `json:"memberId"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
	GUID        string    `json:"guid"`
}

type memberResultResponse struct {
	MemberID int64         `json:"memberId"`
	Success  bool          `json:"success"`
	Post     *postResponse `json:"post,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type checkResponse struct {
	Results []memberResultResponse `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) checkStudy(c echo.Context) error {
	ctx := c.Request().Context()

	studyID, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "잘못된 스터디 ID입니다."})
	}

	var req checkRequest
	if err = c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "잘못된 요청 본문입니다."})
	}

	study, err := h.db.GetStudy(ctx, studyID)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to load study",
			"error", err,
			"studyID", studyID)

		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "스터디 정보를 조회할 수 없습니다."})
	}
	if study == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "스터디 정보를 찾을 수 없습니다."})
	}

	var members []domain.Member
	if req.MemberID != nil {
		member, memberErr := h.db.GetMember(ctx, *req.MemberID)
		if memberErr != nil {
			h.log.ErrorContext(ctx, "Failed to load member",
				"error", memberErr,
				"memberID", *req.MemberID)

			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "멤버 정보를 조회할 수 없습니다."})
		}
		if member == nil {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "체크할 멤버 정보를 찾을 수 없습니다."})
		}

		members = []domain.Member{*member}
	} else {
		members, err = h.db.GetStudyMembers(ctx, studyID)
		if err != nil {
			h.log.ErrorContext(ctx, "Failed to load study members",
				"error", err,
				"studyID", studyID)

			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "멤버 목록을 조회할 수 없습니다."})
		}
	}

	results := h.svc.CheckStudy(ctx, study, members)

	return c.JSON(http.StatusOK, checkResponse{Results: toResultResponses(results)})
}

func (h *handler) resumeRun(c echo.Context) error {
	ctx := c.Request().Context()

	runID, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "잘못된 실행 ID입니다."})
	}

	run, err := h.db.GetPipelineRun(ctx, runID)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to load pipeline run",
			"error", err,
			"runID", runID)

		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "실행 정보를 조회할 수 없습니다."})
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "실행 정보를 찾을 수 없습니다."})
	}

	post, err := h.svc.Resume(ctx, runID)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to resume pipeline run",
			"error", err,
			"runID", runID)

		return c.JSON(statusForError(err), errorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, toPostResponse(post))
}

// statusForError maps a propagated pipeline error to an HTTP status. The
// mapping lives here so the pipeline stays transport-agnostic.
func statusForError(err error) int {
	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) {
		switch providerErr.Kind {
		case domain.ProviderUnauthorized:
			return http.StatusUnauthorized
		case domain.ProviderNotFound:
			return http.StatusNotFound
		case domain.ProviderRateLimited:
			return http.StatusTooManyRequests
		}
	}

	return http.StatusInternalServerError
}

func toResultResponses(results []domain.MemberResult) []memberResultResponse {
	responses := make([]memberResultResponse, 0, len(results))

	for _, r := range results {
		resp := memberResultResponse{
			MemberID: r.MemberID,
			Success:  r.Success,
		}

		if r.Post != nil {
			resp.Post = toPostResponse(r.Post)
		}
		if r.Err != nil {
			resp.Error = r.Err.Error()
		}

		responses = append(responses, resp)
	}

	return responses
}

func toPostResponse(post *domain.BlogPost) *postResponse {
	return &postResponse{
		ID:          post.ID,
		MemberID:    post.MemberID,
		Title:       post.Title,
		URL:         post.URL,
		PublishedAt: post.PublishedAt,
		GUID:        post.GUID,
	}
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
