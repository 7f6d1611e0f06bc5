package handler

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/webcoletivo/coletivosend/internal/interface/dto/request"
	"github.com/webcoletivo/coletivosend/internal/interface/dto/response"
	"github.com/webcoletivo/coletivosend/internal/interface/middleware"
	"github.com/webcoletivo/coletivosend/internal/interface/presenter"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload/command"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload/query"
	"github.com/webcoletivo/coletivosend/pkg/apperror"
)

// UploadCommands はUploadHandlerが使用するコマンド群です
type UploadCommands struct {
	Initiate   *command.InitiateUploadCommand
	ReportPart *command.ReportPartCommand
	UploadPart *command.UploadPartCommand
	Complete   *command.CompleteUploadCommand
	Abort      *command.AbortUploadCommand
}

// UploadQueries はUploadHandlerが使用するクエリ群です
type UploadQueries struct {
	GetProgress   *query.GetProgressQuery
	ListParts     *query.ListUploadedPartsQuery
	FindActive    *query.FindActiveSessionQuery
	GetPartTarget *query.GetPartUploadTargetQuery
}

// UploadHandler はチャンクアップロード関連のHTTPハンドラーです
type UploadHandler struct {
	commands UploadCommands
	queries  UploadQueries
}

// NewUploadHandler は新しいUploadHandlerを作成します
func NewUploadHandler(commands UploadCommands, queries UploadQueries) *UploadHandler {
	return &UploadHandler{commands: commands, queries: queries}
}

// InitiateUpload はアップロードセッションを開始します
// POST /api/v1/uploads
func (h *UploadHandler) InitiateUpload(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	var req request.InitiateUploadRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewInvalidRequestError("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	output, err := h.commands.Initiate.Execute(c.Request().Context(), command.InitiateUploadInput{
		OwnerID:    userID,
		TransferID: uuid.MustParse(req.TransferID),
		FileID:     uuid.MustParse(req.FileID),
		FileName:   req.FileName,
		FileSize:   req.FileSize,
		MimeType:   req.MimeType,
	})
	if err != nil {
		return err
	}

	return presenter.Created(c, response.ToInitiateUploadResponse(output))
}

// LookupUpload は転送IDとファイルIDから進行中のセッションを検索します
// GET /api/v1/uploads/lookup?transferId=&fileId=
func (h *UploadHandler) LookupUpload(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	var req request.LookupUploadRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidationError("invalid query parameters", nil)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	output, err := h.queries.FindActive.Execute(c.Request().Context(), query.FindActiveSessionInput{
		OwnerID:    userID,
		TransferID: uuid.MustParse(req.TransferID),
		FileID:     uuid.MustParse(req.FileID),
	})
	if err != nil {
		return err
	}

	return presenter.OK(c, response.ToProgressResponse(output.Progress))
}

// GetProgress はアップロード進捗を取得します
// GET /api/v1/uploads/:sessionId
func (h *UploadHandler) GetProgress(c echo.Context) error {
	userID, sessionID, err := sessionParams(c)
	if err != nil {
		return err
	}

	output, err := h.queries.GetProgress.Execute(c.Request().Context(), query.GetProgressInput{
		SessionID: sessionID,
		UserID:    userID,
	})
	if err != nil {
		return err
	}

	return presenter.OK(c, response.ToProgressResponse(output.Progress))
}

// ListParts はアップロード済みパーツ一覧を取得します
// GET /api/v1/uploads/:sessionId/parts
func (h *UploadHandler) ListParts(c echo.Context) error {
	userID, sessionID, err := sessionParams(c)
	if err != nil {
		return err
	}

	output, err := h.queries.ListParts.Execute(c.Request().Context(), query.ListUploadedPartsInput{
		SessionID: sessionID,
		UserID:    userID,
	})
	if err != nil {
		return err
	}

	return presenter.OK(c, response.ToUploadedPartsResponse(output))
}

// GetPartTarget はパーツのアップロード先を取得します
// GET /api/v1/uploads/:sessionId/parts/:partNumber/target
func (h *UploadHandler) GetPartTarget(c echo.Context) error {
	userID, sessionID, err := sessionParams(c)
	if err != nil {
		return err
	}
	partNumber, err := partNumberParam(c)
	if err != nil {
		return err
	}

	output, err := h.queries.GetPartTarget.Execute(c.Request().Context(), query.GetPartUploadTargetInput{
		SessionID:  sessionID,
		UserID:     userID,
		PartNumber: partNumber,
	})
	if err != nil {
		return err
	}

	return presenter.OK(c, response.ToPartTargetResponse(output))
}

// UploadPart はパーツ本体を受け取りストレージへ転送します
// PUT /api/v1/uploads/:sessionId/parts/:partNumber
func (h *UploadHandler) UploadPart(c echo.Context) error {
	userID, sessionID, err := sessionParams(c)
	if err != nil {
		return err
	}
	partNumber, err := partNumberParam(c)
	if err != nil {
		return err
	}

	req := c.Request()
	output, err := h.commands.UploadPart.Execute(req.Context(), command.UploadPartInput{
		SessionID:  sessionID,
		UserID:     userID,
		PartNumber: partNumber,
		Body:       req.Body,
		Size:       req.ContentLength,
	})
	if err != nil {
		return err
	}

	c.Response().Header().Set("ETag", output.ETag)
	return presenter.OK(c, response.ToPartReportedResponse(output.ReportPartOutput, output.ETag))
}

// ReportPart は直接アップロードしたパーツの完了を報告します
// POST /api/v1/uploads/:sessionId/parts
func (h *UploadHandler) ReportPart(c echo.Context) error {
	userID, sessionID, err := sessionParams(c)
	if err != nil {
		return err
	}

	var req request.ReportPartRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewInvalidRequestError("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	output, err := h.commands.ReportPart.Execute(c.Request().Context(), command.ReportPartInput{
		SessionID:  sessionID,
		UserID:     userID,
		PartNumber: req.PartNumber,
		ETag:       req.ETag,
		Size:       req.Size,
	})
	if err != nil {
		return err
	}

	return presenter.OK(c, response.ToPartReportedResponse(output, ""))
}

// CompleteUpload はアップロードを完了します
// POST /api/v1/uploads/:sessionId/complete
func (h *UploadHandler) CompleteUpload(c echo.Context) error {
	userID, sessionID, err := sessionParams(c)
	if err != nil {
		return err
	}

	output, err := h.commands.Complete.Execute(c.Request().Context(), command.CompleteUploadInput{
		SessionID: sessionID,
		UserID:    userID,
	})
	if err != nil {
		return err
	}

	return presenter.OK(c, response.ToCompleteUploadResponse(output))
}

// AbortUpload はアップロードを中断します
// DELETE /api/v1/uploads/:sessionId
func (h *UploadHandler) AbortUpload(c echo.Context) error {
	userID, sessionID, err := sessionParams(c)
	if err != nil {
		return err
	}

	output, err := h.commands.Abort.Execute(c.Request().Context(), command.AbortUploadInput{
		SessionID: sessionID,
		UserID:    userID,
	})
	if err != nil {
		return err
	}

	res := response.AbortUploadResponse{SessionID: output.SessionID.String(), Aborted: output.Aborted}
	if !output.Aborted {
		return presenter.OKWithMessage(c, res, "session was already closed")
	}
	return presenter.OK(c, res)
}

func requireUser(c echo.Context) (uuid.UUID, error) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return uuid.Nil, apperror.NewUnauthorizedError("authentication required")
	}
	return userID, nil
}

func sessionParams(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	userID, err := requireUser(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		return uuid.Nil, uuid.Nil, apperror.NewValidationError("invalid session ID", nil)
	}
	return userID, sessionID, nil
}

func partNumberParam(c echo.Context) (int, error) {
	n, err := strconv.Atoi(c.Param("partNumber"))
	if err != nil || n < 1 {
		return 0, apperror.NewValidationError("invalid part number", []apperror.FieldError{
			{Field: "partNumber", Message: "must be a positive integer"},
		})
	}
	return n, nil
}
