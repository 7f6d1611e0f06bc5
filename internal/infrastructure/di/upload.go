package di

import (
	"github.com/webcoletivo/coletivosend/internal/job"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload/command"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload/query"
)

// UploadUseCases はUpload関連のUseCaseを保持します
type UploadUseCases struct {
	// Commands
	InitiateUpload *command.InitiateUploadCommand
	ReportPart     *command.ReportPartCommand
	UploadPart     *command.UploadPartCommand
	CompleteUpload *command.CompleteUploadCommand
	AbortUpload    *command.AbortUploadCommand
	SweepExpired   *command.SweepExpiredCommand

	// Queries
	GetProgress         *query.GetProgressQuery
	ListUploadedParts   *query.ListUploadedPartsQuery
	FindActiveSession   *query.FindActiveSessionQuery
	GetPartUploadTarget *query.GetPartUploadTargetQuery

	// Jobs
	ExpiryJob *job.UploadExpiryJob
}

// NewUploadUseCases は新しいUploadUseCasesを作成します
func NewUploadUseCases(c *Container) *UploadUseCases {
	reportPart := command.NewReportPartCommand(c.UploadSessionRepo, c.UploadPartRepo, c.TxManager)
	sweep := command.NewSweepExpiredCommand(c.UploadSessionRepo, c.Storage, c.TxManager, c.Policy.SweepBatchSize)

	return &UploadUseCases{
		InitiateUpload: command.NewInitiateUploadCommand(c.UploadSessionRepo, c.Storage, c.FileTypeValidator, c.Policy),
		ReportPart:     reportPart,
		UploadPart:     command.NewUploadPartCommand(c.UploadSessionRepo, c.Storage, reportPart),
		CompleteUpload: command.NewCompleteUploadCommand(c.UploadSessionRepo, c.UploadPartRepo, c.Storage, c.TxManager),
		AbortUpload:    command.NewAbortUploadCommand(c.UploadSessionRepo, c.Storage, c.TxManager),
		SweepExpired:   sweep,

		GetProgress:         query.NewGetProgressQuery(c.UploadSessionRepo, c.UploadPartRepo),
		ListUploadedParts:   query.NewListUploadedPartsQuery(c.UploadSessionRepo, c.UploadPartRepo),
		FindActiveSession:   query.NewFindActiveSessionQuery(c.UploadSessionRepo, c.UploadPartRepo),
		GetPartUploadTarget: query.NewGetPartUploadTargetQuery(c.UploadSessionRepo, c.Storage, c.Policy),

		ExpiryJob: job.NewUploadExpiryJob(sweep),
	}
}
