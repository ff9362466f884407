package batch

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"school-identity-onboarding/internal/importfile"
	"school-identity-onboarding/internal/logger"
	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/internal/storage"
	"school-identity-onboarding/pkg/errors"

	"github.com/rs/zerolog"
)

type IdentityService interface {
	SubmitBulkImport(ctx context.Context, file model.ImportFile, establishmentID string) (string, error)
	CommitImportBatch(ctx context.Context, batchID string) error
}

type ProvisioningService interface {
	CreateProvisioningBatch(ctx context.Context, sourceIdentityBatchID string) (string, error)
	RunProvisioningBatch(ctx context.Context, batchID string) error
}

type FileValidator interface {
	Validate(ctx context.Context, file model.ImportFile, role model.Role) importfile.Report
}

type History interface {
	Record(ctx context.Context, entry *model.HistoryEntry) error
}

type SourceArchive interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
	URL(key string) string
}

// Locker guards create+run across processes. Acquire fails with
// ErrOperationInFlight when the lock is held elsewhere.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

type StagePhase string

const (
	PhaseStarted   StagePhase = "started"
	PhaseSucceeded StagePhase = "succeeded"
	PhaseFailed    StagePhase = "failed"
)

type StageEvent struct {
	Stage               errors.PipelineStage `json:"stage"`
	Phase               StagePhase           `json:"phase"`
	ProvisioningBatchID string               `json:"provisioning_batch_id,omitempty"`
	Error               string               `json:"error,omitempty"`
	At                  time.Time            `json:"at"`
}

type StageObserver func(StageEvent)

type SubmitRequest struct {
	File            model.ImportFile
	Role            model.Role
	EstablishmentID string
}

// SubmitResult carries the batch id and focus signal of a submission. A
// failed auto-commit leaves CommitError set without failing the submission.
type SubmitResult struct {
	Report        importfile.Report   `json:"report"`
	BatchID       string              `json:"batch_id,omitempty"`
	SourceFileURL string              `json:"source_file_url,omitempty"`
	Focus         bool                `json:"focus"`
	Committed     bool                `json:"committed"`
	State         model.ImportState   `json:"state,omitempty"`
	CommitError   *errors.CommitError `json:"-"`
}

type ProvisioningResult struct {
	SourceIdentityBatchID string       `json:"source_identity_batch_id"`
	ProvisioningBatchID   string       `json:"provisioning_batch_id,omitempty"`
	Running               bool         `json:"running"`
	Events                []StageEvent `json:"events"`
}

type Option func(*Orchestrator)

func WithHistory(h History) Option {
	return func(o *Orchestrator) { o.history = h }
}

func WithArchive(a SourceArchive) Option {
	return func(o *Orchestrator) { o.archive = a }
}

func WithLocker(l Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

func WithObserver(fn StageObserver) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

type Orchestrator struct {
	identity     IdentityService
	provisioning ProvisioningService
	validator    FileValidator
	history      History
	archive      SourceArchive
	locker       Locker
	observer     StageObserver
	guard        *guard
	now          func() time.Time
	log          zerolog.Logger
}

func NewOrchestrator(identity IdentityService, provisioning ProvisioningService, validator FileValidator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		identity:     identity,
		provisioning: provisioning,
		validator:    validator,
		guard:        newGuard(),
		now:          func() time.Time { return time.Now().UTC() },
		log:          logger.Component("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SubmitAndTrack validates the file again, submits it and auto-commits the
// new batch. Validation failures return before any remote call.
func (o *Orchestrator) SubmitAndTrack(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	establishmentID := strings.TrimSpace(req.EstablishmentID)
	if establishmentID == "" {
		return nil, errors.SubmissionError{Err: errors.ErrEstablishmentUnset}
	}

	report := o.validator.Validate(ctx, req.File, req.Role)
	result := &SubmitResult{Report: report}
	if !report.OK() {
		o.log.Info().Str("file", req.File.Name).Err(report.Err).Msg("Submission blocked by validation")
		return result, report.Err
	}

	batchID, err := o.identity.SubmitBulkImport(ctx, req.File, establishmentID)
	if err != nil {
		o.log.Error().Err(err).Str("establishment_id", establishmentID).Str("file", req.File.Name).Msg("Import submission failed")
		o.record(ctx, model.HistoryEntry{
			Kind:            model.HistorySubmit,
			EstablishmentID: establishmentID,
			Role:            req.Role,
			FileName:        req.File.Name,
		}, err)
		return result, errors.SubmissionError{EstablishmentID: establishmentID, Err: err}
	}

	o.guard.setState(batchID, model.ImportSubmitted)
	o.guard.setEstablishment(batchID, establishmentID)
	result.BatchID = batchID
	result.Focus = true
	result.SourceFileURL = o.archiveSource(ctx, batchID, req.File)

	o.record(ctx, model.HistoryEntry{
		Kind:            model.HistorySubmit,
		EstablishmentID: establishmentID,
		BatchID:         batchID,
		Role:            req.Role,
		FileName:        req.File.Name,
		SourceFileURL:   result.SourceFileURL,
	}, nil)

	o.log.Info().Str("batch_id", batchID).Int("rows", report.Rows).Msg("Import submitted")

	if err := o.Commit(ctx, batchID); err != nil {
		var commitErr errors.CommitError
		if errors.As(err, &commitErr) {
			result.CommitError = &commitErr
		} else {
			result.CommitError = &errors.CommitError{BatchID: batchID, Err: err}
		}
	}
	result.Committed = result.CommitError == nil
	result.State, _ = o.guard.state(batchID)

	return result, nil
}

// Commit requests the commit of an identity batch. It is also the manual
// retry after a failed auto-commit.
func (o *Orchestrator) Commit(ctx context.Context, batchID string) error {
	key := "commit:" + batchID
	if !o.guard.begin(key) {
		return errors.ErrOperationInFlight
	}
	defer o.guard.end(key)

	o.guard.setState(batchID, model.ImportCommitRequested)

	entry := model.HistoryEntry{
		Kind:            model.HistoryCommit,
		EstablishmentID: o.guard.establishmentOf(batchID),
		BatchID:         batchID,
	}

	if err := o.identity.CommitImportBatch(ctx, batchID); err != nil {
		o.guard.setState(batchID, model.ImportCommitFailed)
		o.log.Warn().Err(err).Str("batch_id", batchID).Msg("Commit failed, batch kept for manual retry")
		o.record(ctx, entry, err)
		return errors.CommitError{BatchID: batchID, Err: err}
	}

	o.guard.setState(batchID, model.ImportCommitted)
	o.record(ctx, entry, nil)
	o.log.Info().Str("batch_id", batchID).Msg("Import batch committed")
	return nil
}

// CreateAndRunProvisioning creates a provisioning batch from an identity
// batch and runs it. Run is never attempted when create fails.
func (o *Orchestrator) CreateAndRunProvisioning(ctx context.Context, identityBatchID string) (*ProvisioningResult, error) {
	result := &ProvisioningResult{SourceIdentityBatchID: identityBatchID, Events: []StageEvent{}}

	if _, exists := o.guard.provisioningFor(identityBatchID); exists {
		return result, errors.ErrProvisioningExists
	}

	key := "provisioning:" + identityBatchID
	if !o.guard.begin(key) {
		return result, errors.ErrOperationInFlight
	}
	defer o.guard.end(key)

	if o.locker != nil {
		release, err := o.locker.Acquire(ctx, key)
		if err != nil {
			return result, err
		}
		defer release()
	}

	o.emit(result, StageEvent{Stage: errors.StageCreate, Phase: PhaseStarted})
	provisioningID, err := o.provisioning.CreateProvisioningBatch(ctx, identityBatchID)
	if err != nil {
		o.emit(result, StageEvent{Stage: errors.StageCreate, Phase: PhaseFailed, Error: err.Error()})
		o.record(ctx, model.HistoryEntry{
			Kind:            model.HistoryProvisionCreate,
			EstablishmentID: o.guard.establishmentOf(identityBatchID),
			BatchID:         identityBatchID,
		}, err)
		o.log.Error().Err(err).Str("identity_batch_id", identityBatchID).Msg("Provisioning create failed")
		return result, errors.ProvisioningPipelineError{Stage: errors.StageCreate, Err: err}
	}

	o.guard.rememberProvisioning(identityBatchID, provisioningID)
	result.ProvisioningBatchID = provisioningID
	o.emit(result, StageEvent{Stage: errors.StageCreate, Phase: PhaseSucceeded, ProvisioningBatchID: provisioningID})
	o.record(ctx, model.HistoryEntry{
		Kind:            model.HistoryProvisionCreate,
		EstablishmentID: o.guard.establishmentOf(identityBatchID),
		BatchID:         provisioningID,
	}, nil)

	if err := o.run(ctx, result, provisioningID); err != nil {
		return result, err
	}
	return result, nil
}

// RunProvisioning runs an existing provisioning batch. Whether a second run
// is accepted is up to the provisioning service.
func (o *Orchestrator) RunProvisioning(ctx context.Context, provisioningBatchID string) (*ProvisioningResult, error) {
	family := o.guard.family(provisioningBatchID)
	result := &ProvisioningResult{ProvisioningBatchID: provisioningBatchID, Events: []StageEvent{}}
	if family != provisioningBatchID {
		result.SourceIdentityBatchID = family
	}

	key := "provisioning:" + family
	if !o.guard.begin(key) {
		return result, errors.ErrOperationInFlight
	}
	defer o.guard.end(key)

	if err := o.run(ctx, result, provisioningBatchID); err != nil {
		return result, err
	}
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, result *ProvisioningResult, provisioningID string) error {
	o.emit(result, StageEvent{Stage: errors.StageRun, Phase: PhaseStarted, ProvisioningBatchID: provisioningID})

	entry := model.HistoryEntry{
		Kind:            model.HistoryProvisionRun,
		EstablishmentID: o.guard.establishmentOf(o.guard.family(provisioningID)),
		BatchID:         provisioningID,
	}

	if err := o.provisioning.RunProvisioningBatch(ctx, provisioningID); err != nil {
		o.emit(result, StageEvent{Stage: errors.StageRun, Phase: PhaseFailed, ProvisioningBatchID: provisioningID, Error: err.Error()})
		o.record(ctx, entry, err)
		o.log.Error().Err(err).Str("provisioning_batch_id", provisioningID).Msg("Provisioning run failed")
		return errors.ProvisioningPipelineError{Stage: errors.StageRun, ProvisioningBatchID: provisioningID, Err: err}
	}

	result.Running = true
	o.emit(result, StageEvent{Stage: errors.StageRun, Phase: PhaseSucceeded, ProvisioningBatchID: provisioningID})
	o.record(ctx, entry, nil)
	o.log.Info().Str("provisioning_batch_id", provisioningID).Msg("Provisioning batch running")
	return nil
}

// State returns the import state of a batch submitted through this
// orchestrator. Unknown batches report ImportNew and false.
func (o *Orchestrator) State(batchID string) (model.ImportState, bool) {
	state, ok := o.guard.state(batchID)
	if !ok {
		return model.ImportNew, false
	}
	return state, true
}

func (o *Orchestrator) ProvisioningFor(identityBatchID string) (string, bool) {
	return o.guard.provisioningFor(identityBatchID)
}

// CanCreateProvisioning is false once a provisioning batch is known for the
// source or while an operation on its family is in flight.
func (o *Orchestrator) CanCreateProvisioning(identityBatchID string) bool {
	if _, exists := o.guard.provisioningFor(identityBatchID); exists {
		return false
	}
	return !o.guard.inFlight("provisioning:" + identityBatchID)
}

func (o *Orchestrator) RememberProvisioning(identityBatchID, provisioningBatchID string) {
	if identityBatchID == "" || provisioningBatchID == "" {
		return
	}
	o.guard.rememberProvisioning(identityBatchID, provisioningBatchID)
}

func (o *Orchestrator) emit(result *ProvisioningResult, event StageEvent) {
	event.At = o.now()
	result.Events = append(result.Events, event)
	if o.observer != nil {
		o.observer(event)
	}
}

func (o *Orchestrator) archiveSource(ctx context.Context, batchID string, file model.ImportFile) string {
	if o.archive == nil {
		return ""
	}

	key := storage.SourceKey(batchID, file.Name)
	if err := o.archive.Upload(ctx, key, bytes.NewReader(file.Data), contentTypeOf(file.Name)); err != nil {
		o.log.Warn().Err(err).Str("batch_id", batchID).Str("key", key).Msg("Failed to archive source file")
		return ""
	}
	return o.archive.URL(key)
}

func (o *Orchestrator) record(ctx context.Context, entry model.HistoryEntry, cause error) {
	if o.history == nil {
		return
	}

	entry.Status = model.HistorySuccess
	if cause != nil {
		entry.Status = model.HistoryFailed
		msg := cause.Error()
		entry.ErrorMessage = &msg
	}
	entry.CreatedAt = o.now()

	if err := o.history.Record(ctx, &entry); err != nil {
		o.log.Warn().Err(err).Str("kind", string(entry.Kind)).Str("batch_id", entry.BatchID).Msg("Failed to record history")
	}
}

func contentTypeOf(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".xlsx"), strings.HasSuffix(lower, ".xlsm"):
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case strings.HasSuffix(lower, ".csv"):
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
