package importer

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// HandleImportRequest stages and commits an import request read from Kafka. Requests that can
// never succeed are logged and acknowledged; anything else is returned so the message is redelivered.
func (s *Service) HandleImportRequest(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.HandleImportRequest")
	defer span.End()

	req := msg.ImportRequest
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"project_id": req.ProjectID,
		"records":    len(req.Records),
		"offset":     msg.Offset,
	})

	run, err := s.Stage(ctx, req.ProjectID, req.Records, models.Mode(req.Mode))
	if err == nil {
		_, err = s.Commit(ctx, req.ProjectID, run.ID)
	}
	if err != nil {
		if isPermanent(err) {
			log.WithError(err).Warn("Dropping import request")
			metrics.RecordKafkaMessage("dropped")
			return nil
		}
		metrics.RecordKafkaMessage("failed")
		return err
	}

	metrics.RecordKafkaMessage("committed")
	log.WithField("batch_id", run.ID).Info("Imported batch from Kafka")
	return nil
}

func isPermanent(err error) bool {
	if !httperror.IsHTTPError(err) {
		return false
	}
	code := httperror.GetStatusCode(err)
	return code >= http.StatusBadRequest && code < http.StatusInternalServerError && code != http.StatusConflict
}
