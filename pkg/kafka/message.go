package kafka

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// ErrMissingProject is returned for an import request without a project
var ErrMissingProject = errors.New("import request has no project_id")

// ImportRequest asks for a batch to be deduplicated against a project's pool and committed
type ImportRequest struct {
	ProjectID string                  `json:"project_id"`
	Mode      string                  `json:"mode,omitempty"`
	Records   []normalizers.RawRecord `json:"records"`
}

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string

	ImportRequest *ImportRequest
}

// ParseImportRequest parses the message value as an import request
func (m *IncomingMessage) ParseImportRequest() error {
	var req ImportRequest
	if err := json.Unmarshal(m.Value, &req); err != nil {
		return err
	}
	if req.ProjectID == "" {
		req.ProjectID = m.Headers["project_id"]
	}
	if req.ProjectID == "" {
		return ErrMissingProject
	}
	m.ImportRequest = &req
	return nil
}
