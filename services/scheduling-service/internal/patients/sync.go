package patients

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/frontdesk/libs/kafkax"

	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/model"
)

// TopicUpserted carries patient records from the registration system.
const TopicUpserted = "frontdesk.patient.upserted.v1"

type PatientWriter interface {
	UpsertPatient(ctx context.Context, p model.Patient) error
}

type upsertedPayload struct {
	PatientID string `json:"patient_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
}

// Sync applies patient upserts so booking validation can see new patients.
type Sync struct {
	store  PatientWriter
	logger *slog.Logger
}

func NewSync(store PatientWriter, logger *slog.Logger) *Sync {
	return &Sync{store: store, logger: logger}
}

func (s *Sync) Handle(ctx context.Context, msg kafka.Message) error {
	if meta := kafkax.ExtractEventMeta(msg); meta.AggregateType != "" && meta.AggregateType != "patient" {
		s.logger.Warn("non-patient event on patient topic dropped", "topic", msg.Topic, "aggregate_type", meta.AggregateType)
		return nil
	}
	var p upsertedPayload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		return fmt.Errorf("decode patient payload: %w", err)
	}
	p.PatientID = strings.TrimSpace(p.PatientID)
	if p.PatientID == "" {
		// Nothing can ever make this message valid; drop it instead of retrying.
		s.logger.Warn("patient event without id dropped", "topic", msg.Topic, "offset", msg.Offset)
		return nil
	}
	if err := s.store.UpsertPatient(ctx, model.Patient{ID: p.PatientID, Name: p.Name, Phone: p.Phone}); err != nil {
		return fmt.Errorf("upsert patient %s: %w", p.PatientID, err)
	}
	s.logger.Info("patient synced", "patient_id", p.PatientID)
	return nil
}
