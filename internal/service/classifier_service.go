package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/models"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/repository"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/pubsub"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/vision"
)

const maxFrameBytes = 4 << 20

type FrameUploader interface {
	UploadFrame(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type FrameClassifier interface {
	Classify(ctx context.Context, image []byte, mimeType string) (*vision.Result, int, error)
}

type ClassifyRequest struct {
	Image string `json:"image" binding:"required"`
}

type ClassifierService struct {
	streams    *StreamService
	records    repository.ClassificationRepository
	uploader   FrameUploader
	classifier FrameClassifier
	publisher  pubsub.Publisher
	now        func() time.Time
}

func NewClassifierService(
	streams *StreamService,
	records repository.ClassificationRepository,
	uploader FrameUploader,
	classifier FrameClassifier,
	publisher pubsub.Publisher,
) *ClassifierService {
	return &ClassifierService{
		streams:    streams,
		records:    records,
		uploader:   uploader,
		classifier: classifier,
		publisher:  publisher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Classify archives a frame and records the model's trail-condition verdict.
// A model failure is recorded as a failed classification rather than returned.
func (s *ClassifierService) Classify(ctx context.Context, streamID, callerID string, req ClassifyRequest) (*models.Classification, error) {
	image, mimeType, err := decodeFrame(req.Image)
	if err != nil {
		return nil, invalidField("image", err.Error())
	}

	stream, err := s.streams.GetOwned(ctx, streamID, callerID)
	if err != nil {
		return nil, err
	}
	if !stream.IsLive() {
		return nil, ErrStreamNotLive
	}

	record := &models.Classification{
		ID:        uuid.NewString(),
		StreamID:  streamID,
		Condition: models.ConditionUnknown,
		CreatedAt: s.now(),
	}

	key := fmt.Sprintf("frames/%s/%s%s", streamID, record.ID, frameExt(mimeType))
	if url, err := s.uploader.UploadFrame(ctx, key, image, mimeType); err != nil {
		log.Printf("⚠️ Could not archive frame for %s: %v", streamID, err)
	} else {
		record.FrameURL = url
	}

	result, attempts, err := s.classifier.Classify(ctx, image, mimeType)
	record.Attempts = attempts
	if err != nil {
		log.Printf("❌ Classification failed for %s after %d attempts: %v", streamID, attempts, err)
		record.Status = models.ClassificationFailed
		record.Error = err.Error()
	} else {
		record.Status = models.ClassificationSuccess
		record.Condition = models.ParseTrailCondition(result.Condition)
		record.Description = result.Description
		record.Confidence = result.Confidence
	}

	if err := s.records.CreateClassification(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store classification: %w", err)
	}

	if err := s.publisher.Publish(ctx, pubsub.StreamChannel(streamID), pubsub.EventFrameClassified, record); err != nil {
		log.Printf("⚠️ Could not publish classification for %s: %v", streamID, err)
	}
	return record, nil
}

func (s *ClassifierService) List(ctx context.Context, streamID string, limit int) ([]*models.Classification, error) {
	if _, err := s.streams.Get(ctx, streamID); err != nil {
		return nil, err
	}
	records, err := s.records.ListClassifications(ctx, streamID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list classifications: %w", err)
	}
	return records, nil
}

// decodeFrame accepts raw base64 or a data URL and sniffs the image type.
func decodeFrame(raw string) ([]byte, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, "", fmt.Errorf("is required")
	}
	if strings.HasPrefix(raw, "data:") {
		comma := strings.IndexByte(raw, ',')
		if comma < 0 {
			return nil, "", fmt.Errorf("malformed data URL")
		}
		raw = raw[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", fmt.Errorf("must be base64 encoded")
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("is empty")
	}
	if len(data) > maxFrameBytes {
		return nil, "", fmt.Errorf("must be at most %d bytes", maxFrameBytes)
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, "", fmt.Errorf("must be an image")
	}
	return data, mimeType, nil
}

func frameExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
