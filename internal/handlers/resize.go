package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/mahirjain10/image-resizer/internal/aws"
	"github.com/mahirjain10/image-resizer/internal/logger"
	"github.com/mahirjain10/image-resizer/internal/transformation"
	"github.com/mahirjain10/image-resizer/internal/types"
	"github.com/mahirjain10/image-resizer/internal/utils"
)

const (
	DefaultTargetWidth = 300
	DefaultMarker      = "_resized"

	MsgNoRecords        = "Event contains no records."
	MsgKeyUndefined     = "S3 Key is undefined."
	MsgAlreadyProcessed = "Image is already processed. Exiting."
	MsgMissingMetadata  = "Image is lacking necessary metadata"
	MsgAlreadySized     = "Image is already proper size."
	MsgInternalError    = "Internal Server Error"
)

// DefaultMaxPixels matches libvips' default input limit (0x3FFF * 0x3FFF).
const DefaultMaxPixels int64 = 268402689

// ErrTooManyPixels is returned for images whose header claims more pixels than
// the handler will decode.
var ErrTooManyPixels = errors.New("image exceeds pixel limit")

// ObjectStore reads and writes whole objects by bucket and key.
type ObjectStore interface {
	GetObject(ctx context.Context, bucket string, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket string, key string, body []byte, contentType string) error
}

// ImageTransformer probes and resizes encoded images.
type ImageTransformer interface {
	ProbeMetadata(buffer []byte) (*types.ImageMetadata, error)
	Resize(buffer []byte, width int) (*types.EncodedImage, error)
}

// Result is the outcome of one event. OutputKey is set only when an object was written.
type Result struct {
	Bucket    string
	Key       string
	OutputKey string
	Response  events.APIGatewayProxyResponse
}

type ResizeHandler struct {
	store       ObjectStore
	transformer ImageTransformer
	targetWidth int
	marker      string
	maxPixels   int64
}

func NewResizeHandler(store ObjectStore, transformer ImageTransformer, targetWidth int, marker string) *ResizeHandler {
	if targetWidth <= 0 {
		targetWidth = DefaultTargetWidth
	}
	if marker == "" {
		marker = DefaultMarker
	}
	return &ResizeHandler{
		store:       store,
		transformer: transformer,
		targetWidth: targetWidth,
		marker:      marker,
		maxPixels:   DefaultMaxPixels,
	}
}

// WithMaxPixels caps width*height of images the handler decodes. Zero or less disables the cap.
func (h *ResizeHandler) WithMaxPixels(maxPixels int64) *ResizeHandler {
	h.maxPixels = maxPixels
	return h
}

// Handle is the Lambda entry point. It never returns an error: every outcome,
// failures included, is reported through the response.
func (h *ResizeHandler) Handle(ctx context.Context, event events.S3Event) (events.APIGatewayProxyResponse, error) {
	return h.Process(ctx, event).Response, nil
}

// Process resizes the object named by the first record of event, writing at most one object.
func (h *ResizeHandler) Process(ctx context.Context, event events.S3Event) Result {
	l := logger.Ctx(ctx)

	if len(event.Records) == 0 {
		l.Error().Msg(MsgNoRecords)
		return Result{Response: utils.ErrorResponse(http.StatusBadRequest, MsgNoRecords)}
	}

	record := event.Records[0]
	result := Result{Bucket: record.S3.Bucket.Name}

	key, err := utils.DecodeKey(record.S3.Object.Key)
	if err != nil {
		l.Error().Err(err).Str(logger.FieldBucket, result.Bucket).Msg("invalid object key")
		result.Response = utils.ErrorResponse(http.StatusBadRequest, fmt.Sprintf("S3 Key %q could not be decoded.", record.S3.Object.Key))
		return result
	}
	if key == "" {
		l.Error().Str(logger.FieldBucket, result.Bucket).Msg(MsgKeyUndefined)
		result.Response = utils.ErrorResponse(http.StatusBadRequest, MsgKeyUndefined)
		return result
	}
	result.Key = key

	l = l.With().Str(logger.FieldBucket, result.Bucket).Str(logger.FieldKey, key).Logger()

	// Writing the resized object re-triggers this handler; the marker in the key breaks that loop.
	if strings.Contains(key, h.marker) {
		l.Info().Msg(MsgAlreadyProcessed)
		result.Response = utils.MessageResponse(http.StatusNoContent, MsgAlreadyProcessed)
		return result
	}

	outputKey, resp, err := h.resize(ctx, l, result.Bucket, key)
	if err != nil {
		switch {
		case errors.Is(err, aws.ErrObjectNotFound):
			l.Error().Err(err).Msg("source object not found")
		case errors.Is(err, transformation.ErrUnsupportedFormat):
			l.Error().Err(err).Msg("image format cannot be re-encoded")
		case errors.Is(err, ErrTooManyPixels):
			l.Error().Err(err).Int64("max_pixels", h.maxPixels).Msg("refusing to decode image")
		default:
			l.Error().Err(err).Msg("failed to resize image")
		}
		result.Response = utils.ErrorResponse(http.StatusInternalServerError, MsgInternalError)
		return result
	}

	result.OutputKey = outputKey
	result.Response = resp
	return result
}

func (h *ResizeHandler) resize(ctx context.Context, l zerolog.Logger, bucket string, key string) (string, events.APIGatewayProxyResponse, error) {
	// 1. Download the original
	original, err := h.store.GetObject(ctx, bucket, key)
	if err != nil {
		return "", events.APIGatewayProxyResponse{}, err
	}

	// 2. Probe the header
	metadata, err := h.transformer.ProbeMetadata(original)
	if err != nil {
		return "", events.APIGatewayProxyResponse{}, err
	}

	if metadata == nil || metadata.Width <= 0 {
		l.Warn().Msg(MsgMissingMetadata)
		return "", utils.MessageResponse(http.StatusBadRequest, MsgMissingMetadata), nil
	}

	l.Info().
		Int("width", metadata.Width).
		Int("height", metadata.Height).
		Str("format", metadata.Format).
		Int("bytes", len(original)).
		Msg("image metadata")

	// 3. Size decision
	if metadata.Width <= h.targetWidth {
		l.Info().Int("target_width", h.targetWidth).Msg(MsgAlreadySized)
		return "", utils.MessageResponse(http.StatusBadRequest, MsgAlreadySized), nil
	}

	// Decoding allocates width*height pixels up front, whatever the file size.
	if pixels := int64(metadata.Width) * int64(metadata.Height); h.maxPixels > 0 && pixels > h.maxPixels {
		return "", events.APIGatewayProxyResponse{}, fmt.Errorf("%w: %dx%d (%d pixels)", ErrTooManyPixels, metadata.Width, metadata.Height, pixels)
	}

	// 4. Resize and re-encode
	resized, err := h.transformer.Resize(original, h.targetWidth)
	if err != nil {
		return "", events.APIGatewayProxyResponse{}, err
	}

	// 5. Upload under the marked key
	outputKey := utils.ResizedKey(key, h.marker)
	if err := h.store.PutObject(ctx, bucket, outputKey, resized.Body, resized.ContentType); err != nil {
		return "", events.APIGatewayProxyResponse{}, err
	}

	l.Info().
		Str(logger.FieldOutputKey, outputKey).
		Int("width", resized.Width).
		Int("height", resized.Height).
		Msg("resized image uploaded")

	return outputKey, utils.MessageResponse(http.StatusOK, fmt.Sprintf("Resized Image %s has been uploaded", outputKey)), nil
}
