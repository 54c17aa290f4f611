package utils

import (
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/mahirjain10/image-resizer/internal/types"
)

const pattern = "status"

// StatusFromCode maps a handler status code onto the status vocabulary published to the broker.
func StatusFromCode(statusCode int) string {
	switch {
	case statusCode == http.StatusOK:
		return types.PROCESSED
	case statusCode == http.StatusNoContent:
		return types.SKIPPED
	case statusCode >= http.StatusInternalServerError:
		return types.FAILED
	default:
		return types.REJECTED
	}
}

func InitStatusData(bucket string, key string, outputKey string, resp events.APIGatewayProxyResponse) *types.StatusData {
	return &types.StatusData{
		Bucket:     bucket,
		Key:        key,
		OutputKey:  outputKey,
		StatusCode: resp.StatusCode,
		Status:     StatusFromCode(resp.StatusCode),
		Message:    ResponseText(resp),
	}
}

func InitStatusMessage(data *types.StatusData) *types.StatusMessage {
	return &types.StatusMessage{Pattern: pattern, Data: *data}
}
