package utils

import (
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

const (
	BodyMessage = "message"
	BodyError   = "error"
)

var jsonHeaders = map[string]string{"Content-Type": "application/json"}

// JSONResponse builds a gateway-style response whose body is {field: text}.
func JSONResponse(statusCode int, field string, text string) events.APIGatewayProxyResponse {
	body, err := SerializeJSON(map[string]string{field: text})
	if err != nil {
		body = []byte(`{"error":"Internal Server Error"}`)
		statusCode = http.StatusInternalServerError
	}

	headers := make(map[string]string, len(jsonHeaders))
	for k, v := range jsonHeaders {
		headers[k] = v
	}

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       string(body),
	}
}

func MessageResponse(statusCode int, message string) events.APIGatewayProxyResponse {
	return JSONResponse(statusCode, BodyMessage, message)
}

func ErrorResponse(statusCode int, message string) events.APIGatewayProxyResponse {
	return JSONResponse(statusCode, BodyError, message)
}

// ResponseText returns whichever of message or error the response body carries.
func ResponseText(resp events.APIGatewayProxyResponse) string {
	var body map[string]string
	if err := ParseJSON([]byte(resp.Body), &body); err != nil {
		return resp.Body
	}
	if msg, ok := body[BodyMessage]; ok {
		return msg
	}
	return body[BodyError]
}
