package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mahirjain10/image-resizer/config"
	"github.com/mahirjain10/image-resizer/internal/handlers"
	"github.com/mahirjain10/image-resizer/internal/types"
	"github.com/mahirjain10/image-resizer/internal/utils"
)

// MinIO-style notification: the S3 records plus MinIO's own envelope fields.
const minioNotification = `{
  "EventName": "s3:ObjectCreated:Put",
  "Key": "photos/vacation.jpg",
  "Records": [
    {
      "eventVersion": "2.0",
      "eventSource": "minio:s3",
      "awsRegion": "",
      "eventName": "s3:ObjectCreated:Put",
      "s3": {
        "s3SchemaVersion": "1.0",
        "bucket": {"name": "photos", "arn": "arn:aws:s3:::photos"},
        "object": {"key": "vacation.jpg", "size": 245760, "contentType": "image/jpeg"}
      }
    }
  ]
}`

type ackRecord struct {
	acked, nacked, requeued bool
}

func (a *ackRecord) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *ackRecord) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

func (a *ackRecord) Reject(_ uint64, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

type fakeProcessor struct {
	result handlers.Result
	events []events.S3Event
}

func (f *fakeProcessor) Process(_ context.Context, event events.S3Event) handlers.Result {
	f.events = append(f.events, event)
	return f.result
}

type publishCall struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakePublisher struct {
	calls  []publishCall
	err    error
	closed bool
}

func (f *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.calls = append(f.calls, publishCall{exchange: exchange, key: key, msg: msg})
	return f.err
}

func (f *fakePublisher) IsClosed() bool {
	return f.closed
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func delivery(body string, redelivered bool) (amqp.Delivery, *ackRecord) {
	ack := &ackRecord{}
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  7,
		Redelivered:  redelivered,
		Body:         []byte(body),
	}, ack
}

func result(status int, text string) handlers.Result {
	return handlers.Result{
		Bucket:   "photos",
		Key:      "vacation.jpg",
		Response: utils.MessageResponse(status, text),
	}
}

func TestHandleDeliveryAcks(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		redelivered bool
		wantAck     bool
		wantRequeue bool
	}{
		{"resized", http.StatusOK, false, true, false},
		{"already processed", http.StatusNoContent, false, true, false},
		{"already sized", http.StatusBadRequest, false, true, false},
		{"failure first delivery", http.StatusInternalServerError, false, false, true},
		{"failure redelivered", http.StatusInternalServerError, true, false, false},
	}

	for _, tc := range tests {
		proc := &fakeProcessor{result: result(tc.status, "x")}
		svc := NewRabbitMqService(config.NewConfig(), proc)

		d, ack := delivery(minioNotification, tc.redelivered)
		svc.HandleDelivery(context.Background(), d)

		if ack.acked != tc.wantAck {
			t.Errorf("%s: acked=%v want %v", tc.name, ack.acked, tc.wantAck)
		}
		if ack.nacked == tc.wantAck {
			t.Errorf("%s: nacked=%v", tc.name, ack.nacked)
		}
		if ack.requeued != tc.wantRequeue {
			t.Errorf("%s: requeued=%v want %v", tc.name, ack.requeued, tc.wantRequeue)
		}
		if len(proc.events) != 1 {
			t.Fatalf("%s: expected processor to be called once", tc.name)
		}
		rec := proc.events[0].Records[0]
		if rec.S3.Bucket.Name != "photos" || rec.S3.Object.Key != "vacation.jpg" {
			t.Errorf("%s: unexpected event %+v", tc.name, rec.S3)
		}
	}
}

func TestHandleDeliveryMalformed(t *testing.T) {
	proc := &fakeProcessor{}
	svc := NewRabbitMqService(config.NewConfig(), proc)

	d, ack := delivery("not json", false)
	svc.HandleDelivery(context.Background(), d)

	if !ack.nacked || ack.requeued {
		t.Errorf("expected nack without requeue, got %+v", ack)
	}
	if len(proc.events) != 0 {
		t.Error("processor must not run for a malformed body")
	}
}

func TestProcessMessageError(t *testing.T) {
	svc := NewRabbitMqService(config.NewConfig(), &fakeProcessor{result: result(http.StatusInternalServerError, "Internal Server Error")})

	d, _ := delivery(minioNotification, false)
	err := svc.ProcessMessage(context.Background(), d)

	var procErr ProcessingError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ProcessingError got %v", err)
	}
	if !procErr.Requeue {
		t.Error("expected first failure to be requeued")
	}
}

func TestPublishStatus(t *testing.T) {
	cfg := config.NewConfig()
	cfg.StatusExchange = "image_processing"

	r := result(http.StatusOK, "Resized Image vacation_resized.jpg has been uploaded")
	r.OutputKey = "vacation_resized.jpg"

	pub := &fakePublisher{}
	svc := NewRabbitMqService(cfg, &fakeProcessor{result: r})
	svc.publisher = pub

	d, ack := delivery(minioNotification, false)
	svc.HandleDelivery(context.Background(), d)

	if !ack.acked {
		t.Error("expected ack")
	}
	if len(pub.calls) != 1 {
		t.Fatalf("expected 1 publish got %d", len(pub.calls))
	}
	call := pub.calls[0]
	if call.exchange != "image_processing" || call.key != "status" {
		t.Errorf("published to %s/%s", call.exchange, call.key)
	}
	if call.msg.ContentType != "application/json" {
		t.Errorf("expected application/json got %s", call.msg.ContentType)
	}

	var msg types.StatusMessage
	if err := json.Unmarshal(call.msg.Body, &msg); err != nil {
		t.Fatalf("status body: %v", err)
	}
	if msg.Pattern != "status" {
		t.Errorf("expected pattern status got %s", msg.Pattern)
	}
	want := types.StatusData{
		Bucket:     "photos",
		Key:        "vacation.jpg",
		OutputKey:  "vacation_resized.jpg",
		StatusCode: 200,
		Status:     types.PROCESSED,
		Message:    "Resized Image vacation_resized.jpg has been uploaded",
	}
	if msg.Data != want {
		t.Errorf("expected %+v got %+v", want, msg.Data)
	}
}

func TestPublishStatusFailureStillAcks(t *testing.T) {
	cfg := config.NewConfig()
	cfg.StatusExchange = "image_processing"

	svc := NewRabbitMqService(cfg, &fakeProcessor{result: result(http.StatusNoContent, "Image is already processed. Exiting.")})
	svc.publisher = &fakePublisher{err: errors.New("channel closed")}

	d, ack := delivery(minioNotification, false)
	svc.HandleDelivery(context.Background(), d)

	if !ack.acked {
		t.Error("a status publish failure must not fail the delivery")
	}
}

func TestPublishStatusDisabled(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewRabbitMqService(config.NewConfig(), &fakeProcessor{result: result(http.StatusOK, "ok")})
	svc.publisher = pub

	if err := svc.PublishStatus(context.Background(), result(http.StatusOK, "ok")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.calls) != 0 {
		t.Error("expected no publish without a status exchange")
	}
}

func TestPublishStatusReopensClosedChannel(t *testing.T) {
	cfg := config.NewConfig()
	cfg.StatusExchange = "image_processing"

	broken := &fakePublisher{closed: true}
	fresh := &fakePublisher{}
	opened := 0

	svc := NewRabbitMqService(cfg, &fakeProcessor{})
	svc.publisher = broken
	svc.openPublisher = func() (Publisher, error) {
		opened++
		return fresh, nil
	}

	for i := 0; i < 2; i++ {
		if err := svc.PublishStatus(context.Background(), result(http.StatusOK, "ok")); err != nil {
			t.Fatalf("publish %d: unexpected error: %v", i, err)
		}
	}

	if opened != 1 {
		t.Errorf("expected the channel to be reopened once, got %d", opened)
	}
	if len(broken.calls) != 0 {
		t.Error("published on a closed channel")
	}
	if len(fresh.calls) != 2 {
		t.Errorf("expected 2 publishes on the new channel got %d", len(fresh.calls))
	}

	svc.closePublisher()
	if !fresh.closed {
		t.Error("expected the status channel to be closed")
	}
}

func TestPublishStatusReopenFails(t *testing.T) {
	cfg := config.NewConfig()
	cfg.StatusExchange = "image_processing"

	svc := NewRabbitMqService(cfg, &fakeProcessor{result: result(http.StatusOK, "ok")})
	svc.publisher = &fakePublisher{closed: true}
	svc.openPublisher = func() (Publisher, error) {
		return nil, errors.New("connection closed")
	}

	if err := svc.PublishStatus(context.Background(), result(http.StatusOK, "ok")); err == nil {
		t.Error("expected an error when the status channel cannot be reopened")
	}

	d, ack := delivery(minioNotification, false)
	svc.HandleDelivery(context.Background(), d)
	if !ack.acked {
		t.Error("a status channel failure must not fail the delivery")
	}
}
