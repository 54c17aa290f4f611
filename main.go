package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/mahirjain10/image-resizer/config"
	"github.com/mahirjain10/image-resizer/internal/aws"
	"github.com/mahirjain10/image-resizer/internal/handlers"
	"github.com/mahirjain10/image-resizer/internal/logger"
	"github.com/mahirjain10/image-resizer/internal/queue"
	"github.com/mahirjain10/image-resizer/internal/transformation"
)

const serviceName = "image-resizer"

type App struct {
	config        *config.Config
	resizeHandler *handlers.ResizeHandler
}

// NewApp creates and initializes a new App instance with all dependencies
func NewApp(ctx context.Context) (*App, error) {
	// Load environment configuration
	envConfig, err := config.InitializeEnvs()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize environment config: %w", err)
	}

	logger.Init(logger.Config{
		Level:       envConfig.LogLevel,
		Pretty:      envConfig.LogPretty,
		ServiceName: serviceName,
	})

	// Initialize AWS configuration
	awsConfig, err := config.InitializeAws(ctx, envConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AWS config: %w", err)
	}

	// Create S3 client and service
	s3Client := aws.NewS3Client(awsConfig, envConfig.S3Endpoint, envConfig.S3UsePathStyle)
	s3Service := aws.NewS3Service(s3Client, envConfig.S3Timeout, envConfig.MaxImageBytes)

	transformer := transformation.NewTransformer(envConfig.JpegQuality)
	resizeHandler := handlers.NewResizeHandler(s3Service, transformer, envConfig.TargetWidth, envConfig.ResizedMarker).
		WithMaxPixels(envConfig.MaxImagePixels)

	return &App{
		config:        envConfig,
		resizeHandler: resizeHandler,
	}, nil
}

// handleLambda tags the invocation's log lines with the Lambda request ID.
func (a *App) handleLambda(ctx context.Context, event events.S3Event) (events.APIGatewayProxyResponse, error) {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		ctx = logger.WithRequestID(ctx, lc.AwsRequestID)
	}
	return a.resizeHandler.Handle(ctx, event)
}

func (a *App) runAMQP(ctx context.Context) error {
	conn, err := queue.NewRabbitMQClient(a.config.RabbitMqURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	rabbitMqService := queue.NewRabbitMqService(a.config, a.resizeHandler)
	return rabbitMqService.Start(ctx, conn)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize application
	app, err := NewApp(ctx)
	if err != nil {
		l := logger.L()
		l.Fatal().Err(err).Msg("Failed to initialize application")
	}

	l := logger.L()
	l.Info().
		Str("trigger", app.config.TriggerSource).
		Int("target_width", app.config.TargetWidth).
		Str("marker", app.config.ResizedMarker).
		Msg("Application initialized successfully")

	switch app.config.TriggerSource {
	case config.TriggerAMQP:
		if err := app.runAMQP(ctx); err != nil {
			l.Fatal().Err(err).Msg("AMQP consumer stopped")
		}
	default:
		lambda.StartWithOptions(app.handleLambda, lambda.WithContext(ctx))
	}
}
