package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/johnwmail/haste/internal/config"
	"github.com/johnwmail/haste/internal/server"
)

var version = "dev"

var (
	ginLambdaV1 *ginadapter.GinLambda
	ginLambdaV2 *ginadapter.GinLambdaV2
	initMu      sync.Mutex
	buildApp    = newApp
	logger      = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
)

// lambdaConfig loads the configuration from HASTE_* variables. Without an
// explicit storage type documents go to DynamoDB, since the function has
// no durable local disk.
func lambdaConfig() (*config.Config, error) {
	if os.Getenv("HASTE_STORAGE_TYPE") == "" {
		if err := os.Setenv("HASTE_STORAGE_TYPE", "dynamodb"); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, err
	}
	// /tmp is the only writable path and does not outlive the instance
	if cfg.SettingsFile == config.DefaultConfig().SettingsFile {
		cfg.SettingsFile = ""
	}
	return cfg, nil
}

// setup builds the router on the first invocation. A failed attempt is
// retried by the next invocation instead of pinning the warm instance.
func setup(ctx context.Context) error {
	initMu.Lock()
	defer initMu.Unlock()
	if ginLambdaV1 != nil {
		return nil
	}
	return initialize(ctx)
}

func newApp(ctx context.Context, cfg *config.Config) (*server.App, error) {
	return server.NewApp(ctx, cfg, logger, version)
}

func initialize(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)

	cfg, err := lambdaConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	ginLambdaV2 = ginadapter.NewV2(app.Router)
	ginLambdaV1 = ginadapter.New(app.Router)

	logger.Info("Lambda function initialized",
		"version", version,
		"storage", cfg.StorageType)
	return nil
}

// handler serves both API Gateway REST (v1) and HTTP API / Function URL
// (v2) events.
func handler(ctx context.Context, event json.RawMessage) (any, error) {
	if err := setup(ctx); err != nil {
		logger.Error("Lambda initialization failed", "error", err)
		return nil, err
	}

	var reqV2 events.APIGatewayV2HTTPRequest
	if err := json.Unmarshal(event, &reqV2); err == nil && reqV2.RequestContext.HTTP.Method != "" {
		logger.Debug("Handling HTTP API request", "method", reqV2.RequestContext.HTTP.Method, "path", reqV2.RawPath)
		return ginLambdaV2.ProxyWithContext(ctx, reqV2)
	}

	var reqV1 events.APIGatewayProxyRequest
	if err := json.Unmarshal(event, &reqV1); err == nil && reqV1.HTTPMethod != "" {
		logger.Debug("Handling REST API request", "method", reqV1.HTTPMethod, "path", reqV1.Path)
		return ginLambdaV1.ProxyWithContext(ctx, reqV1)
	}

	logger.Error("Unsupported event", "event", string(event))
	return events.APIGatewayV2HTTPResponse{
		StatusCode: 400,
		Body:       `{"message":"Unsupported event type: expected an API Gateway or Function URL event"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}, nil
}

func main() {
	lambda.Start(handler)
}
