package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"go.uber.org/zap"

	"github.com/wangmul/emotion-tracker/internal/config"
	"github.com/wangmul/emotion-tracker/internal/di"
)

var (
	chiLambda *chiadapter.ChiLambdaV2
	container *di.Container
	coldStart = true
)

// init builds the container once per execution environment.
func init() {
	started := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := config.LoadWithLoader()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Draft.Backend == "memory" {
		log.Println("Draft cache is in-memory; drafts do not survive across Lambda instances")
	}

	container, err = di.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	chiLambda = chiadapter.NewV2(container.Router)

	container.Logger.Info("Lambda cold start completed", zap.Duration("duration", time.Since(started)))
}

// Handler adapts API Gateway HTTP API events onto the router.
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if coldStart {
		container.Logger.Info("First invocation",
			zap.String("request_id", req.RequestContext.RequestID),
			zap.String("path", req.RequestContext.HTTP.Path),
		)
		coldStart = false
	}
	return chiLambda.ProxyWithContextV2(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
