// Command lambda runs the relay as an AWS Lambda function behind API Gateway.
//
// Configuration comes from the function's environment exactly as for the
// server binary; REDIS_URL enables the shared rate limit across instances.
package main

import (
	"context"
	"encoding/base64"
	"log"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/nulpointcorp/prompt-relay/internal/app"
	"github.com/nulpointcorp/prompt-relay/internal/config"
	"github.com/nulpointcorp/prompt-relay/internal/logger"
	"github.com/nulpointcorp/prompt-relay/internal/relay"
	"github.com/nulpointcorp/prompt-relay/pkg/apierr"
)

type handlerFunc func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg := logger.Build(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(lg)

	fn, err := app.NewFunction(context.Background(), cfg, lg)
	if err != nil {
		lg.Error("cold start failed", slog.String("error", err.Error()))
		log.Fatal(err)
	}
	defer fn.Close()

	awslambda.Start(newHandler(fn.Handler))
}

// newHandler adapts API Gateway proxy events to the relay.
func newHandler(h *relay.Handler) handlerFunc {
	return func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		body := []byte(event.Body)
		if event.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(event.Body)
			if err != nil {
				headers := map[string]string{"Content-Type": "application/json"}
				h.CORS().Apply(originOf(event.Headers), func(k, v string) { headers[k] = v })
				return events.APIGatewayProxyResponse{
					StatusCode: 400,
					Headers:    headers,
					Body:       string(apierr.Marshal(apierr.Envelope{Error: apierr.MsgInvalidJSON})),
				}, nil
			}
			body = decoded
		}

		resp := h.Serve(ctx, &relay.Request{
			Method:    event.HTTPMethod,
			Body:      body,
			Headers:   event.Headers,
			RequestID: event.RequestContext.RequestID,
		})

		return events.APIGatewayProxyResponse{
			StatusCode: resp.StatusCode,
			Headers:    resp.Headers,
			Body:       string(resp.Body),
		}, nil
	}
}

func originOf(headers map[string]string) string {
	r := relay.Request{Headers: headers}
	return r.Header("Origin")
}
