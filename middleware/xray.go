package middleware

import (
	"context"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// XRayMiddleware opens one X-Ray segment per request, named after the
// service being run. The segment context is stored in locals under xray-ctx.
func XRayMiddleware(serviceName string, logger *zap.Logger) fiber.Handler {
	segmentName := "stackhut-runner"
	if serviceName != "" {
		segmentName = "stackhut-" + serviceName
	}
	return func(c *fiber.Ctx) error {
		// Skip tracing for health checks to reduce noise
		if c.Path() == "/health" {
			return c.Next()
		}

		ctx, seg := xray.BeginSegment(context.Background(), segmentName)
		defer func() {
			if seg != nil {
				seg.Close(nil)
			}
		}()

		if seg.GetHTTP() != nil {
			seg.GetHTTP().GetRequest().Method = c.Method()
			seg.GetHTTP().GetRequest().URL = c.OriginalURL()
			seg.GetHTTP().GetRequest().ClientIP = c.IP()
			seg.GetHTTP().GetRequest().UserAgent = c.Get("User-Agent")
		}
		seg.AddAnnotation("route", c.Path())
		seg.AddAnnotation("method", c.Method())
		if serviceName != "" {
			seg.AddAnnotation("service", serviceName)
		}
		c.Locals("xray-ctx", ctx)

		err := c.Next()

		if seg.GetHTTP() != nil {
			seg.GetHTTP().GetResponse().Status = c.Response().StatusCode()
		}
		if err != nil {
			logger.Warn("Request error", zap.String("path", c.Path()), zap.Error(err))
			seg.AddError(err)
			if seg.GetHTTP() != nil {
				seg.GetHTTP().GetResponse().Status = fiber.StatusInternalServerError
			}
		}
		return err
	}
}

// GetXRayContext retrieves X-Ray context from Fiber locals
func GetXRayContext(c *fiber.Ctx) context.Context {
	if ctx, ok := c.Locals("xray-ctx").(context.Context); ok {
		return ctx
	}
	return context.Background()
}
