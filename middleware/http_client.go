package middleware

import (
	"net/http"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
)

// GetXRayHTTPClient returns an HTTP client instrumented with X-Ray.
// A zero timeout leaves the client without a deadline (used for large downloads).
func GetXRayHTTPClient(timeout time.Duration) *http.Client {
	return xray.Client(&http.Client{Timeout: timeout})
}
