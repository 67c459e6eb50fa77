package httpclient

import (
	"strconv"
	"time"
)

// DefaultMaxPayloadLogBytes caps payload previews when no limit is set.
const DefaultMaxPayloadLogBytes = 1024

func (c *client) logRequest(call *Call) {
	req := call.Request
	target := req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	event := c.logger.Info().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("url", target).
		Str("request_id", call.requestID)
	if len(req.Headers) > 0 {
		event = event.Int("header_count", len(req.Headers))
	}
	if len(req.Body) > 0 {
		event = event.Int("body_size", len(req.Body))
	}
	event.Msg("REST client request")

	if c.logPayloads {
		preview, truncated := c.payloadPreview(req.Body)
		c.logger.Debug().
			Str("direction", "outbound").
			Str("method", req.Method).
			Str("request_id", call.requestID).
			Interface("headers", req.Headers).
			Int("body_size", len(req.Body)).
			Str("body_truncated", strconv.FormatBool(truncated)).
			Bytes("body_preview", preview).
			Msg("REST client request")
	}
}

func (c *client) logResponse(call *Call, resp *Response) {
	event := c.logger.Info().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Dur("elapsed", resp.Stats.ElapsedTime).
		Int64("call_count", resp.Stats.CallCount).
		Int("attempts", resp.Stats.Attempts).
		Str("request_id", call.requestID)
	if status := resp.CacheStatus(); status != "" {
		event = event.Str("cache", status)
	}
	if len(resp.Body) > 0 {
		event = event.Int("body_size", len(resp.Body))
	}
	event.Msg("REST client response")

	if c.logPayloads {
		preview, truncated := c.payloadPreview(resp.Body)
		c.logger.Debug().
			Str("direction", "inbound").
			Int("status", resp.StatusCode).
			Str("request_id", call.requestID).
			Interface("headers", resp.Headers).
			Int("body_size", len(resp.Body)).
			Str("body_truncated", strconv.FormatBool(truncated)).
			Bytes("body_preview", preview).
			Msg("REST client response")
	}
}

func (c *client) logFailure(call *Call, f *Failure, elapsed time.Duration, callCount int64) {
	event := c.logger.Warn()
	if f.Kind == KindServer || f.Kind == KindUnknown {
		event = c.logger.Error()
	}
	event = event.Err(f).
		Str("direction", "inbound").
		Str("method", call.Request.Method).
		Str("url", call.Request.Path).
		Str("kind", string(f.Kind)).
		Dur("elapsed", elapsed).
		Int64("call_count", callCount).
		Int("attempts", call.attempts).
		Str("request_id", call.requestID)
	if f.StatusCode > 0 {
		event = event.Int("status", f.StatusCode)
	}
	event.Msg("REST client request failed")
}

func (c *client) payloadPreview(body []byte) ([]byte, bool) {
	limit := c.maxPayloadLogBytes
	if limit <= 0 {
		limit = DefaultMaxPayloadLogBytes
	}
	if len(body) > limit {
		return body[:limit], true
	}
	return body, false
}
