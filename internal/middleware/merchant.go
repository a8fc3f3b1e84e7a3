package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/widget-session-server/internal/errors"
)

const (
	MerchantContextKey contextKey = "merchantId"
	MerchantHeader                = "X-Merchant-ID"
	MerchantQueryParam            = "merchant_id"
)

func GetMerchantID(ctx context.Context) string {
	if merchantID, ok := ctx.Value(MerchantContextKey).(string); ok {
		return merchantID
	}
	return ""
}

type merchantBody struct {
	MerchantID string `json:"merchant_id"`
}

// MerchantContext resolves the merchant a widget request is acting for. A
// JSON object body's merchant_id wins; otherwise the X-Merchant-ID header, then the
// merchant_id query parameter. The body is restored for the handler.
// Validation is left to the session layer so that every route reports a
// missing merchant the same way.
func MerchantContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		merchantID, err := merchantFromBody(r)
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeError(w, apperrors.BodyTooLarge())
				return
			}
			log.Warn().Err(err).Msg("merchant context: failed to read body")
			writeError(w, apperrors.InvalidInput("body", "could not be read"))
			return
		}

		if merchantID == "" {
			merchantID = strings.TrimSpace(r.Header.Get(MerchantHeader))
		}
		if merchantID == "" {
			merchantID = strings.TrimSpace(r.URL.Query().Get(MerchantQueryParam))
		}

		next.ServeHTTP(w, withValue(r, MerchantContextKey, merchantID))
	})
}

func merchantFromBody(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	// Any JSON object counts; widgets also send it as text/plain.
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", nil
	}

	// Malformed JSON is reported by the handler that decodes the body.
	var parsed merchantBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", nil
	}
	return strings.TrimSpace(parsed.MerchantID), nil
}
