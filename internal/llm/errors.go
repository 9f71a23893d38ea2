package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/roelfdiedericks/xai-go"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/roelfdiedericks/voxnote/internal/retry"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

const opSummarize = "summarize"

// mapError converts a backend error into a *types.Error carrying the HTTP
// status where the SDK exposes one. Context overflow reported by the
// backend always maps to text_too_long regardless of status.
func mapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return types.ErrCancelled
	}
	var te *types.Error
	if errors.As(err, &te) {
		if te.Provider == "" {
			out := *te
			out.Provider = provider
			return &out
		}
		return err
	}

	status, message := statusOf(err)
	if retry.IsContextOverflowMessage(err.Error()) {
		return &types.Error{Kind: types.KindTextTooLong, Op: opSummarize, Provider: provider, StatusCode: status, Message: message, Cause: err}
	}
	if status != 0 {
		e := types.HTTPError(provider, opSummarize, status, message)
		e.Cause = err
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &types.Error{Kind: types.KindNetwork, Op: opSummarize, Provider: provider, Message: "request timed out", Cause: err}
	}

	var xe *xai.Error
	if errors.As(err, &xe) && xe.Code == xai.ErrNotFound {
		return &types.Error{Kind: types.KindNotFound, Op: opSummarize, Provider: provider, Cause: err}
	}
	return &types.Error{Kind: retry.KindFromMessage(err.Error()), Op: opSummarize, Provider: provider, Cause: err}
}

// statusOf extracts the HTTP status and message from SDK error types.
func statusOf(err error) (int, string) {
	var oaiErr *openai.APIError
	if errors.As(err, &oaiErr) {
		return oaiErr.HTTPStatusCode, oaiErr.Message
	}
	var oaiReq *openai.RequestError
	if errors.As(err, &oaiReq) {
		return oaiReq.HTTPStatusCode, ""
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode, ""
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code, gErr.Message
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) {
		return gErrPtr.Code, gErrPtr.Message
	}
	var he *httpStatusError
	if errors.As(err, &he) {
		return he.status, he.message
	}
	return 0, ""
}

// httpStatusError is returned by the raw HTTP backends.
type httpStatusError struct {
	status  int
	message string
}

func (e *httpStatusError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("http status %d", e.status)
	}
	return fmt.Sprintf("http status %d: %s", e.status, e.message)
}
